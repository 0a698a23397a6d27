package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register or replace a subscription set against a running dispatchd",
	Long: `Register sends a subscription-set XML document to a running
dispatchd instance's /subscriptions/{location} endpoint.

Example:
  dispatchd register --server http://localhost:8080 --location billing -f set.xml`,
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().String("server", "http://localhost:8080", "dispatchd HTTP address")
	registerCmd.Flags().String("location", "", "subscription-set location, e.g. \"billing\" (required)")
	registerCmd.Flags().StringP("file", "f", "", "subscription-set XML document (required)")
	registerCmd.Flags().String("access-key", "", "access key to attach to the set")
	_ = registerCmd.MarkFlagRequired("location")
	_ = registerCmd.MarkFlagRequired("file")
}

func runRegister(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	location, _ := cmd.Flags().GetString("location")
	filename, _ := cmd.Flags().GetString("file")
	accessKey, _ := cmd.Flags().GetString("access-key")

	doc, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	target := server + "/subscriptions/" + location
	if accessKey != "" {
		target += "?access_key=" + url.QueryEscape(accessKey)
	}

	req, err := http.NewRequest(http.MethodPut, target, bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s: %s\n", resp.Status, body)
	return nil
}
