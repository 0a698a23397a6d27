package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an event to a running dispatchd",
	Long: `Publish sends a JSON event to a running dispatchd instance's
/events endpoint.

Example:
  dispatchd publish --server http://localhost:8080 --channel event://orders/created --origin svc://orders/ --payload '{"id":1}'`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("server", "http://localhost:8080", "dispatchd HTTP address")
	publishCmd.Flags().String("channel", "", "event channel URI (required)")
	publishCmd.Flags().String("resource", "", "event resource URI")
	publishCmd.Flags().StringArray("origin", nil, "event origin URI (repeatable)")
	publishCmd.Flags().StringArray("recipient", nil, "recipient URI to scope delivery to (repeatable)")
	publishCmd.Flags().String("content-type", "application/json", "payload content type")
	publishCmd.Flags().String("payload", "{}", "event payload")
	_ = publishCmd.MarkFlagRequired("channel")
}

func runPublish(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	channel, _ := cmd.Flags().GetString("channel")
	resource, _ := cmd.Flags().GetString("resource")
	origins, _ := cmd.Flags().GetStringArray("origin")
	recipients, _ := cmd.Flags().GetStringArray("recipient")
	contentType, _ := cmd.Flags().GetString("content-type")
	payload, _ := cmd.Flags().GetString("payload")

	body, err := json.Marshal(map[string]interface{}{
		"channel":      channel,
		"resource":     resource,
		"origins":      origins,
		"recipients":   recipients,
		"content_type": contentType,
		"payload":      []byte(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	resp, err := http.Post(server+"/events", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s: %s\n", resp.Status, respBody)
	return nil
}
