package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dispatchd/pkg/health"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether a subscriber endpoint is reachable",
	Long: `Probe sends a single HTTP or TCP check against a subscriber's
delivery endpoint, without registering a subscription or consuming a
delivery attempt. The HTTP check sends a GET and counts any 2xx or 3xx
status as reachable, a wider rule than the 2xx/304 success rule
pkg/delivery applies to a real dispatch attempt.

Example:
  dispatchd probe --url http://subscriber.example.com/events
  dispatchd probe --tcp subscriber.example.com:8080`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().String("url", "", "subscriber HTTP endpoint to probe")
	probeCmd.Flags().String("tcp", "", "subscriber TCP address to probe (host:port)")
	probeCmd.Flags().Duration("timeout", 5*time.Second, "probe timeout")
}

func runProbe(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	tcpAddr, _ := cmd.Flags().GetString("tcp")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var checker health.Checker
	switch {
	case url != "":
		checker = health.NewHTTPChecker(url).WithTimeout(timeout)
	case tcpAddr != "":
		checker = health.NewTCPChecker(tcpAddr).WithTimeout(timeout)
	default:
		return fmt.Errorf("one of --url or --tcp is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	result := checker.Check(ctx)
	if result.Healthy {
		fmt.Printf("reachable: %s (%v)\n", result.Message, result.Duration)
		return nil
	}
	fmt.Printf("unreachable: %s (%v)\n", result.Message, result.Duration)
	return fmt.Errorf("probe failed")
}
