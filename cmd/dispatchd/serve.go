package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/dispatchd/pkg/config"
	"github.com/cuemby/dispatchd/pkg/dispatcher"
	"github.com/cuemby/dispatchd/pkg/frontend"
	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatchd service",
	Long: `Run the dispatchd service: load its configuration, recover any
durable queues, and start serving subscription and event HTTP endpoints.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to the dispatchd YAML configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	metrics.SetVersion(Version)

	d, err := dispatcher.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build dispatcher: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	metrics.RegisterComponent("subscription_store", true, "")
	metrics.RegisterComponent("queue_repository", true, "")
	metrics.RegisterComponent("dispatch_core", true, "")

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: frontend.Handler(d),
	}

	go func() {
		log.Logger.Info().Str("addr", cfg.HTTPAddr).Msg("dispatchd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down dispatchd")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)

	return d.Stop()
}
