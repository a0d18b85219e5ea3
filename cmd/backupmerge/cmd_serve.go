package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/backupmerge/backupmerge/internal/api"
	"github.com/backupmerge/backupmerge/internal/logging"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server fronting the merge engine",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: config rest_api.port)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default: config rest_api.host)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.GetLogger("cli")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort != 0 {
		cfg.RestAPI.Port = servePort
	}
	if serveHost != "" {
		cfg.RestAPI.Host = serveHost
	}

	server := api.NewServer(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := server.StartWithContext(ctx, 10*time.Second); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
