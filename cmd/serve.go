package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightcopilot/internal/server"
	"github.com/KaramelBytes/insightcopilot/internal/session"
)

var (
	serveAddr  string
	serveFlags datasetFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(serveFlags)
		if err != nil {
			return err
		}
		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := server.New(svc, session.NewStore(cfg.SessionTTL()), log, server.Options{
			Addr:        addr,
			UploadLimit: cfg.UploadLimitMB * 1024 * 1024,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run() }()
		fmt.Printf("✓ InsightCopilot listening on http://%s (provider %s, model %s)\n", addr, cfg.Provider, cfg.Model)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		log.Info("cmd", "shutting down", nil)
		if err := srv.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8501)")
	serveFlags.register(serveCmd)
}
