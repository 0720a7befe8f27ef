package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/focuswatch/internal/api"
	"github.com/bryanchriswhite/focuswatch/internal/config"
	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the title stream server",
	Long: `Start the focuswatch HTTP server with foreground window monitoring.

The server exposes the current title and a WebSocket stream of title changes,
and keeps printing title lines to stdout like "watch".`,
	Example: `  # Start server on default port (8080)
  focuswatch serve

  # Start server on custom port
  focuswatch serve --port 9090

  # Listen on every interface
  focuswatch serve --host 0.0.0.0

  # Start with debug logging
  focuswatch serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "server port (default is 8080)")
	serveCmd.Flags().String("host", "", "server host (default is localhost)")
	serveCmd.Flags().Bool("quiet", false, "do not print title lines to stdout")

	viper.BindPFlag(config.KeyServerPort, serveCmd.Flags().Lookup("port"))
	viper.BindPFlag(config.KeyServerHost, serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")

	monitor, stop, err := startMonitor(cfg)
	if err != nil {
		return err
	}
	defer stop()

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		out, err := newTitleWriter(cfg, "")
		if err != nil {
			return err
		}
		sub := monitor.Subscribe(out)
		defer sub.Unsubscribe()

		// Pattern changes made through the API apply without a restart
		configMgr.OnChange(func(cfg *config.Config) {
			if err := out.SetIgnorePatterns(cfg.Output.IgnorePatterns); err != nil {
				log.Warn().Err(err).Msg("Failed to refresh ignore patterns")
			}
		})
	}

	server := api.NewServer(monitor, configMgr)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(cfg.Address())
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://%s/api", cfg.Address())).
		Str("stream", fmt.Sprintf("ws://%s/api/title/stream", cfg.Address())).
		Msg("focuswatch is running, press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigChan:
	}

	log.Info().Msg("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown error")
	}
	return nil
}
