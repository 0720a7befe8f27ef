package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/focuswatch/internal/config"
	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"github.com/bryanchriswhite/focuswatch/internal/titlelog"
	"github.com/bryanchriswhite/focuswatch/internal/window"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the focused window title every time it changes",
	Long: `Watch the foreground window and print one line per title change to stdout
until interrupted. Errors while reading a title are printed as error lines and
watching continues.`,
	Example: `  # Watch with defaults
  focuswatch watch

  # Full timestamps, debug logs on stderr
  focuswatch watch --time-format 2006-01-02T15:04:05Z07:00 --log-level debug

  # Force the X11 backend
  focuswatch watch --backend x11`,
	RunE: runWatch,
}

var watchTimeFormat string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchTimeFormat, "time-format", "", "Go time layout prefixed to each line (overrides output.time_format)")
}

// startMonitor opens the backend and registers the monitor. The returned stop
// func disposes the monitor, then closes the backend.
func startMonitor(cfg *config.Config) (*window.Monitor, func(), error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	monitor, err := window.NewMonitor(backend, window.WithMaxTitleLength(cfg.MaxTitleLength))
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("failed to start window monitor: %w", err)
	}

	stop := func() {
		log := logger.WithComponent("cli")
		if err := monitor.Dispose(); err != nil {
			log.Warn().Err(err).Msg("Failed to dispose window monitor")
		}
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backend")
		}
	}
	return monitor, stop, nil
}

// newTitleWriter builds the stdout title log from the output settings
func newTitleWriter(cfg *config.Config, timeFormat string) (*titlelog.Writer, error) {
	if timeFormat == "" {
		timeFormat = cfg.Output.TimeFormat
	}
	return titlelog.New(os.Stdout, cfg.Output.IgnorePatterns, titlelog.WithTimeFormat(timeFormat))
}

func runWatch(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := newTitleWriter(cfg, watchTimeFormat)
	if err != nil {
		return err
	}

	monitor, stop, err := startMonitor(cfg)
	if err != nil {
		return err
	}
	defer stop()

	sub := monitor.Subscribe(out)
	defer sub.Unsubscribe()

	logger.WithComponent("cli").Info().
		Str("backend", monitor.Backend().Name()).
		Msg("Watching foreground window, press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.WithComponent("cli").Info().Msg("Shutting down gracefully...")
		return nil
	case <-out.Done():
		return errors.New("window monitor stopped unexpectedly")
	}
}
