package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/focuswatch/internal/config"
	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"github.com/bryanchriswhite/focuswatch/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "focuswatch",
		Short: "focuswatch - Foreground window title monitor",
		Long: `focuswatch watches the window that currently has input focus and reports
its title every time it changes, either because focus moved to another window
or because the focused window renamed itself.

Features:
  • Event driven (WinEvent hooks on Windows, X11 property events on Linux)
  • KWin D-Bus backend for Plasma Wayland sessions
  • Consecutive duplicate titles are suppressed
  • Regex ignore patterns for titles you never want logged
  • WebSocket title stream for integration
  • Persistent configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focuswatch/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "window backend (auto, win32, x11, kwin)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human readable logs on stderr")

	// Bind flags to viper
	viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(config.KeyBackend, rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag(config.KeyLogPretty, rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	// FOCUSWATCH_SERVER_PORT, FOCUSWATCH_OUTPUT_TIME_FORMAT, ...
	viper.SetEnvPrefix("focuswatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range config.Keys() {
		viper.BindEnv(key)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file, applies flag and environment overrides and
// initializes logging from the result
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.ApplyOverrides(viper.GetViper()); err != nil {
		return nil, nil, err
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	logger.WithComponent("cli").Debug().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Str("backend", cfg.Backend).
		Msg("Configuration loaded")

	return configMgr, cfg, nil
}

// openBackend connects to the configured window backend
func openBackend(cfg *config.Config) (window.Backend, error) {
	backend, err := window.NewBackend(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}
	return backend, nil
}
