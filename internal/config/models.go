package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"github.com/bryanchriswhite/focuswatch/internal/window"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel       string       `json:"log_level" yaml:"log_level"`
	LogPretty      bool         `json:"log_pretty" yaml:"log_pretty"`
	Backend        string       `json:"backend" yaml:"backend"`
	MaxTitleLength int          `json:"max_title_length" yaml:"max_title_length"`
	ServerHost     string       `json:"server_host" yaml:"server_host"`
	ServerPort     int          `json:"server_port" yaml:"server_port"`
	StreamBuffer   int          `json:"stream_buffer" yaml:"stream_buffer"`
	Output         OutputConfig `json:"output" yaml:"output"`
}

// OutputConfig controls how titles are written by the title log
type OutputConfig struct {
	TimeFormat     string   `json:"time_format" yaml:"time_format"`
	IgnorePatterns []string `json:"ignore_patterns" yaml:"ignore_patterns"`
}

// Configuration keys accepted by Set and Value
const (
	KeyLogLevel       = "log_level"
	KeyLogPretty      = "log_pretty"
	KeyBackend        = "backend"
	KeyMaxTitleLength = "max_title_length"
	KeyServerHost     = "server_host"
	KeyServerPort     = "server_port"
	KeyStreamBuffer   = "stream_buffer"
	KeyTimeFormat     = "output.time_format"
	KeyIgnorePatterns = "output.ignore_patterns"
)

// ErrUnknownKey is returned for keys Set and Value do not know
var ErrUnknownKey = errors.New("unknown configuration key")

// Keys returns every settable key in sorted order
func Keys() []string {
	keys := []string{
		KeyLogLevel, KeyLogPretty, KeyBackend, KeyMaxTitleLength,
		KeyServerHost, KeyServerPort, KeyStreamBuffer,
		KeyTimeFormat, KeyIgnorePatterns,
	}
	sort.Strings(keys)
	return keys
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		LogPretty:      false,
		Backend:        window.BackendAuto,
		MaxTitleLength: window.MaxTitleLength,
		ServerHost:     "localhost",
		ServerPort:     8080,
		StreamBuffer:   10,
		Output: OutputConfig{
			TimeFormat:     "15:04:05",
			IgnorePatterns: []string{},
		},
	}
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Backend) {
	case window.BackendAuto, window.BackendWin32, window.BackendX11, window.BackendKWin:
	default:
		errs = append(errs, fmt.Errorf("invalid backend %q (use auto, win32, x11 or kwin)", c.Backend))
	}
	if c.MaxTitleLength < 2 || c.MaxTitleLength > 32768 {
		errs = append(errs, fmt.Errorf("max_title_length must be between 2 and 32768, got %d", c.MaxTitleLength))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server_port must be between 1 and 65535, got %d", c.ServerPort))
	}
	if c.StreamBuffer < 1 {
		errs = append(errs, fmt.Errorf("stream_buffer must be positive, got %d", c.StreamBuffer))
	}
	for _, p := range c.Output.IgnorePatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("invalid ignore pattern %q: %w", p, err))
		}
	}

	return errors.Join(errs...)
}

// Address returns host:port for the title stream server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

func (c *Config) clone() *Config {
	cp := *c
	cp.Output.IgnorePatterns = append([]string{}, c.Output.IgnorePatterns...)
	return &cp
}

// Manager handles configuration. Flag and environment overrides are kept
// apart from the file values, and only file values are ever saved.
type Manager struct {
	configPath string
	config     *Config
	overrides  map[string]string
	onChange   []func(*Config)
	mu         sync.RWMutex
}

// DefaultConfigPath returns $HOME/.config/focuswatch/config.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "focuswatch", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when it is empty. A
// missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
		overrides:  make(map[string]string),
	}

	// Try to read config file
	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			// Config file not found, create it with defaults
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Default()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("backend", m.config.Backend).
		Int("ignore_patterns", len(m.config.Output.IgnorePatterns)).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk. Missing fields keep their defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Output.IgnorePatterns == nil {
		cfg.Output.IgnorePatterns = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the effective configuration: file values with any
// overrides applied
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effectiveLocked()
}

func (m *Manager) fileLocked() *Config {
	if m.config == nil {
		return Default()
	}
	return m.config.clone()
}

func (m *Manager) effectiveLocked() *Config {
	cfg := m.fileLocked()
	for _, key := range Keys() {
		if raw, ok := m.overrides[key]; ok {
			// Checked by ApplyOverrides
			_ = cfg.set(key, raw)
		}
	}
	return cfg
}

// OnChange registers fn to be called with the effective configuration after
// every saved change
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// persist saves the file values and notifies OnChange callbacks
func (m *Manager) persist() error {
	if err := m.Save(); err != nil {
		return err
	}

	m.mu.RLock()
	cfg := m.effectiveLocked()
	fns := append([]func(*Config){}, m.onChange...)
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(cfg.clone())
	}
	return nil
}

// Save writes the file values to disk. Overrides are not written.
func (m *Manager) Save() error {
	m.mu.RLock()
	var cfg *Config
	if m.config != nil {
		cfg = m.config.clone()
	}
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Default()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	// Ensure the directory exists
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update validates cfg and saves it as the file configuration. A field still
// equal to its active override keeps the file value, so writing back what Get
// returned does not persist overrides.
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	next := cfg.clone()
	if len(m.overrides) > 0 {
		effective := m.effectiveLocked()
		file := m.fileLocked()
		for key := range m.overrides {
			got, _ := next.value(key)
			over, _ := effective.value(key)
			if got == over {
				next.copyKey(file, key)
			}
		}
	}
	m.config = next
	m.mu.Unlock()

	return m.persist()
}

// Set parses value for key, validates the result and saves it
func (m *Manager) Set(key, value string) error {
	m.mu.Lock()
	next := m.fileLocked()
	if err := next.set(key, value); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = next
	m.mu.Unlock()

	return m.persist()
}

// override records value for key on top of the file values
func (m *Manager) override(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.effectiveLocked()
	if err := next.set(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	m.overrides[key] = value
	return nil
}

// Value returns the string form of key
func (m *Manager) Value(key string) (string, error) {
	return m.Get().value(key)
}

// ApplyOverrides layers every key set in v (flags or FOCUSWATCH_* environment
// variables) over the file values. Overrides show in Get but are never saved.
func (m *Manager) ApplyOverrides(v *viper.Viper) error {
	for _, key := range Keys() {
		if !v.IsSet(key) {
			continue
		}
		raw := v.GetString(key)
		if key == KeyIgnorePatterns {
			raw = strings.Join(v.GetStringSlice(key), ",")
		}
		if raw == "" {
			continue
		}
		if err := m.override(key, raw); err != nil {
			return fmt.Errorf("invalid override for %s: %w", key, err)
		}
		logger.WithComponent("config").Debug().
			Str("key", key).
			Str("value", raw).
			Msg("Config override applied")
	}
	return nil
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	return m.Set(KeyServerPort, strconv.Itoa(port))
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.Set(KeyLogLevel, level)
}

// AddIgnorePattern adds a title ignore pattern. Duplicates are ignored.
func (m *Manager) AddIgnorePattern(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}

	m.mu.Lock()
	next := m.fileLocked()
	for _, p := range next.Output.IgnorePatterns {
		if p == pattern {
			m.mu.Unlock()
			return nil // Already exists
		}
	}
	next.Output.IgnorePatterns = append(next.Output.IgnorePatterns, pattern)
	m.config = next
	m.mu.Unlock()
	return m.persist()
}

// RemoveIgnorePattern removes a title ignore pattern
func (m *Manager) RemoveIgnorePattern(pattern string) error {
	m.mu.Lock()
	next := m.fileLocked()
	patterns := next.Output.IgnorePatterns
	found := false
	for i, p := range patterns {
		if p == pattern {
			next.Output.IgnorePatterns = append(patterns[:i:i], patterns[i+1:]...)
			found = true
			break
		}
	}
	if found {
		m.config = next
	}
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("ignore pattern not found: %s", pattern)
	}
	return m.persist()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

func (c *Config) set(key, value string) error {
	switch key {
	case KeyLogLevel:
		c.LogLevel = strings.ToLower(value)
	case KeyLogPretty:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		c.LogPretty = b
	case KeyBackend:
		c.Backend = strings.ToLower(value)
	case KeyMaxTitleLength, KeyServerPort, KeyStreamBuffer:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number: %s", value)
		}
		switch key {
		case KeyMaxTitleLength:
			c.MaxTitleLength = n
		case KeyServerPort:
			c.ServerPort = n
		default:
			c.StreamBuffer = n
		}
	case KeyServerHost:
		c.ServerHost = value
	case KeyTimeFormat:
		c.Output.TimeFormat = value
	case KeyIgnorePatterns:
		c.Output.IgnorePatterns = splitList(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func (c *Config) value(key string) (string, error) {
	switch key {
	case KeyLogLevel:
		return c.LogLevel, nil
	case KeyLogPretty:
		return strconv.FormatBool(c.LogPretty), nil
	case KeyBackend:
		return c.Backend, nil
	case KeyMaxTitleLength:
		return strconv.Itoa(c.MaxTitleLength), nil
	case KeyServerHost:
		return c.ServerHost, nil
	case KeyServerPort:
		return strconv.Itoa(c.ServerPort), nil
	case KeyStreamBuffer:
		return strconv.Itoa(c.StreamBuffer), nil
	case KeyTimeFormat:
		return c.Output.TimeFormat, nil
	case KeyIgnorePatterns:
		return strings.Join(c.Output.IgnorePatterns, ","), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// copyKey copies the field named by key from src
func (c *Config) copyKey(src *Config, key string) {
	switch key {
	case KeyLogLevel:
		c.LogLevel = src.LogLevel
	case KeyLogPretty:
		c.LogPretty = src.LogPretty
	case KeyBackend:
		c.Backend = src.Backend
	case KeyMaxTitleLength:
		c.MaxTitleLength = src.MaxTitleLength
	case KeyServerHost:
		c.ServerHost = src.ServerHost
	case KeyServerPort:
		c.ServerPort = src.ServerPort
	case KeyStreamBuffer:
		c.StreamBuffer = src.StreamBuffer
	case KeyTimeFormat:
		c.Output.TimeFormat = src.Output.TimeFormat
	case KeyIgnorePatterns:
		c.Output.IgnorePatterns = append([]string{}, src.Output.IgnorePatterns...)
	}
}

// splitList splits a comma separated value, dropping blanks
func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
