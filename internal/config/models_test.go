package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "focuswatch", "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.MaxTitleLength)
	assert.Equal(t, "auto", cfg.Backend)
	assert.Equal(t, "localhost:8080", cfg.Address())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"backend", func(c *Config) { c.Backend = "wayland" }},
		{"title length", func(c *Config) { c.MaxTitleLength = 1 }},
		{"port", func(c *Config) { c.ServerPort = 70000 }},
		{"stream buffer", func(c *Config) { c.StreamBuffer = 0 }},
		{"ignore pattern", func(c *Config) { c.Output.IgnorePatterns = []string{"("} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	assert.Equal(t, path, m.GetConfigPath())
	assert.FileExists(t, path)
	assert.Equal(t, Default(), m.Get())
}

func TestNewManagerKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9090\noutput:\n  ignore_patterns: [\"^$\"]\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "15:04:05", cfg.Output.TimeFormat)
	assert.Equal(t, []string{"^$"}, cfg.Output.IgnorePatterns)
}

func TestNewManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: wayland\n"), 0644))

	_, err := NewManager(path)
	assert.ErrorContains(t, err, "invalid backend")
}

func TestSetAndValue(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set(KeyServerPort, "9191"))
	require.NoError(t, m.Set(KeyLogPretty, "true"))
	require.NoError(t, m.Set(KeyBackend, "X11"))
	require.NoError(t, m.Set(KeyIgnorePatterns, "^Slack, ^$"))

	v, err := m.Value(KeyServerPort)
	require.NoError(t, err)
	assert.Equal(t, "9191", v)

	v, err = m.Value(KeyBackend)
	require.NoError(t, err)
	assert.Equal(t, "x11", v)

	assert.Equal(t, []string{"^Slack", "^$"}, m.Get().Output.IgnorePatterns)

	// Persisted
	reloaded, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, m.Get(), reloaded.Get())
}

func TestSetRejectsBadValues(t *testing.T) {
	m := newTestManager(t)

	assert.Error(t, m.Set(KeyServerPort, "http"))
	assert.Error(t, m.Set(KeyServerPort, "0"))
	assert.Error(t, m.Set(KeyLogPretty, "maybe"))

	err := m.Set("virtual_display.width", "10")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	_, err = m.Value("nope")
	assert.ErrorIs(t, err, ErrUnknownKey)

	assert.Equal(t, 8080, m.Get().ServerPort, "failed sets leave config untouched")
}

func TestSetPortAndLogLevel(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SetPort(7000))
	require.NoError(t, m.SetLogLevel("debug"))

	cfg := m.Get()
	assert.Equal(t, 7000, cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestIgnorePatterns(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddIgnorePattern("^Slack"))
	require.NoError(t, m.AddIgnorePattern("^Slack"))
	require.NoError(t, m.AddIgnorePattern("Private"))
	assert.Equal(t, []string{"^Slack", "Private"}, m.Get().Output.IgnorePatterns)

	assert.Error(t, m.AddIgnorePattern("("))

	require.NoError(t, m.RemoveIgnorePattern("^Slack"))
	assert.Equal(t, []string{"Private"}, m.Get().Output.IgnorePatterns)
	assert.Error(t, m.RemoveIgnorePattern("^Slack"))
}

func TestGetReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddIgnorePattern("a"))

	cfg := m.Get()
	cfg.ServerPort = 1
	cfg.Output.IgnorePatterns[0] = "b"

	assert.Equal(t, 8080, m.Get().ServerPort)
	assert.Equal(t, []string{"a"}, m.Get().Output.IgnorePatterns)
}

func TestApplyOverrides(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set(KeyServerPort, 9999)
	v.Set(KeyLogLevel, "warn")
	v.Set(KeyIgnorePatterns, []string{"^a", "^b"})

	require.NoError(t, m.ApplyOverrides(v))
	cfg := m.Get()
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"^a", "^b"}, cfg.Output.IgnorePatterns)

	// Overrides are not persisted
	reloaded, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, 8080, reloaded.Get().ServerPort)

	bad := viper.New()
	bad.Set(KeyBackend, "wayland")
	assert.Error(t, m.ApplyOverrides(bad))
}

func TestApplyOverridesFromEnv(t *testing.T) {
	m := newTestManager(t)
	t.Setenv("FOCUSWATCH_SERVER_PORT", "8181")

	v := viper.New()
	v.SetEnvPrefix("focuswatch")
	v.AutomaticEnv()
	require.NoError(t, v.BindEnv(KeyServerPort))

	require.NoError(t, m.ApplyOverrides(v))
	assert.Equal(t, 8181, m.Get().ServerPort)
}

func TestOverridesNeverSaved(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set(KeyLogLevel, "debug")
	v.Set(KeyServerPort, 9999)
	require.NoError(t, m.ApplyOverrides(v))

	require.NoError(t, m.AddIgnorePattern("Slack"))
	require.NoError(t, m.Set(KeyTimeFormat, "15:04"))

	// Writing back the effective config must not persist the overrides
	cfg := m.Get()
	cfg.StreamBuffer = 20
	require.NoError(t, m.Update(cfg))

	data, err := os.ReadFile(m.GetConfigPath())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "debug")
	assert.NotContains(t, string(data), "9999")

	reloaded, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	got := reloaded.Get()
	assert.Equal(t, "info", got.LogLevel)
	assert.Equal(t, 8080, got.ServerPort)
	assert.Equal(t, []string{"Slack"}, got.Output.IgnorePatterns)
	assert.Equal(t, "15:04", got.Output.TimeFormat)
	assert.Equal(t, 20, got.StreamBuffer)

	// The running manager still reports the overrides
	assert.Equal(t, "debug", m.Get().LogLevel)
	assert.Equal(t, 9999, m.Get().ServerPort)
}

func TestUpdateKeepsChangedOverriddenField(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set(KeyServerPort, 9999)
	require.NoError(t, m.ApplyOverrides(v))

	cfg := m.Get()
	cfg.ServerPort = 7070
	require.NoError(t, m.Update(cfg))

	reloaded, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, 7070, reloaded.Get().ServerPort)
	assert.Equal(t, 9999, m.Get().ServerPort)
}

func TestOnChange(t *testing.T) {
	m := newTestManager(t)

	var seen [][]string
	m.OnChange(func(cfg *Config) {
		seen = append(seen, cfg.Output.IgnorePatterns)
	})

	require.NoError(t, m.AddIgnorePattern("^a"))
	require.NoError(t, m.AddIgnorePattern("^b"))
	require.NoError(t, m.RemoveIgnorePattern("^a"))
	assert.Error(t, m.RemoveIgnorePattern("^zzz"))

	assert.Equal(t, [][]string{{"^a"}, {"^a", "^b"}, {"^b"}}, seen)
}
