package commands

import (
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/focuswatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"watch", "serve", "current", "config", "ignore"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestConfigAndIgnoreCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(func() { cfgFile = "" })

	run := func(args ...string) error {
		rootCmd.SetArgs(append([]string{"--config", path}, args...))
		return rootCmd.Execute()
	}

	require.NoError(t, run("config", "set", "server_port", "9191"))
	require.NoError(t, run("ignore", "add", "^Slack"))
	assert.Error(t, run("config", "set", "server_port", "nope"))
	assert.Error(t, run("ignore", "add", "("))

	m, err := config.NewManager(path)
	require.NoError(t, err)
	cfg := m.Get()
	assert.Equal(t, 9191, cfg.ServerPort)
	assert.Equal(t, []string{"^Slack"}, cfg.Output.IgnorePatterns)

	require.NoError(t, run("ignore", "remove", "^Slack"))
	m, err = config.NewManager(path)
	require.NoError(t, err)
	assert.Empty(t, m.Get().Output.IgnorePatterns)
}
