package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{" warn ", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"trace", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", &buf)
	t.Cleanup(func() { Init("info", false) })

	WithComponent("monitor").Info().Str("title", "Editor").Msg("Published")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "monitor", entry["component"])
	assert.Equal(t, "Editor", entry["title"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Published", entry["message"])
}

func TestInitWithWriterFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("warn", &buf)
	t.Cleanup(func() { Init("info", false) })

	Get().Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	Get().Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
