package mmstore

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	NewLogger(&buf, "json", slog.LevelInfo).Info("region dumped", "allocated", 64)
	assert.Contains(t, buf.String(), `"msg":"region dumped"`)
	assert.Contains(t, buf.String(), `"allocated":64`)

	buf.Reset()
	NewLogger(&buf, "text", slog.LevelWarn).Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, "other", slog.LevelInfo).Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNoopLogger(t *testing.T) {
	assert.False(t, NoopLogger().Enabled(t.Context(), slog.LevelError))
}
