package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_FieldsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{logger: zerolog.New(&buf)}

	l.With("component", "cache").Warn("fetch failed", "key", "ticker:BTC", "error", errors.New("boom"), 42, "ignored")

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "fetch failed", event["message"])
	assert.Equal(t, "cache", event["component"])
	assert.Equal(t, "ticker:BTC", event["key"])
	assert.Equal(t, "boom", event["error"])
}

func TestNewNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Info("nothing", "k", "v")
		l.With("a", 1).Error("still nothing")
	})
}
