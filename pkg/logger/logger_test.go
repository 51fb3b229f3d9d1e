package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"info", InfoLevel, true},
		{"", InfoLevel, true},
		{"warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"loud", InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSlogJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, InfoLevel, false)
	l.Debug("hidden")
	l.With("scanner", "discovery").Info("found", "request", "0x700")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "found", rec["msg"])
	assert.Equal(t, "discovery", rec["scanner"])
	assert.Equal(t, "0x700", rec["request"])
	assert.Contains(t, rec, "time")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, ErrorLevel, false)
	l.Warn("dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, l.Level())
	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestOr(t *testing.T) {
	assert.Equal(t, Default(), Or(nil))
	d := Discard()
	assert.Equal(t, d, Or(d))
}
