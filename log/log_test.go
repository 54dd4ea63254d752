package log

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetFormat(FormatText)
	})

	require.NoError(t, SetFormat(FormatJSON))
	WithFields(Fields{"by": "admin"}).Info("store.reset_counter")

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "store.reset_counter", entry["msg"])
	assert.Equal(t, "admin", entry["by"])
	assert.Equal(t, "info", entry["level"])

	buf.Reset()
	require.NoError(t, SetFormat(FormatText))
	Warnf("submit.%s", "data")
	assert.Contains(t, buf.String(), "submit.data")
	assert.Contains(t, buf.String(), "warning")

	assert.Error(t, SetFormat("xml"))
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel(InfoLevel)
	})

	SetLevel(WarnLevel)
	Info("hidden")
	Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetLevel(DebugLevel)
	Log(DebugLevel, "shown")
	assert.Contains(t, buf.String(), "shown")
}
