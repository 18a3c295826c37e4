package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponentFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("scanner")
	l.Info().Str(FieldPath, "/tmp/a.png").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scanner", entry["component"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "/tmp/a.png", entry[FieldPath])
	assert.Equal(t, "hello", entry["message"])
}

func TestConfigureLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	l := Base()
	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
}
