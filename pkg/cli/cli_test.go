package cli

import (
	"bytes"
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("connstated", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParse_Defaults(t *testing.T) {
	cfg, showVersion, err := parse(newFlagSet(), nil)
	require.NoError(t, err)

	assert.False(t, showVersion)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 60106, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MeteredInterfaces)
	assert.Equal(t, 256, cfg.EventBacklog)
}

func TestParse_Flags(t *testing.T) {
	cfg, showVersion, err := parse(newFlagSet(), []string{
		"-host", "0.0.0.0",
		"-port", "9000",
		"-log-level", "debug",
		"-metered", "wwan0, usb0,,",
		"-event-backlog", "0",
		"-version",
	})
	require.NoError(t, err)

	assert.True(t, showVersion)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"wwan0", "usb0"}, cfg.MeteredInterfaces)
	assert.Equal(t, 0, cfg.EventBacklog)
}

func TestParse_BadFlag(t *testing.T) {
	_, _, err := parse(newFlagSet(), []string{"-port", "nope"})
	assert.Error(t, err)
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{Host: "h", Port: 1, LogLevel: "warn", MeteredInterfaces: []string{"a", "b"}, EventBacklog: 3}
	assert.Equal(t, "Host: h, Port: 1, LogLevel: warn, Metered: [a,b], EventBacklog: 3", cfg.String())
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "connstated version dev")
}
