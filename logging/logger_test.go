package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/crytic/routerguard/logging/colors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddAndRemoveWriter will test to Logger.AddWriter and Logger.RemoveWriter functions to ensure that they work as expected.
func TestAddAndRemoveWriter(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel)

	logger.AddWriter(os.Stdout, UNSTRUCTURED, true)
	logger.AddWriter(os.Stderr, UNSTRUCTURED, false)
	logger.AddWriter(os.Stdin, STRUCTURED, false)

	assert.Len(t, logger.unstructuredColorWriters, 1)
	assert.Len(t, logger.unstructuredWriters, 1)
	assert.Len(t, logger.structuredWriters, 1)

	// Duplicate writers are ignored
	logger.AddWriter(os.Stdout, UNSTRUCTURED, true)
	logger.AddWriter(os.Stderr, UNSTRUCTURED, false)
	logger.AddWriter(os.Stdin, STRUCTURED, false)

	assert.Len(t, logger.unstructuredColorWriters, 1)
	assert.Len(t, logger.unstructuredWriters, 1)
	assert.Len(t, logger.structuredWriters, 1)

	logger.RemoveWriter(os.Stdout, UNSTRUCTURED, true)
	logger.RemoveWriter(os.Stderr, UNSTRUCTURED, false)
	logger.RemoveWriter(os.Stdin, STRUCTURED, false)

	assert.Len(t, logger.unstructuredColorWriters, 0)
	assert.Len(t, logger.unstructuredWriters, 0)
	assert.Len(t, logger.structuredWriters, 0)
}

// TestUnstructuredOutputHasNoColor ensures the plain unstructured writer does not receive ANSI codes even when the
// message was built with color functions.
func TestUnstructuredOutputHasNoColor(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel)
	var buf bytes.Buffer
	logger.AddWriter(&buf, UNSTRUCTURED, false)

	logger.Info("router ", colors.RedBold, "Router", colors.Reset, " is valid")

	assert.Contains(t, buf.String(), colors.LEFT_ARROW+" router Router is valid")
	assert.NotContains(t, buf.String(), "\x1b[")
}

// TestStructuredOutput verifies the JSON output carries the message, sub-logger context, error and structured info.
func TestStructuredOutput(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel)
	var buf bytes.Buffer
	logger.AddWriter(&buf, STRUCTURED, false)

	sub := logger.NewSubLogger("module", CLI_SERVICE)
	sub.Warn("selector check failed", errors.New("boom"), StructuredLogInfo{"selector": "0x8da5cb5b"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "selector check failed", entry["message"])
	assert.Equal(t, CLI_SERVICE, entry["module"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, map[string]any{"selector": "0x8da5cb5b"}, entry["info"])
}

// TestLevelFiltering verifies that events below the logger level are discarded.
func TestLevelFiltering(t *testing.T) {
	logger := NewLogger(zerolog.WarnLevel)
	var buf bytes.Buffer
	logger.AddWriter(&buf, UNSTRUCTURED, false)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(zerolog.InfoLevel)
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestDisabledColors ensures that the colorized writer does not output colors once coloring is turned off.
func TestDisabledColors(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel)
	var buf bytes.Buffer
	logger.AddWriter(&buf, UNSTRUCTURED, true)

	colors.DisableColor()
	defer colors.EnableColor()
	logger.Info(colors.Bold, "foo")

	assert.Contains(t, buf.String(), colors.LEFT_ARROW+" foo")
	assert.NotContains(t, buf.String(), "\x1b[")

	// Warnings and errors are not bolded by the console writer either
	buf.Reset()
	logger.Warn("bar")
	logger.Error("baz")
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "bar")
	assert.Contains(t, buf.String(), "baz")
}
