package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false // Disable colors for easier testing
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})

	t.Run("ErrorLevelFiltersEverythingElse", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.NotContains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})
}

func TestIsDebug(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	SetLevel("DEBUG")
	assert.True(t, IsDebug())

	SetLevel("INFO")
	assert.False(t, IsDebug())
}

func TestStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	Info("chunk sent", KeyFileID, 7, KeyChunk, 3)

	out := buf.String()
	assert.Contains(t, out, "chunk sent")
	assert.Contains(t, out, "file_id=7")
	assert.Contains(t, out, "chunk=3")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")
	defer SetFormat("text")

	Info("transfer started", KeyFileID, 42)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "transfer started", record["msg"])
	assert.Equal(t, float64(42), record[KeyFileID])
}

func TestContextFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	ctx := NewContext(context.Background(), &LogContext{RunID: "run-1", FileID: 9})
	InfoCtx(ctx, "processing file")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-1")
	assert.Contains(t, out, "file_id=9")
}

func TestWithFileScopesContext(t *testing.T) {
	ctx := NewContext(context.Background(), &LogContext{RunID: "run-2"})
	ctx = WithFile(ctx, 5, 11)

	lc := FromContext(ctx)
	require.NotNil(t, lc)
	assert.Equal(t, "run-2", lc.RunID)
	assert.Equal(t, int64(5), lc.FileID)
	assert.Equal(t, int64(11), lc.CourseID)
}

func TestInvalidLevelIgnored(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetLevel("BOGUS")

	assert.Equal(t, LevelInfo, Level(currentLevel.Load()))
}
