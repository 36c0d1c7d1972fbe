package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestComponentLogger(t *testing.T) {
	t.Cleanup(Reset)

	t.Run("should be a no-op before a core is installed", func(t *testing.T) {
		Reset()
		assert.NotPanics(t, func() {
			WithComponent("test").Info("nothing listens")
			Debug("nothing %s", "listens")
		})
	})

	t.Run("should tag entries with the component and fields", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		log := WithComponent("streaming").With("slot", "main")
		SetCore(core)

		log.Debug("frame received", "kind", "content_chunk")

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "frame received", entry.Message)
		ctx := entry.ContextMap()
		assert.Equal(t, "streaming", ctx["component"])
		assert.Equal(t, "main", ctx["slot"])
		assert.Equal(t, "content_chunk", ctx["kind"])
	})

	t.Run("should respect the core level", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		SetCore(core)

		WithComponent("x").Info("dropped")
		Warn("kept %d", 1)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "kept 1", logs.All()[0].Message)
	})
}

func TestNewFileLogger(t *testing.T) {
	t.Cleanup(Reset)
	path := filepath.Join(t.TempDir(), "logs", "system.log")

	t.Run("should create the directory and write JSON lines", func(t *testing.T) {
		require.NoError(t, New(zapcore.InfoLevel, path, false))
		WithComponent("test").Info("hello", "n", 1)
		require.NoError(t, Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"hello"`)
		assert.Contains(t, string(content), `"component":"test"`)
	})

	t.Run("should append when preserve is true", func(t *testing.T) {
		require.NoError(t, New(zapcore.InfoLevel, path, true))
		Info("second")
		require.NoError(t, Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(string(content), "\n"))
	})

	t.Run("should truncate when preserve is false", func(t *testing.T) {
		require.NoError(t, New(zapcore.InfoLevel, path, false))
		Info("third")
		require.NoError(t, Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(content), "hello")
		assert.Contains(t, string(content), "third")
	})
}
