package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}

	return out
}

func TestZerologLogger(t *testing.T) {
	t.Run("adds service and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "snowcast_server", zerolog.DebugLevel)

		l.Info("connection accepted", Field{Key: "handle", Value: "0/0"}, Field{Key: "peer", Value: "127.0.0.1:5000"})

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "snowcast_server", lines[0]["service"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "connection accepted", lines[0]["message"])
		assert.Equal(t, "0/0", lines[0]["handle"])
		assert.Contains(t, lines[0], "time")
	})

	t.Run("filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "svc", zerolog.WarnLevel)

		l.Debug("dropped")
		l.Info("dropped")
		l.Warn("kept")
		l.Error("kept")

		assert.Len(t, decodeLines(t, &buf), 2)
	})

	t.Run("with derives scoped fields without changing parent", func(t *testing.T) {
		var buf bytes.Buffer
		parent := NewZerologLogger(zerolog.New(&buf), "svc", zerolog.InfoLevel)
		child := parent.With(Field{Key: "serial", Value: 7})

		child.Info("child")
		parent.Info("parent")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, float64(7), lines[0]["serial"])
		assert.NotContains(t, lines[1], "serial")
		assert.NoError(t, child.Close())
	})

	t.Run("errors and durations are rendered as strings", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "svc", zerolog.InfoLevel)

		l.Error("reset", Field{Key: "error", Value: errors.New("incomplete frame")}, Field{Key: "took", Value: 2 * time.Second})

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "incomplete frame", lines[0]["error"])
		assert.Equal(t, "2s", lines[0]["took"])
	})
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, "snowcast_control", zerolog.InfoLevel)

	l.Info("welcome received", Field{Key: "stations", Value: 3})

	out := buf.String()
	assert.Contains(t, out, "welcome received")
	assert.Contains(t, out, "stations=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Info("ignored")
	assert.NotNil(t, l.With(Field{Key: "a", Value: 1}))
	assert.NoError(t, l.Close())
}

func TestDailyFileWriter(t *testing.T) {
	t.Run("writes to dated file and rotates on day change", func(t *testing.T) {
		dir := t.TempDir()
		day := time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC)
		now := func() time.Time { return day }

		w, err := newDailyFileWriter("snowcast", dir, now)
		require.NoError(t, err)
		t.Cleanup(func() { _ = w.Close() })

		_, err = w.Write([]byte("first\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "snowcast_2026-10-18.log"), w.CurrentLogFile())

		day = day.Add(2 * time.Minute)
		_, err = w.Write([]byte("second\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "snowcast_2026-10-19.log"), w.CurrentLogFile())

		first, err := os.ReadFile(filepath.Join(dir, "snowcast_2026-10-18.log"))
		require.NoError(t, err)
		assert.Equal(t, "first\n", string(first))
	})

	t.Run("write after close fails and close is idempotent", func(t *testing.T) {
		w, err := NewDailyFileWriter("snowcast", t.TempDir())
		require.NoError(t, err)

		require.NoError(t, w.Close())
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("late"))
		assert.ErrorIs(t, err, ErrWriterClosed)
		assert.Equal(t, "", w.CurrentLogFile())
	})

	t.Run("file logger creates directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		l, err := NewZerologFileLogger("snowcast", dir, zerolog.InfoLevel)
		require.NoError(t, err)

		l.Info("hello")
		require.NoError(t, l.Close())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
