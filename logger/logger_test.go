package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_LogConfiguration_logLevel(t *testing.T) {
	var cases = []struct {
		name  string
		level slog.Level
	}{
		{"", slog.LevelInfo},
		{"error", slog.LevelError},
		{"InfO", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"DEBUG", slog.LevelDebug},
		{"TRACE", LevelTrace},
		{"NONE", levelNone},
		{"info-1", slog.LevelInfo - 1},
		{"info+1", slog.LevelInfo + 1},
		{"chatty", slog.LevelInfo},
	}

	for _, tc := range cases {
		cfg := LogConfiguration{Level: tc.name}
		if lvl := cfg.logLevel(); lvl != tc.level {
			t.Errorf("expected %q to return %d (%s) but got %d (%s)", tc.name, tc.level, tc.level, lvl, lvl)
		}
	}

	// when output is discarded level is none
	cfg := LogConfiguration{Level: "info", OutputPath: "discard"}
	require.Equal(t, levelNone, cfg.logLevel())
	cfg = LogConfiguration{Level: "info", OutputPath: os.DevNull}
	require.Equal(t, levelNone, cfg.logLevel())
}

func Test_New(t *testing.T) {
	t.Run("unknown format", func(t *testing.T) {
		log, err := New(&LogConfiguration{Format: "xml"})
		require.EqualError(t, err, `creating log handler: unknown log format "xml"`)
		require.Nil(t, log)
	})

	t.Run("discard", func(t *testing.T) {
		log, err := New(&LogConfiguration{OutputPath: "discard"})
		require.NoError(t, err)
		require.False(t, log.Enabled(context.Background(), slog.LevelError))
	})

	t.Run("file output", func(t *testing.T) {
		fn := filepath.Join(t.TempDir(), "logs", "node.log")
		log, err := New(&LogConfiguration{OutputPath: fn, Format: FormatJSON, Level: "debug"})
		require.NoError(t, err)
		log.Debug("hello", Referendum(3), Error(errors.New("boom")))

		b, err := os.ReadFile(fn)
		require.NoError(t, err)
		rec := map[string]any{}
		require.NoError(t, json.Unmarshal(b, &rec))
		require.Equal(t, "hello", rec["msg"])
		require.EqualValues(t, 3, rec[ReferendumKey])
		require.Equal(t, "boom", rec[ErrorKey])
	})
}

func Test_ecsFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &LogConfiguration{Format: FormatECS, TimeFormat: "none"}
	h, err := cfg.handler(buf)
	require.NoError(t, err)
	slog.New(h).Info("closed", Error(errors.New("ledger down")), Block(9))

	rec := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "closed", rec["message"])
	require.Equal(t, map[string]any{"message": "ledger down"}, rec["error"])
	require.EqualValues(t, 9, rec[BlockKey])
	require.NotContains(t, rec, slog.TimeKey)
}

func Test_consoleHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	h := newConsoleHandler(buf, "none", slog.LevelInfo)
	log := slog.New(h).With(Track(1)).WithGroup("g")

	log.Debug("not shown")
	require.Zero(t, buf.Len())

	log.Warn("queue full", slog.Int("n", 5), Error(errors.New("boom")))
	out := buf.String()
	require.Contains(t, out, "WRN")
	require.Contains(t, out, "queue full")
	require.Contains(t, out, "track=1")
	require.Contains(t, out, "g.n=5")
	require.Contains(t, out, "g.err=boom")
}

func Test_LoadConfiguration(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "logger.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("defaultLevel: debug\nformat: console\noutputPath: stderr\n"), 0600))
	cfg, err := LoadConfiguration(fn)
	require.NoError(t, err)
	require.Equal(t, &LogConfiguration{Level: "debug", Format: FormatConsole, OutputPath: "stderr"}, cfg)

	_, err = LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading logger config file")
}
