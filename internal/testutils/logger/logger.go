/*
Package logger provides loggers for tests. Output goes through t.Log so it
is shown only for failing tests (or with -v).
*/
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/gaecom/substrate/logger"
)

/*
New returns logger for test t on debug level. Level can be changed with
REFERENDA_TEST_LOG_LEVEL environment variable.
*/
func New(t testing.TB) *slog.Logger {
	return NewLvl(t, levelFromEnv(slog.LevelDebug))
}

func NewLvl(t testing.TB, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05.0000"))
			}
			return a
		},
	}))
}

/*
LoggerBuilder returns logger factory for test t, the configuration argument
is ignored.
*/
func LoggerBuilder(t testing.TB) func(*logger.LogConfiguration) (*slog.Logger, error) {
	return func(*logger.LogConfiguration) (*slog.Logger, error) { return New(t), nil }
}

// NOP returns logger which discards everything.
func NOP() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1 << 30)}))
}

func levelFromEnv(def slog.Level) slog.Level {
	v := os.Getenv("REFERENDA_TEST_LOG_LEVEL")
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
		return def
	}
	return lvl
}

// testWriter sends every record written by the handler to t.Log.
type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
