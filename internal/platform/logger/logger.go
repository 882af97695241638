package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output keeps audit
// log lines machine-parseable for downstream collectors.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
