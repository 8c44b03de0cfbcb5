package common

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// LogLevel returns def unless debug logging was requested in the environment.
func LogLevel(def slog.Level) slog.Level {
	if os.Getenv(DEBUG_ENV) != "" {
		return slog.LevelDebug
	}
	return def
}

// SetupLogging installs a tint handler writing to w as the default logger.
func SetupLogging(w *os.File, level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !IsTerminal(w),
		}),
	))
}
