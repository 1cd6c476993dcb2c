package config

import (
	"io"
	"log/slog"
	"os"
)

// SetupLog configures a global slog logger on stderr whose level follows LOG_LEVEL changes.
func SetupLog(cfg *Config) *slog.LevelVar {
	return setupLog(cfg, os.Stderr)
}

func setupLog(cfg *Config, w io.Writer) *slog.LevelVar {
	var lv slog.LevelVar
	lv.Set(cfg.GetLogLevel())
	cfg.OnLogLevelChange(func(level slog.Level) { lv.Set(level) })

	opts := &slog.HandlerOptions{Level: &lv}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.GetLogFormat() == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return &lv
}
