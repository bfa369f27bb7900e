package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
)

// Logger is a *slog.Logger that carries the service and version of the
// binary on every record. It satisfies the Debug/Info/Warn/Error logger
// interfaces of the bridge, archive, lightify and mqtt packages.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by the logging section of config.yaml.
// Output "stderr" selects standard error; anything else writes to stdout.
func New(cfg config.LoggingConfig, service, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, service, version, w)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
//
// Parameters:
//   - cfg: Level ("debug", "info", "warn", "error") and format ("json" or "text")
//   - service: Binary name, e.g. "mqtt-lightify" or "mqtt-archive"
//   - version: Build version
//   - w: Destination
//
// Returns:
//   - *Logger: Logger with service and version attached
func NewWithWriter(cfg config.LoggingConfig, service, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With("service", service, "version", version)}
}

// Default is the logger used until the configuration is loaded: text at
// info level on stderr.
func Default(service string) *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, service, "dev")
}

// With returns a child logger with extra attributes, typically
// "component".
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// parseLevel maps a level name to slog. Unknown names mean info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
