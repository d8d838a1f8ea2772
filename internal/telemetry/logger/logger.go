package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level, encoding and destination of a logger.
type Config struct {
	Level     string    // debug, info, warn or error
	Format    string    // json (default) or text
	Output    io.Writer // os.Stderr when nil
	AddSource bool
}

// DefaultConfig logs info and above as JSON to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every logger from New so SetLevel takes effect
// process-wide, including in connection-scoped children.
var level slog.LevelVar

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func lookupLevel(name string) (slog.Level, bool) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// New builds a logger that redacts secrets. Unknown levels mean info and
// unknown formats mean JSON.
func New(cfg Config) *slog.Logger {
	SetLevel(cfg.Level)

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     &level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetLevel changes the level of every logger made by New.
func SetLevel(name string) {
	l, ok := lookupLevel(name)
	if !ok {
		l = slog.LevelInfo
	}
	level.Set(l)
}

// GetLevel returns the current level name in lower case.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

// ValidLevel reports whether name is a level SetLevel understands.
func ValidLevel(name string) bool {
	_, ok := lookupLevel(name)
	return ok
}

// SetDefault makes l the slog default. A nil l is ignored.
func SetDefault(l *slog.Logger) {
	if l != nil {
		slog.SetDefault(l)
	}
}

// Discard returns a logger that writes nothing.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
