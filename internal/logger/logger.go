// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

// L is the root logger. Components derive their own via For.
var L = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// Setup replaces L with a handler writing to w. Format "text" selects the
// human readable handler, anything else JSON.
func Setup(w io.Writer, format string) {
	opts := &slog.HandlerOptions{Level: levelVar}
	if strings.EqualFold(format, "text") {
		L = slog.New(slog.NewTextHandler(w, opts))
		return
	}
	L = slog.New(slog.NewJSONHandler(w, opts))
}

// For returns a logger tagged with the given component name.
func For(component string) *slog.Logger {
	return L.With("component", component)
}
