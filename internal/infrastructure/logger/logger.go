package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
)

const colorReset = "\033[0m"

var levelColors = []struct {
	marker []byte
	color  string
}{
	{[]byte("level=DEBUG"), "\033[36m"},
	{[]byte("level=INFO"), "\033[32m"},
	{[]byte("level=WARN"), "\033[33m"},
	{[]byte("level=ERROR"), "\033[31m"},
}

// colorWriter colors the level marker of slog.TextHandler lines written to a terminal.
type colorWriter struct {
	w io.Writer
}

func (cw colorWriter) Write(p []byte) (int, error) {
	line := p
	for _, lc := range levelColors {
		if bytes.Contains(line, lc.marker) {
			colored := append([]byte(lc.color), lc.marker...)
			colored = append(colored, colorReset...)
			line = bytes.Replace(line, lc.marker, colored, 1)
			break
		}
	}
	if _, err := cw.w.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// isDevelopment reports whether env should get human-readable output.
func isDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "local", "dev", "development":
		return true
	}
	return false
}

// New builds a structured slog logger on stdout honoring the configured level and environment.
// Development environments get text output, colored on a terminal; everything else gets JSON.
func New(appName, level, environment string) *slog.Logger {
	return NewWithWriter(os.Stdout, appName, level, environment)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, appName, level, environment string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}

	var handler slog.Handler
	if isDevelopment(environment) {
		if isTerminal(w) {
			w = colorWriter{w: w}
		}
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("app", appName)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
