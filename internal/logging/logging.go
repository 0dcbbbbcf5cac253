// Package logging configures the shared zerolog logger. Every user-visible
// outcome is logged here so the UI log area and the console see the same
// lines.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. When extra is non-nil (the UI log sink),
// lines are duplicated to it.
func New(level string, extra io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	var out io.Writer = console
	if extra != nil {
		out = zerolog.MultiLevelWriter(console, extra)
	}

	return zerolog.New(out).
		Level(parseLevel(level)).
		With().Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Buffer is an io.Writer that keeps appended log lines in memory for the
// UI log area. It is safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewBuffer returns a Buffer retaining at most max lines (0 means 1000).
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 1000
	}
	return &Buffer{max: max}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := strings.TrimRight(string(p), "\n")
	if line != "" {
		b.lines = append(b.lines, line)
		if len(b.lines) > b.max {
			b.lines = b.lines[len(b.lines)-b.max:]
		}
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
