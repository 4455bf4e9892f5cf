package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// Options controls how the logger is built.
type Options struct {
	Level  string
	Format string    // "console" or "json"
	Out    io.Writer // defaults to os.Stderr
	File   string    // optional log file, appended to
}

// New creates a new Logger writing to out.
func New(level, format string, out io.Writer) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stderr
	}
	if format == "text" || format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &Logger{Logger: logger}
}

// Open builds a logger from opts. When opts.File is set, lines are written to
// both the main output and the file (always as JSON). The returned closer
// releases the file and must be called on exit.
func Open(opts Options) (*Logger, io.Closer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.File == "" {
		return New(opts.Level, opts.Format, out), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var primary io.Writer = out
	if opts.Format == "text" || opts.Format == "console" {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := New(opts.Level, "json", zerolog.MultiLevelWriter(primary, f))
	return l, f, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithProvider returns a new logger with the provider name attached
func (l *Logger) WithProvider(provider string) *Logger {
	return &Logger{
		Logger: l.With().Str("provider", provider).Logger(),
	}
}

// WithRun returns a new logger with the task run ID attached
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With().Str("run_id", runID).Logger(),
	}
}

// Transition logs a state change of a provider session.
func (l *Logger) Transition(from, to string) {
	l.Info().
		Str("event", "transition").
		Str("from", from).
		Str("to", to).
		Msg("session state changed")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
