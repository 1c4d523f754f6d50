// Package logging is the slog setup shared by the bridge, the striker and
// the CLI. Operational logs go to stderr, stdout or a rotated file; the
// strike and verification record lives in the separate audit trail (see
// AuditLogger).
//
// Attribute keys that look like credentials are masked before a record is
// formatted, and a request ID placed in a context.Context by the bridge is
// attached to every record logged through WithContext.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseLevel maps a configuration string onto a Level. "warning" is
// accepted as an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// ParseFormat maps "text" (or "") and "json" onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %s", s)
}

// Config describes one logger. The config package builds it from the
// [logging] and [audit] tables.
type Config struct {
	Level  Level
	Format Format

	// Output is one of stderr (the default), stdout, file, both or
	// discard. "both" writes to stderr and the rotated file.
	Output string

	// FilePath, MaxSize (MB), MaxAge (days), MaxBackups and Compress
	// only apply when Output includes the file.
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component is attached to every record as "component".
	Component string
}

// DefaultConfig logs warnings and errors as text on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelWarn,
		Format:     FormatText,
		Output:     "stderr",
		MaxSize:    10,
		MaxAge:     30,
		MaxBackups: 5,
		Compress:   true,
		Component:  "dotmatrix",
	}
}

// Logger is a slog.Logger that also owns its rotated file, if any, and
// hands out request IDs.
type Logger struct {
	*slog.Logger

	cfg     *Config
	rotator *FileRotator
	closeMu sync.Mutex
	seq     *atomic.Uint64
}

// Discard returns a logger that writes nowhere. Packages fall back to it
// when no logger is injected.
func Discard() *Logger {
	cfg := DefaultConfig()
	cfg.Output = "discard"
	return NewWithWriter(cfg, io.Discard)
}

// New opens the writer cfg.Output names and returns a logger over it.
// A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var rotator *FileRotator
	if out := strings.ToLower(cfg.Output); out == "file" || out == "both" {
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rotator = r
	}

	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		w = os.Stdout
	case "discard":
		w = io.Discard
	case "file":
		w = rotator
	case "both":
		w = io.MultiWriter(os.Stderr, rotator)
	default:
		w = os.Stderr
	}

	l := NewWithWriter(cfg, w)
	l.rotator = rotator
	return l, nil
}

// NewWithWriter returns a logger over w. cfg.Output and the file
// settings are ignored.
func NewWithWriter(cfg *Config, w io.Writer) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: maskSensitive,
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return &Logger{Logger: slog.New(h), cfg: cfg, seq: new(atomic.Uint64)}
}

var sensitiveKeys = []string{"password", "secret", "token", "credential", "private", "api_key"}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func maskSensitive(_ []string, a slog.Attr) slog.Attr {
	if shouldRedact(a.Key) {
		a.Value = slog.StringValue("[REDACTED]")
	}
	return a
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), cfg: l.cfg, rotator: l.rotator, seq: l.seq}
}

// WithComponent tags records with a sub-component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithContext tags records with the request ID carried by ctx. Without
// one, l is returned unchanged.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return l
	}
	return l.with("request_id", id)
}

// NewRequestID returns an ID unique within the process: component, start
// time and a sequence number shared by every logger derived from l.
func (l *Logger) NewRequestID() string {
	return fmt.Sprintf("%s-%d-%d", l.cfg.Component, time.Now().UnixNano(), l.seq.Add(1))
}

// Close closes the rotated file. Derived loggers share it, so only the
// logger returned by New should be closed.
func (l *Logger) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
