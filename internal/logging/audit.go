package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// AuditEventType names what an audit line records.
type AuditEventType string

const (
	AuditEventStrikeExecuted AuditEventType = "strike_executed"
	AuditEventStrikeRejected AuditEventType = "strike_rejected"
	AuditEventVerification   AuditEventType = "verification"
	AuditEventConfigChange   AuditEventType = "config_change"
)

// AuditEvent is one JSON line of the audit trail. Result is "success",
// "failure" or "denied"; denied strikes never reached the disk.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig is the [audit] table after config.Load has expanded
// its paths. Sizes are in MB and ages in days, as for Config.
type AuditLoggerConfig struct {
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool
	Component  string
}

// AuditLogger appends AuditEvents to a writer, one JSON object per line.
// The zero of *AuditLogger (nil) accepts and drops every event, so callers
// never check whether auditing is enabled.
type AuditLogger struct {
	component string

	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewAuditLogger opens a rotated audit file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		return nil, errors.New("audit: no configuration")
	}
	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return &AuditLogger{component: cfg.Component, w: rotator, closer: rotator}, nil
}

// NewAuditLoggerWithWriter creates an AuditLogger writing to w.
func NewAuditLoggerWithWriter(component string, w io.Writer) *AuditLogger {
	return &AuditLogger{component: component, w: w}
}

// Log writes an audit event. A nil AuditLogger discards events.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = a.component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// LogStrike records the outcome of a strike against path.
func (a *AuditLogger) LogStrike(ctx context.Context, path string, strikes int, err error) error {
	event := AuditEvent{
		EventType: AuditEventStrikeExecuted,
		Action:    "strike",
		Resource:  path,
		Result:    result(err == nil),
		Details:   map[string]any{"strikes": strikes},
	}
	if err != nil {
		event.Error = err.Error()
	}
	return a.Log(ctx, event)
}

// LogRejection records a strike refused before any I/O.
func (a *AuditLogger) LogRejection(ctx context.Context, path string, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventStrikeRejected,
		Action:    "strike",
		Resource:  path,
		Result:    "denied",
		Error:     err.Error(),
	})
}

// LogVerification records a substrate verification.
func (a *AuditLogger) LogVerification(ctx context.Context, path string, clean bool, details map[string]any) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventVerification,
		Action:    "verify",
		Resource:  path,
		Result:    result(clean),
		Details:   details,
	})
}

// Config change actions.
const (
	ConfigCreated  = "config_created"
	ConfigReloaded = "config_reloaded"
)

// LogConfigChange records that the configuration file at path was written
// or picked up again. action is ConfigCreated or ConfigReloaded.
func (a *AuditLogger) LogConfigChange(ctx context.Context, path, action string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    action,
		Resource:  path,
		Result:    "success",
	})
}

// Close closes the underlying file, if the logger owns one.
func (a *AuditLogger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
