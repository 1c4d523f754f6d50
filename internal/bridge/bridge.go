// Package bridge is the boundary between callers (the CLI, or any other
// front end) and the write-path kernel.
//
// Every entry point re-validates its input with the bridge's own alphabet
// model before anything reaches the kernel, and the kernel validates again
// with a model of its own. Results are journaled, audited and counted here.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"dotmatrix/internal/alphabet"
	"dotmatrix/internal/config"
	"dotmatrix/internal/hexcodec"
	"dotmatrix/internal/journal"
	"dotmatrix/internal/logging"
	"dotmatrix/internal/metrics"
	"dotmatrix/internal/security"
	"dotmatrix/internal/striker"
)

// Errors
var (
	ErrExecutorUnavailable = errors.New("bridge: strike executor not available")
	ErrContaminated        = errors.New("bridge: input contains bytes outside the alphabet")
)

// ContaminationError reports every invalid byte found before any I/O.
type ContaminationError struct {
	Contaminants []alphabet.Contaminant
}

func (e *ContaminationError) Error() string {
	first := e.Contaminants[0]
	msg := fmt.Sprintf("byte %d at position %d: %s", first.Value, first.Position, first.Description)
	if n := len(e.Contaminants); n > 1 {
		msg += fmt.Sprintf(" (and %d more)", n-1)
	}
	return msg
}

// Is matches both ErrContaminated and alphabet.ErrInvalidByte.
func (e *ContaminationError) Is(target error) bool {
	return target == ErrContaminated || target == alphabet.ErrInvalidByte
}

// Journal is the subset of journal.Store the bridge writes to.
type Journal interface {
	RecordStrike(ctx context.Context, r *journal.StrikeRecord) (int64, error)
	RecordVerification(ctx context.Context, r *journal.VerificationRecord) (int64, error)
}

// Preview is the result of a dry run.
type Preview struct {
	HexPreview       string                 `json:"hex_preview"`
	WouldContaminate bool                   `json:"would_contaminate"`
	Contaminants     []alphabet.Contaminant `json:"contaminants"`
	ByteCount        int                    `json:"byte_count"`
}

// Verification is the result of re-reading a substrate from disk.
type Verification struct {
	Path         string                 `json:"path"`
	Clean        bool                   `json:"clean"`
	Contaminants []alphabet.Contaminant `json:"contaminants"`
	Hexdump      string                 `json:"hexdump"`
	Size         int                    `json:"size"`
	Digest       string                 `json:"digest"`
}

// Bridge holds the boundary configuration. It is safe for concurrent use
// as long as callers strike to distinct paths.
type Bridge struct {
	alphabetCfg alphabet.Config
	model       *alphabet.Model
	paths       *security.PathValidator
	outputDir   string
	executor    string
	fileMode    os.FileMode
	lock        bool
	syncEach    bool

	log     *logging.Logger
	audit   *logging.AuditLogger
	journal Journal
	metrics *metrics.StrikeMetrics

	probe func(ctx context.Context, executor string) bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPathValidator replaces the default destination validator.
func WithPathValidator(v *security.PathValidator) Option {
	return func(b *Bridge) { b.paths = v }
}

// WithOutputDir joins relative destinations onto dir.
func WithOutputDir(dir string) Option {
	return func(b *Bridge) { b.outputDir = dir }
}

// WithExecutor names an external executor that must answer --version for
// CheckAvailable to succeed.
func WithExecutor(name string) Option {
	return func(b *Bridge) { b.executor = name }
}

// WithFileMode sets the substrate permission bits.
func WithFileMode(mode os.FileMode) Option {
	return func(b *Bridge) { b.fileMode = mode }
}

// WithLock controls the kernel's exclusive lock.
func WithLock(lock bool) Option {
	return func(b *Bridge) { b.lock = lock }
}

// WithSyncEachStrike makes the kernel fsync after every byte.
func WithSyncEachStrike(sync bool) Option {
	return func(b *Bridge) { b.syncEach = sync }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithAuditLogger sets the audit trail. A nil logger disables auditing.
func WithAuditLogger(a *logging.AuditLogger) Option {
	return func(b *Bridge) { b.audit = a }
}

// WithJournal records outcomes in j.
func WithJournal(j Journal) Option {
	return func(b *Bridge) { b.journal = j }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.StrikeMetrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New builds a Bridge whose boundary model is constructed from cfg.
func New(cfg alphabet.Config, opts ...Option) (*Bridge, error) {
	model, err := alphabet.New(cfg)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		alphabetCfg: cfg,
		model:       model,
		paths:       security.DefaultPathValidator(),
		fileMode:    security.PermSubstrate,
		lock:        true,
		probe:       probeExecutor,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logging.Discard()
	}
	b.log = b.log.WithComponent("bridge")
	if b.metrics == nil {
		b.metrics = metrics.NewStrikeMetrics(nil)
	}
	return b, nil
}

// FromConfig builds a Bridge from a loaded configuration. Explicit opts
// are applied after the configured ones.
func FromConfig(cfg *config.Config, opts ...Option) (*Bridge, error) {
	mode, err := cfg.FileMode()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithPathValidator(cfg.PathValidator()),
		WithOutputDir(cfg.Paths.OutputDir),
		WithExecutor(cfg.Kernel.Executor),
		WithFileMode(mode),
		WithLock(cfg.Kernel.Lock),
		WithSyncEachStrike(cfg.Kernel.SyncEachStrike),
	}
	return New(cfg.Alphabet, append(base, opts...)...)
}

// Metrics returns the metrics sink.
func (b *Bridge) Metrics() *metrics.StrikeMetrics {
	return b.metrics
}

// CheckAvailable reports whether the strike executor can run. Without a
// configured external executor the in-process kernel is always available.
// It never touches a substrate.
func (b *Bridge) CheckAvailable(ctx context.Context) bool {
	if b.executor == "" {
		return true
	}
	return b.probe(ctx, b.executor)
}

func probeExecutor(ctx context.Context, executor string) bool {
	path, err := exec.LookPath(executor)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, path, "--version").Run() == nil
}

// PreviewStrike is a dry run over values. It never touches the filesystem.
// Values outside the byte range are reported as contaminants.
func (b *Bridge) PreviewStrike(values []int) *Preview {
	contaminants := b.model.ContaminantsInts(values)
	if contaminants == nil {
		contaminants = []alphabet.Contaminant{}
	}
	return &Preview{
		HexPreview:       hexcodec.DumpValues(values),
		WouldContaminate: len(contaminants) > 0,
		Contaminants:     contaminants,
		ByteCount:        len(values),
	}
}

func (b *Bridge) resolve(path string) string {
	if b.outputDir == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.outputDir, path)
}

// destination validates the caller's path as given and again once it has
// been placed under the output directory. Join cleans ".." components
// away, so the raw text is the only place a traversal is still visible.
func (b *Bridge) destination(path string) (string, error) {
	raw := &security.PathValidator{MaxPathLength: b.paths.MaxPathLength}
	if _, err := raw.ValidatePath(path); err != nil {
		return "", err
	}
	return b.paths.ValidatePath(b.resolve(path))
}

// ExecuteStrike writes values to a new substrate at path.
//
// The destination is checked first, then every value against the boundary
// alphabet; either failure returns before any I/O. The kernel then
// validates each byte again as it writes. On a kernel failure the returned
// report describes what reached the disk.
func (b *Bridge) ExecuteStrike(ctx context.Context, values []int, path string) (*striker.Report, error) {
	ctx = b.withRequestID(ctx)
	log := b.log.WithContext(ctx)
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dest, err := b.destination(path)
	if err != nil {
		b.rejected(ctx, path, len(values), nil, err)
		return nil, err
	}

	if contaminants := b.model.ContaminantsInts(values); len(contaminants) > 0 {
		err := &ContaminationError{Contaminants: contaminants}
		b.rejected(ctx, dest, len(values), contaminants, err)
		return nil, err
	}

	if !b.CheckAvailable(ctx) {
		err := fmt.Errorf("%w: %s", ErrExecutorUnavailable, b.executor)
		b.rejected(ctx, dest, len(values), nil, err)
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), security.PermPublicDir); err != nil {
		err = fmt.Errorf("%w: create parent of %s: %w", striker.ErrIO, dest, err)
		b.rejected(ctx, dest, len(values), nil, err)
		return nil, err
	}

	// The kernel gets a model of its own, built from the same configuration.
	kernelModel, err := alphabet.New(b.alphabetCfg)
	if err != nil {
		return nil, err
	}

	b.metrics.SessionStarted(len(values))
	session := striker.New(dest, kernelModel,
		striker.WithFileMode(b.fileMode),
		striker.WithLock(b.lock),
		striker.WithSyncEachStrike(b.syncEach),
		striker.WithLogger(log),
	)

	report, err := b.runSession(ctx, session, values)
	b.metrics.SessionEnded(time.Since(start), report.Strikes, report.State == striker.StateSealed.String(), len(report.Contaminants))
	b.finished(ctx, len(values), report, err)

	if err != nil {
		log.Warn("strike failed", "path", dest, "strikes", report.Strikes, "error", err)
		return report, err
	}
	log.Info("strike sealed", "path", dest, "strikes", report.Strikes)
	return report, nil
}

// runSession strikes values in order. Cancelling ctx aborts the session
// before the next byte.
func (b *Bridge) runSession(ctx context.Context, s *striker.Session, values []int) (*striker.Report, error) {
	if err := s.Start(); err != nil {
		return s.Report(), err
	}
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			_ = s.Abort()
			return s.Report(), err
		}
		if err := s.Strike(v); err != nil {
			return s.Report(), err
		}
	}
	report, err := s.Seal()
	if err != nil {
		return s.Report(), err
	}
	return report, nil
}

func (b *Bridge) withRequestID(ctx context.Context) context.Context {
	if logging.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return logging.ContextWithRequestID(ctx, b.log.NewRequestID())
}

func (b *Bridge) rejected(ctx context.Context, path string, requested int, contaminants []alphabet.Contaminant, cause error) {
	b.log.WithContext(ctx).Warn("strike rejected", "path", path, "error", cause)
	b.metrics.Rejected(len(contaminants))
	if err := b.audit.LogRejection(ctx, path, cause); err != nil {
		b.log.Error("audit write failed", "error", err)
	}
	b.record(ctx, &journal.StrikeRecord{
		RequestID:    logging.RequestIDFromContext(ctx),
		Path:         path,
		Requested:    requested,
		State:        "rejected",
		Contaminated: len(contaminants) > 0,
		Contaminants: contaminants,
		Error:        cause.Error(),
	})
}

func (b *Bridge) finished(ctx context.Context, requested int, report *striker.Report, cause error) {
	if err := b.audit.LogStrike(ctx, report.Path, report.Strikes, cause); err != nil {
		b.log.Error("audit write failed", "error", err)
	}
	rec := &journal.StrikeRecord{
		RequestID:    logging.RequestIDFromContext(ctx),
		Path:         report.Path,
		Requested:    requested,
		Strikes:      report.Strikes,
		State:        report.State,
		Contaminated: report.Contaminated,
		Contaminants: report.Contaminants,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	b.record(ctx, rec)
}

// record journals r. A journal failure is logged and never fails the
// strike, whose bytes are already on disk.
func (b *Bridge) record(ctx context.Context, r *journal.StrikeRecord) {
	if b.journal == nil {
		return
	}
	if _, err := b.journal.RecordStrike(ctx, r); err != nil {
		b.log.Error("journal write failed", "path", r.Path, "error", err)
	}
}

// VerifySubstrate re-reads path and re-validates every byte against the
// boundary alphabet.
func (b *Bridge) VerifySubstrate(ctx context.Context, path string) (*Verification, error) {
	ctx = b.withRequestID(ctx)
	start := time.Now()

	data, err := os.ReadFile(b.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	contaminants := b.model.Contaminants(data)
	if contaminants == nil {
		contaminants = []alphabet.Contaminant{}
	}
	sum := blake3.Sum256(data)
	v := &Verification{
		Path:         b.resolve(path),
		Clean:        len(contaminants) == 0,
		Contaminants: contaminants,
		Hexdump:      hexcodec.Dump(data),
		Size:         len(data),
		Digest:       hexcodec.Encode(sum[:]),
	}

	b.metrics.Verified(time.Since(start), v.Clean, len(contaminants))
	b.log.WithContext(ctx).Info("substrate verified", "path", v.Path, "clean", v.Clean, "size", v.Size)

	details := map[string]any{"size": v.Size, "digest": v.Digest, "contaminants": len(contaminants)}
	if err := b.audit.LogVerification(ctx, v.Path, v.Clean, details); err != nil {
		b.log.Error("audit write failed", "error", err)
	}
	if b.journal != nil {
		_, err := b.journal.RecordVerification(ctx, &journal.VerificationRecord{
			Path:         v.Path,
			Size:         int64(v.Size),
			Clean:        v.Clean,
			Digest:       v.Digest,
			Contaminants: v.Contaminants,
		})
		if err != nil {
			b.log.Error("journal write failed", "path", v.Path, "error", err)
		}
	}
	return v, nil
}

// ReadSubstrateHex is VerifySubstrate under the name display callers use.
func (b *Bridge) ReadSubstrateHex(ctx context.Context, path string) (*Verification, error) {
	return b.VerifySubstrate(ctx, path)
}

// Summary renders a one-line description of contaminants for terminals.
func Summary(contaminants []alphabet.Contaminant) string {
	parts := make([]string, 0, len(contaminants))
	for _, c := range contaminants {
		parts = append(parts, fmt.Sprintf("@%d=%d (%s)", c.Position, c.Value, c.Description))
	}
	return strings.Join(parts, ", ")
}
