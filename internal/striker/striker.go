// Package striker is the write path: a small state machine that appends
// validated bytes to a freshly created substrate one at a time.
//
// A Session never writes a byte its own alphabet.Model has not accepted,
// regardless of what callers checked beforehand. The first rejected byte
// aborts the session; bytes already written stay on disk and the caller
// must treat the artifact as contaminated.
package striker

import (
	"errors"
	"fmt"
	"os"

	"dotmatrix/internal/alphabet"
	"dotmatrix/internal/logging"
	"dotmatrix/internal/security"
)

// Errors
var (
	ErrInvalidState = errors.New("striker: operation not allowed in current state")
	ErrIO           = errors.New("striker: i/o failure")
)

// Report summarizes a finished session.
type Report struct {
	Path         string                 `json:"path"`
	State        string                 `json:"state"`
	Head         int64                  `json:"head"`
	Strikes      int                    `json:"strikes"`
	Contaminated bool                   `json:"contaminated"`
	Contaminants []alphabet.Contaminant `json:"contaminants,omitempty"`
}

type options struct {
	perm     os.FileMode
	lock     bool
	syncEach bool
	logger   *logging.Logger
}

// Option configures a Session.
type Option func(*options)

// WithFileMode sets the permission bits of the created substrate.
func WithFileMode(perm os.FileMode) Option {
	return func(o *options) { o.perm = perm }
}

// WithLock controls whether the substrate is exclusively locked while open.
func WithLock(lock bool) Option {
	return func(o *options) { o.lock = lock }
}

// WithSyncEachStrike fsyncs after every accepted byte.
func WithSyncEachStrike(sync bool) Option {
	return func(o *options) { o.syncEach = sync }
}

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Session owns one substrate for its whole lifetime. It is not safe for
// concurrent use.
type Session struct {
	path  string
	model *alphabet.Model
	opts  options
	log   *logging.Logger

	file         *os.File
	state        State
	head         int64
	strikes      int
	contaminated bool
	contaminants []alphabet.Contaminant
}

// New returns a Closed session for path. Nothing touches the filesystem
// until Start.
func New(path string, model *alphabet.Model, opts ...Option) *Session {
	o := options{perm: security.PermSubstrate, lock: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	return &Session{
		path:  path,
		model: model,
		opts:  o,
		log:   o.logger.WithComponent("striker"),
		state: StateClosed,
	}
}

// Open creates and starts a session in one step.
func Open(path string, model *alphabet.Model, opts ...Option) (*Session, error) {
	s := New(path, model, opts...)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) transition(to State) error {
	if !isAllowedTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, to)
	}
	s.state = to
	return nil
}

// Start creates the substrate exclusively and resets the counters.
// A creation failure aborts the session and is reported as ErrIO; no
// byte was judged, so the session is not contaminated.
func (s *Session) Start() error {
	if s.state != StateClosed {
		return fmt.Errorf("%w: start in %s", ErrInvalidState, s.state)
	}

	f, err := security.CreateExclusive(s.path, s.opts.perm, s.opts.lock)
	if err != nil {
		s.state = StateAborted
		return fmt.Errorf("%w: create %s: %w", ErrIO, s.path, err)
	}

	s.file = f
	s.head = 0
	s.strikes = 0
	s.contaminated = false
	s.contaminants = nil
	s.log.Info("session opened", "path", s.path)
	return s.transition(StateOpen)
}

// Strike validates b and appends it. An invalid byte is recorded as a
// contaminant, never written, and aborts the session.
func (s *Session) Strike(b int) error {
	if s.state != StateOpen {
		return fmt.Errorf("%w: strike in %s", ErrInvalidState, s.state)
	}

	if err := s.model.Check(int(s.head), b); err != nil {
		var verr *alphabet.ValidationError
		if errors.As(err, &verr) {
			s.contaminants = append(s.contaminants, alphabet.Contaminant{
				Position:    verr.Position,
				Value:       verr.Value,
				Description: verr.Description,
			})
		}
		s.contaminated = true
		s.log.Warn("byte rejected", "position", s.head, "value", b)
		s.abort()
		return err
	}

	if _, err := s.file.Write([]byte{byte(b)}); err != nil {
		s.contaminated = true
		s.abort()
		return fmt.Errorf("%w: write at %d: %w", ErrIO, s.head, err)
	}
	if s.opts.syncEach {
		if err := s.file.Sync(); err != nil {
			s.contaminated = true
			s.abort()
			return fmt.Errorf("%w: sync at %d: %w", ErrIO, s.head, err)
		}
	}

	s.head++
	s.strikes++
	s.log.Debug("strike", "position", s.head-1, "value", b)
	return s.transition(StateOpen)
}

// StrikeSequence strikes values in order and stops at the first failure.
// Bytes accepted before the failure are not rolled back.
func (s *Session) StrikeSequence(values []int) error {
	for _, v := range values {
		if err := s.Strike(v); err != nil {
			return err
		}
	}
	return nil
}

// StrikeBytes is StrikeSequence over a byte slice.
func (s *Session) StrikeBytes(bs []byte) error {
	for _, b := range bs {
		if err := s.Strike(int(b)); err != nil {
			return err
		}
	}
	return nil
}

// Seal flushes and closes the substrate.
func (s *Session) Seal() (*Report, error) {
	if s.state != StateOpen {
		return nil, fmt.Errorf("%w: seal in %s", ErrInvalidState, s.state)
	}

	if err := s.file.Sync(); err != nil {
		s.contaminated = true
		s.abort()
		return s.Report(), fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	if err := s.release(); err != nil {
		s.contaminated = true
		s.state = StateAborted
		return s.Report(), fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	if err := s.transition(StateSealed); err != nil {
		return nil, err
	}

	s.log.Info("session sealed", "path", s.path, "strikes", s.strikes)
	return s.Report(), nil
}

// Abort ends the session early. Whatever was written stays on disk.
// Aborting an aborted session is a no-op.
func (s *Session) Abort() error {
	switch s.state {
	case StateAborted:
		return nil
	case StateSealed:
		return fmt.Errorf("%w: abort in %s", ErrInvalidState, s.state)
	}
	return s.abort()
}

func (s *Session) abort() error {
	err := s.release()
	s.state = StateAborted
	s.log.Info("session aborted", "path", s.path, "strikes", s.strikes)
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return nil
}

func (s *Session) release() error {
	if s.file == nil {
		return nil
	}
	if s.opts.lock {
		_ = security.UnlockFile(s.file)
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Report returns a snapshot of the session counters.
func (s *Session) Report() *Report {
	r := &Report{
		Path:         s.path,
		State:        s.state.String(),
		Head:         s.head,
		Strikes:      s.strikes,
		Contaminated: s.contaminated,
	}
	if len(s.contaminants) > 0 {
		r.Contaminants = append([]alphabet.Contaminant(nil), s.contaminants...)
	}
	return r
}

// Path returns the substrate path.
func (s *Session) Path() string { return s.path }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Head returns the number of bytes written.
func (s *Session) Head() int64 { return s.head }

// Strikes returns the number of accepted bytes.
func (s *Session) Strikes() int { return s.strikes }

// Contaminated reports whether the error flag was set during the session.
func (s *Session) Contaminated() bool { return s.contaminated }

// Contaminants returns the rejected bytes recorded so far.
func (s *Session) Contaminants() []alphabet.Contaminant {
	return append([]alphabet.Contaminant(nil), s.contaminants...)
}
