// Package alphabet defines the byte alphabet every artifact written by
// dotmatrix must stay within.
//
// A Model is built once from an immutable Config and is safe to share. Each
// layer that needs to judge bytes (CLI parsing, the bridge boundary, the
// striker kernel) constructs its own Model so that no layer depends on the
// result of another layer's check.
package alphabet

import (
	"errors"
	"fmt"
)

// Default constraint values.
const (
	DefaultMaxByte = 127
	NBSP           = 160
	Continuation   = 194
)

// Description classifies why a byte is outside the alphabet.
type Description string

// Descriptions in tie-break priority order.
const (
	DescNBSP         Description = "forbidden non-breaking-space"
	DescContinuation Description = "forbidden continuation marker"
	DescUpperBound   Description = "exceeds upper bound"
	DescNegative     Description = "negative value"
)

// Errors
var (
	ErrInvalidByte   = errors.New("alphabet: byte outside alphabet")
	ErrInvalidConfig = errors.New("alphabet: invalid configuration")
)

// Forbidden is a value rejected even when it falls below MaxByte.
type Forbidden struct {
	Value       int         `toml:"value" json:"value" yaml:"value"`
	Description Description `toml:"description" json:"description" yaml:"description"`
}

// Config is the alphabet configuration. Treat it as immutable once passed to New.
type Config struct {
	// MaxByte is the largest valid value, inclusive.
	MaxByte int `toml:"max_byte" json:"max_byte" yaml:"max_byte"`

	// Forbidden values are rejected in addition to the upper bound check.
	Forbidden []Forbidden `toml:"forbidden" json:"forbidden" yaml:"forbidden"`
}

// DefaultConfig returns the reference 7-bit alphabet with the NBSP and
// continuation-marker codes forbidden.
func DefaultConfig() Config {
	return Config{
		MaxByte: DefaultMaxByte,
		Forbidden: []Forbidden{
			{Value: NBSP, Description: DescNBSP},
			{Value: Continuation, Description: DescContinuation},
		},
	}
}

// Validate checks that the configuration describes a subset of [0,255].
func (c Config) Validate() error {
	if c.MaxByte < 0 || c.MaxByte > 255 {
		return fmt.Errorf("%w: max_byte %d outside [0,255]", ErrInvalidConfig, c.MaxByte)
	}
	seen := make(map[int]bool, len(c.Forbidden))
	for _, f := range c.Forbidden {
		if f.Value < 0 || f.Value > 255 {
			return fmt.Errorf("%w: forbidden value %d outside [0,255]", ErrInvalidConfig, f.Value)
		}
		if seen[f.Value] {
			return fmt.Errorf("%w: forbidden value %d listed twice", ErrInvalidConfig, f.Value)
		}
		seen[f.Value] = true
	}
	return nil
}

// ValidationError reports a single byte rejected by a Model.
type ValidationError struct {
	Position    int
	Value       int
	Description Description
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("alphabet: byte %d (0x%02X) at position %d: %s", e.Value, e.Value&0xff, e.Position, e.Description)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidByte }

// Contaminant is one offending byte found by a scan.
type Contaminant struct {
	Position    int         `json:"position"`
	Value       int         `json:"value"`
	Description Description `json:"description"`
}

// Model answers membership questions for one alphabet.
type Model struct {
	maxByte   int
	forbidden [256]Description
}

// New builds a Model from cfg.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{maxByte: cfg.MaxByte}
	for _, f := range cfg.Forbidden {
		desc := f.Description
		if desc == "" {
			desc = Description(fmt.Sprintf("forbidden value %d", f.Value))
		}
		m.forbidden[f.Value] = desc
	}
	return m, nil
}

// Default returns a Model for DefaultConfig.
func Default() *Model {
	m, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return m
}

// MaxByte returns the inclusive upper bound.
func (m *Model) MaxByte() int { return m.maxByte }

// IsForbidden reports whether b is in the forbidden set.
func (m *Model) IsForbidden(b int) bool {
	return b >= 0 && b <= 255 && m.forbidden[b] != ""
}

// IsValid reports whether b is in [0, MaxByte] and not forbidden.
func (m *Model) IsValid(b int) bool {
	if b < 0 || b > m.maxByte {
		return false
	}
	return m.forbidden[b] == ""
}

// Describe classifies an invalid byte. Forbidden membership wins over the
// range checks. Valid bytes yield "".
func (m *Model) Describe(b int) Description {
	if m.IsForbidden(b) {
		return m.forbidden[b]
	}
	if b > m.maxByte {
		return DescUpperBound
	}
	if b < 0 {
		return DescNegative
	}
	return ""
}

// Check returns a *ValidationError when b is not valid.
func (m *Model) Check(position, b int) error {
	if m.IsValid(b) {
		return nil
	}
	return &ValidationError{Position: position, Value: b, Description: m.Describe(b)}
}

// Contaminants scans bs and returns one record per invalid byte in
// ascending position order.
func (m *Model) Contaminants(bs []byte) []Contaminant {
	var out []Contaminant
	for i, b := range bs {
		if !m.IsValid(int(b)) {
			out = append(out, Contaminant{Position: i, Value: int(b), Description: m.Describe(int(b))})
		}
	}
	return out
}

// ContaminantsInts is Contaminants over boundary values that may fall
// outside the byte range.
func (m *Model) ContaminantsInts(values []int) []Contaminant {
	var out []Contaminant
	for i, v := range values {
		if !m.IsValid(v) {
			out = append(out, Contaminant{Position: i, Value: v, Description: m.Describe(v)})
		}
	}
	return out
}
