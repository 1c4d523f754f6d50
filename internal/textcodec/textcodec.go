// Package textcodec converts between text and single-byte code points.
//
// Only characters whose code point fits in one byte (0-255) can be
// represented. Conversions are all-or-nothing: the first out-of-range
// character fails the whole call.
package textcodec

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// ErrOutOfRange is returned when a code point does not fit in one byte.
var ErrOutOfRange = errors.New("textcodec: code point outside single-byte range")

// RangeError identifies the offending character.
type RangeError struct {
	// Index is the character (not byte) index in the input.
	Index int
	Value int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("textcodec: code point %d at index %d outside [0,255]", e.Value, e.Index)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// ToCodePoints returns one byte per character of s.
func ToCodePoints(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	i := 0
	for _, r := range s {
		if r > 0xff {
			return nil, &RangeError{Index: i, Value: int(r)}
		}
		out = append(out, byte(r))
		i++
	}
	return out, nil
}

// FromCodePoints builds a string from code points, each of which must be
// in [0,255].
func FromCodePoints(points []int) (string, error) {
	runes := make([]rune, len(points))
	for i, p := range points {
		if p < 0 || p > 0xff {
			return "", &RangeError{Index: i, Value: p}
		}
		runes[i] = rune(p)
	}
	return string(runes), nil
}

// FromBytes is FromCodePoints for an already byte-sized sequence.
func FromBytes(bs []byte) string {
	runes := make([]rune, len(bs))
	for i, b := range bs {
		runes[i] = rune(b)
	}
	return string(runes)
}

// IsASCII reports whether every character is in [0,127].
func IsASCII(s string) bool {
	for _, r := range s {
		if r > 0x7f {
			return false
		}
	}
	return true
}

// IsPrintableASCII reports whether every character is in [32,126].
// The empty string is printable.
func IsPrintableASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

var (
	sqlReplacer  = strings.NewReplacer("'", "''")
	htmlReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
)

// EscapeSQL doubles single quotes for embedding in a SQL string literal.
// It is not a substitute for parameterized queries or byte validation.
func EscapeSQL(s string) string {
	return sqlReplacer.Replace(s)
}

// EscapeHTML escapes the five HTML-significant characters.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

// EscapeJS escapes s for a JavaScript string literal.
func EscapeJS(s string) string {
	return template.JSEscapeString(s)
}
