// Package hexcodec converts between byte sequences and hex strings.
//
// Decoding is strict about length and alphabet but tolerant of case and of
// surrounding whitespace. Comparisons that gate write decisions run in time
// independent of where the first mismatch occurs.
package hexcodec

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"dotmatrix/internal/textcodec"
)

// Errors
var (
	ErrInvalidLength    = errors.New("hexcodec: odd hex length")
	ErrInvalidCharacter = errors.New("hexcodec: invalid hex character")
	ErrExceedsTarget    = errors.New("hexcodec: input exceeds target length")
	ErrLengthMismatch   = errors.New("hexcodec: operand lengths differ")
)

// Encode returns two lowercase hex digits per byte.
func Encode(bs []byte) string {
	return hex.EncodeToString(bs)
}

// EncodeUpper is Encode with uppercase digits.
func EncodeUpper(bs []byte) string {
	return strings.ToUpper(hex.EncodeToString(bs))
}

// EncodeSpaced separates byte pairs with a single space.
func EncodeSpaced(bs []byte) string {
	return spaced(Encode(bs))
}

// EncodeSpacedUpper is EncodeSpaced with uppercase digits.
func EncodeSpacedUpper(bs []byte) string {
	return spaced(EncodeUpper(bs))
}

func spaced(compact string) string {
	if compact == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(compact) + len(compact)/2)
	for i := 0; i < len(compact); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(compact[i : i+2])
	}
	return b.String()
}

// Decode parses s after trimming surrounding whitespace. An empty string
// decodes to an empty, non-nil slice.
func Decode(s string) ([]byte, error) {
	h := strings.TrimSpace(s)
	if len(h)%2 != 0 {
		return nil, fmt.Errorf("%w: %d characters", ErrInvalidLength, len(h))
	}
	for i := 0; i < len(h); i++ {
		if !isHexDigit(h[i]) {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidCharacter, h[i], i)
		}
	}
	out, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// ConstantTimeEqual compares two hex strings ignoring case and surrounding
// whitespace. Case folding follows strings.ToLower, so non-hex input
// compares the same way Unicode case-insensitive equality would.
func ConstantTimeEqual(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ConstantTimeEqualBytes reports whether a and b are identical. Unequal
// lengths are unequal.
func ConstantTimeEqualBytes(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ByteLength returns the number of bytes s decodes to. It fails exactly
// when Decode would fail on length.
func ByteLength(s string) (int, error) {
	h := strings.TrimSpace(s)
	if len(h)%2 != 0 {
		return 0, fmt.Errorf("%w: %d characters", ErrInvalidLength, len(h))
	}
	return len(h) / 2, nil
}

// PadToByteLength left-pads s with "00" groups to targetBytes bytes.
// It never truncates.
func PadToByteLength(s string, targetBytes int) (string, error) {
	h := strings.TrimSpace(s)
	if _, err := Decode(h); err != nil {
		return "", err
	}
	if targetBytes < 0 || len(h) > targetBytes*2 {
		return "", fmt.Errorf("%w: %d bytes > %d", ErrExceedsTarget, len(h)/2, targetBytes)
	}
	return strings.Repeat("00", targetBytes-len(h)/2) + h, nil
}

// XOR returns the byte-wise XOR of two equal-length hex strings.
func XOR(a, b string) (string, error) {
	x, err := Decode(a)
	if err != nil {
		return "", err
	}
	y, err := Decode(b)
	if err != nil {
		return "", err
	}
	if len(x) != len(y) {
		return "", fmt.Errorf("%w: %d vs %d bytes", ErrLengthMismatch, len(x), len(y))
	}
	out := make([]byte, len(x))
	for i := range x {
		out[i] = x[i] ^ y[i]
	}
	return Encode(out), nil
}

// ToLower lowercases hex digits. It does not validate.
func ToLower(s string) string { return strings.ToLower(s) }

// ToUpper uppercases hex digits. It does not validate.
func ToUpper(s string) string { return strings.ToUpper(s) }

// EncodeString hex-encodes the single-byte code points of s.
func EncodeString(s string) (string, error) {
	bs, err := textcodec.ToCodePoints(s)
	if err != nil {
		return "", err
	}
	return Encode(bs), nil
}

// DecodeToString decodes s and maps each byte to the character with the
// same code point.
func DecodeToString(s string) (string, error) {
	bs, err := Decode(s)
	if err != nil {
		return "", err
	}
	return textcodec.FromBytes(bs), nil
}
