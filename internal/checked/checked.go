// Package checked provides integer arithmetic and parsing that report
// failure instead of panicking or wrapping.
//
// Overflow policy: every operation that would leave the range of int
// fails (ok == false). Nothing wraps and nothing saturates.
package checked

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidNumber is returned by ParseByteList for malformed entries.
var ErrInvalidNumber = errors.New("checked: invalid integer")

// Div returns a/b, or false when b is zero or the quotient overflows.
func Div(a, b int) (int, bool) {
	if b == 0 || (a == math.MinInt && b == -1) {
		return 0, false
	}
	return a / b, true
}

// SafeMod returns a%b, or false when b is zero.
func SafeMod(a, b int) (int, bool) {
	if b == 0 {
		return 0, false
	}
	if b == -1 {
		return 0, true
	}
	return a % b, true
}

// DivOr returns a/b, or def when the division is undefined.
func DivOr(a, b, def int) int {
	if q, ok := Div(a, b); ok {
		return q
	}
	return def
}

// Add returns a+b, or false on overflow.
func Add(a, b int) (int, bool) {
	c := a + b
	if (c > a) != (b > 0) {
		return 0, false
	}
	return c, true
}

// Sub returns a-b, or false on overflow.
func Sub(a, b int) (int, bool) {
	c := a - b
	if (c < a) != (b > 0) {
		return 0, false
	}
	return c, true
}

// Mul returns a*b, or false on overflow.
func Mul(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt) || (b == -1 && a == math.MinInt) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

// Pow returns base**exp. Negative exponents and overflow fail.
func Pow(base, exp int) (int, bool) {
	if exp < 0 {
		return 0, false
	}
	result := 1
	for exp > 0 {
		if exp&1 == 1 {
			r, ok := Mul(result, base)
			if !ok {
				return 0, false
			}
			result = r
		}
		exp >>= 1
		if exp > 0 {
			b, ok := Mul(base, base)
			if !ok {
				return 0, false
			}
			base = b
		}
	}
	return result, true
}

// Clamp limits v to [lo, hi].
func Clamp(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InRange reports lo <= v <= hi.
func InRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// InRangeExcluding reports InRange(v, lo, hi) and v not in excluded.
func InRangeExcluding(v, lo, hi int, excluded ...int) bool {
	if !InRange(v, lo, hi) {
		return false
	}
	for _, e := range excluded {
		if v == e {
			return false
		}
	}
	return true
}

// FromString parses a base-10 integer with an optional leading sign.
// Whitespace, decimals and trailing garbage are rejected.
func FromString(s string) (int, bool) {
	digits := s
	if len(digits) > 0 && (digits[0] == '+' || digits[0] == '-') {
		digits = digits[1:]
	}
	if digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FromStringInRange is FromString followed by InRange.
func FromStringInRange(s string, lo, hi int) (int, bool) {
	n, ok := FromString(s)
	if !ok || !InRange(n, lo, hi) {
		return 0, false
	}
	return n, true
}

// ParseByteList parses a comma-separated list of decimal values such as
// "72, 101,108". Entries are trimmed; empty entries are errors. Values are
// returned as parsed, without any range check.
func ParseByteList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return []int{}, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		n, ok := FromString(f)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d %q", ErrInvalidNumber, i, f)
		}
		out = append(out, n)
	}
	return out, nil
}
