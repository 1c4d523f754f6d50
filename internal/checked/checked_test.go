package checked

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivision(t *testing.T) {
	q, ok := Div(7, 2)
	assert.True(t, ok)
	assert.Equal(t, 3, q)

	_, ok = Div(1, 0)
	assert.False(t, ok)

	_, ok = Div(math.MinInt, -1)
	assert.False(t, ok)

	m, ok := SafeMod(7, 3)
	assert.True(t, ok)
	assert.Equal(t, 1, m)

	_, ok = SafeMod(7, 0)
	assert.False(t, ok)

	m, ok = SafeMod(math.MinInt, -1)
	assert.True(t, ok)
	assert.Equal(t, 0, m)

	assert.Equal(t, 5, DivOr(10, 2, -1))
	assert.Equal(t, -1, DivOr(10, 0, -1))
}

func TestAddSubMul(t *testing.T) {
	tests := []struct {
		name string
		fn   func(a, b int) (int, bool)
		a, b int
		want int
		ok   bool
	}{
		{"add", Add, 2, 3, 5, true},
		{"add negative", Add, -2, -3, -5, true},
		{"add overflow", Add, math.MaxInt, 1, 0, false},
		{"add underflow", Add, math.MinInt, -1, 0, false},
		{"sub", Sub, 2, 3, -1, true},
		{"sub overflow", Sub, math.MinInt, 1, 0, false},
		{"sub overflow negative", Sub, math.MaxInt, -1, 0, false},
		{"mul", Mul, 6, 7, 42, true},
		{"mul zero", Mul, 0, math.MaxInt, 0, true},
		{"mul overflow", Mul, math.MaxInt, 2, 0, false},
		{"mul min by -1", Mul, math.MinInt, -1, 0, false},
		{"mul negative", Mul, -4, 5, -20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.fn(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPow(t *testing.T) {
	got, ok := Pow(2, 10)
	assert.True(t, ok)
	assert.Equal(t, 1024, got)

	got, ok = Pow(-3, 3)
	assert.True(t, ok)
	assert.Equal(t, -27, got)

	got, ok = Pow(5, 0)
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = Pow(2, -1)
	assert.False(t, ok)

	_, ok = Pow(10, 100)
	assert.False(t, ok)
}

func TestRanges(t *testing.T) {
	assert.Equal(t, 0, Clamp(0, 127, -5))
	assert.Equal(t, 127, Clamp(0, 127, 300))
	assert.Equal(t, 64, Clamp(0, 127, 64))

	assert.True(t, InRange(0, 0, 127))
	assert.True(t, InRange(127, 0, 127))
	assert.False(t, InRange(128, 0, 127))

	assert.True(t, InRangeExcluding(65, 0, 255, 160, 194))
	assert.False(t, InRangeExcluding(160, 0, 255, 160, 194))
	assert.False(t, InRangeExcluding(300, 0, 255))
}

func TestFromString(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{"-7", -7, true},
		{"+7", 7, true},
		{"0", 0, true},
		{"", 0, false},
		{"-", 0, false},
		{" 42", 0, false},
		{"42 ", 0, false},
		{"4.2", 0, false},
		{"42abc", 0, false},
		{"0x10", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tt := range tests {
		got, ok := FromString(tt.in)
		assert.Equal(t, tt.ok, ok, "%q", tt.in)
		assert.Equal(t, tt.want, got, "%q", tt.in)
	}
}

func TestFromStringInRange(t *testing.T) {
	n, ok := FromStringInRange("127", 0, 127)
	assert.True(t, ok)
	assert.Equal(t, 127, n)

	_, ok = FromStringInRange("128", 0, 127)
	assert.False(t, ok)

	_, ok = FromStringInRange("x", 0, 127)
	assert.False(t, ok)
}

func TestParseByteList(t *testing.T) {
	got, err := ParseByteList("72,101, 108 ,108,111")
	require.NoError(t, err)
	assert.Equal(t, []int{72, 101, 108, 108, 111}, got)

	got, err = ParseByteList("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ParseByteList("300,-1")
	require.NoError(t, err)
	assert.Equal(t, []int{300, -1}, got)

	_, err = ParseByteList("72,,101")
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = ParseByteList("72,1.5")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}
