package textcodec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCodePoints_Hello(t *testing.T) {
	got, err := ToCodePoints("Hello")
	require.NoError(t, err)
	assert.Equal(t, []byte{72, 101, 108, 108, 111}, got)
}

func TestToCodePoints_Latin1(t *testing.T) {
	got, err := ToCodePoints("caf\u00e9\u00a0")
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9, 0xa0}, got)
}

func TestToCodePoints_OutOfRange(t *testing.T) {
	got, err := ToCodePoints("ab\u20acc")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	var rerr *RangeError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 2, rerr.Index)
	assert.Equal(t, 0x20ac, rerr.Value)
}

func TestToCodePoints_Empty(t *testing.T) {
	got, err := ToCodePoints("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFromCodePoints(t *testing.T) {
	s, err := FromCodePoints([]int{72, 105})
	require.NoError(t, err)
	assert.Equal(t, "Hi", s)

	_, err = FromCodePoints([]int{72, 256})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = FromCodePoints([]int{-1})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRoundTrip_AllSingleByteCharacters(t *testing.T) {
	runes := make([]rune, 256)
	for i := range runes {
		runes[i] = rune(i)
	}
	s := string(runes)

	bs, err := ToCodePoints(s)
	require.NoError(t, err)
	require.Len(t, bs, 256)

	points := make([]int, len(bs))
	for i, b := range bs {
		points[i] = int(b)
	}
	back, err := FromCodePoints(points)
	require.NoError(t, err)
	assert.Equal(t, s, back)
	assert.Equal(t, s, FromBytes(bs))
}

func TestIsASCII(t *testing.T) {
	assert.True(t, IsASCII(""))
	assert.True(t, IsASCII("plain\ttext\x7f"))
	assert.False(t, IsASCII("caf\u00e9"))
}

func TestIsPrintableASCII(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"Hello, World!", true},
		{" ~", true},
		{"tab\t", false},
		{"line\n", false},
		{"nul\x00", false},
		{"del\x7f", false},
		{"caf\u00e9", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPrintableASCII(tt.in), "%q", tt.in)
	}
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, "O''Brien", EscapeSQL("O'Brien"))
	assert.Equal(t, "&lt;a href=&quot;x&quot;&gt;&amp;&#x27;", EscapeHTML(`<a href="x">&'`))
	assert.Equal(t, `it\'s \"q\"`, EscapeJS(`it's "q"`))
	assert.NotContains(t, EscapeJS("</script>"), "<")
}
