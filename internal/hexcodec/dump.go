package hexcodec

import (
	"fmt"
	"strings"
)

const dumpWidth = 16

// Dump renders bs as hexdump rows: an 8-digit offset, sixteen bytes split
// into two groups of eight, and a printable-ASCII gutter.
//
//	00000000  48 65 6c 6c 6f                                    |Hello|
func Dump(bs []byte) string {
	values := make([]int, len(bs))
	for i, b := range bs {
		values[i] = int(b)
	}
	return DumpValues(values)
}

// DumpValues is Dump over boundary values. A value outside [0,255] has no
// byte form and renders as "??" with '?' in the gutter, so offsets stay
// aligned with the caller's positions.
func DumpValues(values []int) string {
	rows := make([]string, 0, (len(values)+dumpWidth-1)/dumpWidth)
	for off := 0; off < len(values); off += dumpWidth {
		end := min(off+dumpWidth, len(values))
		rows = append(rows, dumpRow(off, values[off:end]))
	}
	return strings.Join(rows, "\n")
}

func dumpRow(off int, chunk []int) string {
	var hexPart strings.Builder
	ascii := make([]byte, len(chunk))
	for j, v := range chunk {
		if j > 0 {
			hexPart.WriteByte(' ')
		}
		if j == 8 {
			hexPart.WriteByte(' ')
		}

		switch {
		case v < 0 || v > 255:
			hexPart.WriteString("??")
			ascii[j] = '?'
		case v >= 32 && v < 127:
			fmt.Fprintf(&hexPart, "%02x", v)
			ascii[j] = byte(v)
		default:
			fmt.Fprintf(&hexPart, "%02x", v)
			ascii[j] = '.'
		}
	}

	return fmt.Sprintf("%08x  %-48s  |%s|", off, hexPart.String(), ascii)
}
