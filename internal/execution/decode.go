package execution

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DecodePermissive turns raw process output into text; invalid UTF-8 bytes are
// written as \xNN escapes instead of failing.
func DecodePermissive(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var builder strings.Builder
	builder.Grow(len(b) + 16)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&builder, `\x%02x`, b[0])
		} else {
			builder.Write(b[:size])
		}
		b = b[size:]
	}
	return builder.String()
}

// NormalizeNewlines converts \r\n and lone \r line endings to \n
func NormalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
