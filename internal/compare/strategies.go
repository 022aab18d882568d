package compare

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// TrailingWhitespace ignores whitespace at line ends and blank lines at the end of output
type TrailingWhitespace struct{}

// Compare implements Comparator
func (TrailingWhitespace) Compare(_ context.Context, actual, expected io.Reader, _ Kind) (Verdict, error) {
	a, b, err := readBoth(actual, expected)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Match: equalLines(trimLines(a), trimLines(b))}, nil
}

// Tokens compares whitespace separated tokens and ignores layout entirely
type Tokens struct{}

// Compare implements Comparator
func (Tokens) Compare(_ context.Context, actual, expected io.Reader, _ Kind) (Verdict, error) {
	a, b, err := readBoth(actual, expected)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Match: equalLines(strings.Fields(a), strings.Fields(b))}, nil
}

func readBoth(actual, expected io.Reader) (string, string, error) {
	a, err := io.ReadAll(actual)
	if err != nil {
		return "", "", fmt.Errorf("read actual output: %w", err)
	}
	b, err := io.ReadAll(expected)
	if err != nil {
		return "", "", fmt.Errorf("read expected output: %w", err)
	}
	return string(a), string(b), nil
}

func trimLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
