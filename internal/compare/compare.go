package compare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ChunkSize is the block size used by the lockstep comparison
const ChunkSize = 1 << 10

// Kind tags what is being compared
type Kind string

// KindStdout is the console transcript of a test
const KindStdout Kind = "stdout"

// FileKind tags an output file comparison
func FileKind(name string) Kind {
	return Kind("file:" + name)
}

// IsFile reports whether the kind refers to an output file
func (k Kind) IsFile() bool {
	return strings.HasPrefix(string(k), "file:")
}

// Verdict is the outcome of one comparison.
// A nil Feedback asks the caller to render a line diff instead.
type Verdict struct {
	Match    bool
	Feedback []string
}

// Comparator decides whether actual output matches the expected output
type Comparator interface {
	Compare(ctx context.Context, actual, expected io.Reader, kind Kind) (Verdict, error)
}

// Strategy names accepted in program configuration
const (
	StrategyExact              = "exact"
	StrategyTrailingWhitespace = "trailing-whitespace"
	StrategyTokens             = "tokens"
)

// New returns the built-in comparator registered under name.
// An empty name selects the exact chunked comparison.
func New(name string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyExact:
		return Chunked{}, nil
	case StrategyTrailingWhitespace:
		return TrailingWhitespace{}, nil
	case StrategyTokens:
		return Tokens{}, nil
	default:
		return nil, fmt.Errorf("unknown comparison strategy %q", name)
	}
}

// Chunked compares both streams in fixed-size blocks and stops at the first difference
type Chunked struct{}

// Compare implements Comparator
func (Chunked) Compare(_ context.Context, actual, expected io.Reader, _ Kind) (Verdict, error) {
	a := make([]byte, ChunkSize)
	b := make([]byte, ChunkSize)
	for {
		na, err := readChunk(actual, a)
		if err != nil {
			return Verdict{}, fmt.Errorf("read actual output: %w", err)
		}
		nb, err := readChunk(expected, b)
		if err != nil {
			return Verdict{}, fmt.Errorf("read expected output: %w", err)
		}
		if na != nb || !bytes.Equal(a[:na], b[:nb]) {
			return Verdict{Match: false}, nil
		}
		if na < ChunkSize {
			return Verdict{Match: true}, nil
		}
	}
}

func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
