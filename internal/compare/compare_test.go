package compare

import (
	"context"
	"strings"
	"testing"
)

func TestChunked_Compare(t *testing.T) {
	long := strings.Repeat("0123456789abcdef", 200)

	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{name: "identical short", actual: "7\n", expected: "7\n", want: true},
		{name: "both empty", actual: "", expected: "", want: true},
		{name: "different content", actual: "8\n", expected: "7\n", want: false},
		{name: "missing trailing newline", actual: "7", expected: "7\n", want: false},
		{name: "actual is a prefix", actual: long[:ChunkSize], expected: long, want: false},
		{name: "identical across chunks", actual: long, expected: long, want: true},
		{name: "exact multiple of the chunk size", actual: long[:2*ChunkSize], expected: long[:2*ChunkSize], want: true},
		{name: "difference in a later chunk", actual: long + "x", expected: long + "y", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Chunked{}.Compare(context.Background(), strings.NewReader(tt.actual), strings.NewReader(tt.expected), KindStdout)
			if err != nil {
				t.Fatalf("compare: %v", err)
			}
			if v.Match != tt.want {
				t.Errorf("expected match=%v, got %v", tt.want, v.Match)
			}
			if v.Feedback != nil {
				t.Errorf("chunked comparison should not produce feedback, got %q", v.Feedback)
			}
		})
	}
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		actual   string
		expected string
		want     bool
	}{
		{strategy: "exact", actual: "a \nb\n", expected: "a\nb\n", want: false},
		{strategy: "trailing-whitespace", actual: "a  \nb\t\n\n\n", expected: "a\nb\n", want: true},
		{strategy: "trailing-whitespace", actual: " a\nb\n", expected: "a\nb\n", want: false},
		{strategy: "tokens", actual: "1   2\n3", expected: "1 2 3\n", want: true},
		{strategy: "tokens", actual: "1 2", expected: "1 2 3", want: false},
		{strategy: "", actual: "same", expected: "same", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy+"/"+tt.actual, func(t *testing.T) {
			cmp, err := New(tt.strategy)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			v, err := cmp.Compare(context.Background(), strings.NewReader(tt.actual), strings.NewReader(tt.expected), KindStdout)
			if err != nil {
				t.Fatalf("compare: %v", err)
			}
			if v.Match != tt.want {
				t.Errorf("expected match=%v, got %v", tt.want, v.Match)
			}
		})
	}
}

func TestNew_UnknownStrategy(t *testing.T) {
	if _, err := New("fuzzy"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestKind(t *testing.T) {
	k := FileKind("out.txt")
	if k != "file:out.txt" || !k.IsFile() {
		t.Errorf("unexpected file kind %q", k)
	}
	if KindStdout.IsFile() {
		t.Error("stdout is not a file kind")
	}
}
