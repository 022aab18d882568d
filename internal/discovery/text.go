package discovery

import (
	"fmt"
	"os"

	"golang.org/x/text/encoding/htmlindex"

	"autograder/internal/domain"
	"autograder/internal/execution"
)

// ValidateEncoding checks that name is a known text encoding
func ValidateEncoding(name string) error {
	if name == "" {
		return nil
	}
	if _, err := htmlindex.Get(name); err != nil {
		return fmt.Errorf("unknown encoding %q", name)
	}
	return nil
}

// DecodeText converts bundle content in the given encoding to text with
// universal newlines. An empty encoding means UTF-8 with lenient decoding.
func DecodeText(data []byte, encoding string) (string, error) {
	if encoding == "" {
		return execution.NormalizeNewlines(execution.DecodePermissive(data)), nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", fmt.Errorf("unknown encoding %q: %w", encoding, err)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s text: %w", encoding, err)
	}
	return execution.NormalizeNewlines(string(decoded)), nil
}

// ReadText reads a bundle file as text
func ReadText(ref domain.FileRef, encoding string) (string, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return "", err
	}
	return DecodeText(data, encoding)
}
