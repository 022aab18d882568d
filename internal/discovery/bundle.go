package discovery

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"autograder/internal/domain"
)

// ErrMalformedZip is returned when a bundle archive cannot be read
var ErrMalformedZip = errors.New("test zip is malformed")

// Bundle is a resolved test bundle directory
type Bundle struct {
	Path string // Bundle path as given (directory or .zip)
	Dir  string // Directory holding the bundle contents

	tempDir string
}

// OpenBundle resolves a bundle directory or extracts a .zip bundle to a
// temporary directory. Close removes the extracted copy.
func OpenBundle(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("bundle path does not exist: %s", path)
	}
	if info.IsDir() {
		return &Bundle{Path: path, Dir: path}, nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return nil, fmt.Errorf("bundle must be a directory or a .zip file: %s", path)
	}

	tmp, err := os.MkdirTemp("", "grader-bundle-*")
	if err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}
	if err := extractZip(path, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}
	return &Bundle{Path: path, Dir: tmp, tempDir: tmp}, nil
}

// Close removes any extracted files
func (b *Bundle) Close() error {
	if b.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(b.tempDir)
	b.tempDir = ""
	return err
}

// LoadPrograms scans the bundle, parses every program folder and keeps the
// programs matching pattern
func (b *Bundle) LoadPrograms(scanner *Scanner, parser *Parser, filter *Filter, pattern string) ([]*domain.Program, error) {
	dirs, err := scanner.Scan(b.Dir)
	if err != nil {
		return nil, err
	}

	programs := make([]*domain.Program, 0, len(dirs))
	for _, dir := range dirs {
		program, err := parser.ParseProgram(dir)
		if err != nil {
			return nil, err
		}
		programs = append(programs, program)
	}
	return filter.FilterPrograms(programs, pattern), nil
}

func extractZip(path, dest string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		return fmt.Errorf("%w: %v", ErrMalformedZip, err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		name := filepath.FromSlash(f.Name)
		if skipArchiveEntry(name) {
			continue
		}
		target := filepath.Join(dest, name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(filepath.Separator)) {
			return fmt.Errorf("%w: entry %q escapes the bundle", ErrMalformedZip, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedZip, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func skipArchiveEntry(name string) bool {
	for _, part := range strings.Split(name, string(filepath.Separator)) {
		if part == "__MACOSX" || part == ".DS_Store" {
			return true
		}
	}
	return false
}
