package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProgramDirPrefix marks a program folder inside the tests root
const ProgramDirPrefix = "test-"

// DefaultSkipDirs are never searched for program folders
var DefaultSkipDirs = []string{"__MACOSX", "node_modules", "__pycache__"}

// Scanner scans for program folders in a bundle directory
type Scanner struct {
	skipDirs map[string]bool
}

// NewScanner creates a new Scanner with the given directories to skip
func NewScanner(skipDirs []string) *Scanner {
	skipMap := make(map[string]bool)
	for _, dir := range skipDirs {
		skipMap[dir] = true
	}
	return &Scanner{skipDirs: skipMap}
}

// FindRoot returns the shallowest directory under root that holds program folders
func (s *Scanner) FindRoot(root string) (string, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("bundle path does not exist: %s", root)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("bundle path is not a directory: %s", root)
	}

	found := ""
	bestDepth := -1
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}

		name := d.Name()
		// Skip hidden directories (starting with .)
		if strings.HasPrefix(name, ".") || s.skipDirs[name] {
			return filepath.SkipDir
		}
		if !strings.HasPrefix(name, ProgramDirPrefix) {
			return nil
		}

		parent := filepath.Dir(path)
		depth := strings.Count(parent, string(filepath.Separator))
		if bestDepth < 0 || depth < bestDepth {
			found, bestDepth = parent, depth
		}
		return filepath.SkipDir
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no %s* folders found in %s", ProgramDirPrefix, root)
	}
	return found, nil
}

// Scan finds every program folder of the bundle rooted at root, sorted by name
func (s *Scanner) Scan(root string) ([]string, error) {
	testsRoot, err := s.FindRoot(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(testsRoot)
	if err != nil {
		return nil, fmt.Errorf("read tests root: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), ProgramDirPrefix) {
			dirs = append(dirs, filepath.Join(testsRoot, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
