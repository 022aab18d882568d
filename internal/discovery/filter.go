package discovery

import (
	"path/filepath"
	"strings"

	"autograder/internal/domain"
)

// Filter filters program folders and programs by name pattern
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterByName filters program folders by their base name.
// Supports patterns like "test-lab0?" or "*lab*"; the "test-" prefix may be omitted.
func (f *Filter) FilterByName(dirs []string, pattern string) []string {
	if pattern == "" {
		return dirs
	}

	var filtered []string
	for _, dir := range dirs {
		name := filepath.Base(dir)
		if Matches(name, pattern) || Matches(strings.TrimPrefix(name, ProgramDirPrefix), pattern) {
			filtered = append(filtered, dir)
		}
	}
	return filtered
}

// FilterPrograms keeps programs whose folder name or source file matches pattern
func (f *Filter) FilterPrograms(programs []*domain.Program, pattern string) []*domain.Program {
	if pattern == "" {
		return programs
	}

	var filtered []*domain.Program
	for _, p := range programs {
		if Matches(p.ID, pattern) ||
			Matches(strings.TrimPrefix(p.ID, ProgramDirPrefix), pattern) ||
			(p.Source != "" && Matches(p.Source, pattern)) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Matches reports whether name matches a wildcard pattern.
// Without wildcards the pattern matches as a substring; with "*" the
// non-empty fragments must all occur in name when a glob match fails.
func Matches(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	if matched, err := filepath.Match(pattern, name); err == nil && matched {
		return true
	}

	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(name, pattern)
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	hasPart := false
	for _, part := range strings.Split(pattern, "*") {
		if part == "" {
			continue
		}
		if !strings.Contains(name, part) {
			return false
		}
		hasPart = true
	}
	return hasPart
}
