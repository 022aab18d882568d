package domain

import (
	"strings"
	"time"
)

// FileRef points at the content source of an expected or staged file inside a resolved bundle
type FileRef struct {
	Path string `json:"path"`
}

// TestCase is one scripted scenario for one candidate program
type TestCase struct {
	ID             string             // Test id taken from the bundle file names (e.g. "01")
	Name           string             // Display name, "#<id>" unless configured
	Stdin          []string           // Chunks fed to the candidate one at a time
	ExpectedStdout *FileRef           // Optional expected console output
	ExpectedFiles  map[string]FileRef // Output file name -> expected content
	InputFiles     map[string]FileRef // File name -> content staged before execution
	Timeout        time.Duration      // Hard wall-clock limit
	SoftTimeout    time.Duration      // "Slow but passing" threshold, never above Timeout
	EchoInput      bool               // Echo stdin chunks into the stdout transcript
}

// Program is a candidate program together with every test case resolved for it
type Program struct {
	ID          string        // Program folder name inside the bundle
	Dir         string        // Program folder path inside the resolved bundle
	Source      string        // Candidate source file name (e.g. "interest.py")
	SourcePath  string        // Where the candidate source is read from
	Command     []string      // Command template, "{source}" is replaced by the staged source name
	Tests       []TestCase    // Test cases in declaration order
	Timeout     time.Duration // Default hard timeout for the program's tests
	SoftTimeout time.Duration // Default soft timeout for the program's tests
	Encoding    string        // Optional text encoding of expected and input files
	Compare     string        // Output comparison strategy name
	Checker     []string      // Optional external output checker command
	Grader      []string      // Optional custom grading command replacing the per-test loop
	Style       []string      // Optional style checker command
	ConfigError string        // Set when the program folder could not be resolved
}

// CommandFor expands the program command for the given staged source name
func (p *Program) CommandFor(source string) []string {
	cmd := make([]string, len(p.Command))
	for i, arg := range p.Command {
		cmd[i] = strings.ReplaceAll(arg, SourcePlaceholder, source)
	}
	return cmd
}

// SourcePlaceholder is replaced by the candidate source file name in commands
const SourcePlaceholder = "{source}"
