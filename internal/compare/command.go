package compare

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autograder/internal/execution"
)

// DefaultCheckerTimeout bounds a single external checker run
const DefaultCheckerTimeout = 10 * time.Second

// Command delegates the comparison to an external checker program.
//
// The checker is invoked as `argv... <actual> <expected> <kind>` with both
// outputs written to temporary files. Exit status 0 means the outputs match,
// 1 means they differ; anything else is reported as an error. Lines the
// checker prints become the feedback for the comparison.
type Command struct {
	Argv    []string
	Dir     string
	Timeout time.Duration
	Runner  execution.Runner
}

// NewCommand creates a new external checker comparator
func NewCommand(argv []string, dir string, runner execution.Runner) *Command {
	return &Command{
		Argv:    argv,
		Dir:     dir,
		Timeout: DefaultCheckerTimeout,
		Runner:  runner,
	}
}

// Compare implements Comparator
func (c *Command) Compare(ctx context.Context, actual, expected io.Reader, kind Kind) (Verdict, error) {
	if len(c.Argv) == 0 {
		return Verdict{}, fmt.Errorf("checker command is empty")
	}

	tmp, err := os.MkdirTemp("", "grader-check-*")
	if err != nil {
		return Verdict{}, fmt.Errorf("create checker workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	actualPath := filepath.Join(tmp, "actual")
	if err := writeStream(actualPath, actual); err != nil {
		return Verdict{}, fmt.Errorf("stage actual output: %w", err)
	}
	expectedPath := filepath.Join(tmp, "expected")
	if err := writeStream(expectedPath, expected); err != nil {
		return Verdict{}, fmt.Errorf("stage expected output: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckerTimeout
	}
	dir := c.Dir
	if dir == "" {
		dir = tmp
	}

	argv := append(append([]string{}, c.Argv...), actualPath, expectedPath, string(kind))
	outcome, err := c.Runner.Run(ctx, execution.Request{
		Command: argv,
		Dir:     dir,
		Timeout: timeout,
		Label:   filepath.Base(c.Argv[0]),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("run checker: %w", err)
	}
	if outcome.TimedOut || outcome.ExitCode == nil {
		return Verdict{}, fmt.Errorf("checker: %s", outcome.Stderr)
	}

	verdict := Verdict{Feedback: feedbackLines(outcome.Stdout)}
	switch *outcome.ExitCode {
	case 0:
		verdict.Match = true
	case 1:
		verdict.Match = false
	default:
		return Verdict{}, fmt.Errorf("checker exited with status %d: %s", *outcome.ExitCode, strings.TrimSpace(outcome.Stderr))
	}
	return verdict, nil
}

func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func feedbackLines(out string) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
