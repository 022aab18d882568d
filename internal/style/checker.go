package style

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"autograder/internal/domain"
	"autograder/internal/execution"
)

// DefaultTimeout bounds one style checker run
const DefaultTimeout = 30 * time.Second

// CommandChecker runs a program's style command next to the candidate source.
// Every non-empty line the command prints is one issue; its exit status only
// tells whether issues were found and is otherwise ignored.
type CommandChecker struct {
	runner  execution.Runner
	timeout time.Duration
}

// NewCommandChecker creates a new CommandChecker
func NewCommandChecker(runner execution.Runner, timeout time.Duration) *CommandChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandChecker{runner: runner, timeout: timeout}
}

// Check implements grading.StyleChecker
func (c *CommandChecker) Check(ctx context.Context, program *domain.Program) ([]string, error) {
	if len(program.Style) == 0 {
		return nil, nil
	}

	p := domain.Program{Command: program.Style}
	outcome, err := c.runner.Run(ctx, execution.Request{
		Command: p.CommandFor(program.Source),
		Dir:     filepath.Dir(program.SourcePath),
		Timeout: c.timeout,
		Label:   program.Style[0],
	})
	if err != nil {
		return nil, fmt.Errorf("run style checker: %w", err)
	}
	if outcome.TimedOut {
		return nil, fmt.Errorf("style checker: %s", outcome.Stderr)
	}

	var issues []string
	for _, line := range strings.Split(outcome.Stdout, "\n") {
		if strings.TrimSpace(line) != "" {
			issues = append(issues, strings.TrimRight(line, " \t"))
		}
	}
	return issues, nil
}
