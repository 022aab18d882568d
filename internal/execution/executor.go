package execution

import (
	"context"
	"time"

	"autograder/internal/domain"
)

// Request describes one interactive run of a candidate program
type Request struct {
	Command   []string      // Program and arguments
	Dir       string        // Working directory of the child process
	Stdin     []string      // Chunks written one at a time
	Timeout   time.Duration // Aggregate deadline for the whole interaction
	Label     string        // Name used in the timeout message (usually the source file)
	EchoInput bool          // Copy each stdin chunk into the stdout transcript
}

// Runner runs a candidate program and reports how it ended.
// A returned error means the grader could not run the program at all.
type Runner interface {
	Run(ctx context.Context, req Request) (domain.ExecutionOutcome, error)
}
