package grading

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"autograder/internal/domain"
	"autograder/internal/execution"
	"autograder/internal/logging"
)

// streamedResult is one NDJSON line written by a custom grading command.
// Lines without an id either declare the expected result count or record a
// program-level error.
type streamedResult struct {
	ID        string                   `json:"id"`
	Score     *float64                 `json:"score"`
	Info      string                   `json:"info"`
	ElapsedMS float64                  `json:"elapsed_ms"`
	Feedback  []domain.FeedbackSection `json:"feedback"`
	HardError string                   `json:"hard_error"`
	Expected  *int                     `json:"expected"`
}

// CommandRoutine delegates grading to an external command that streams its
// results as NDJSON on stdout. The number of results is not known up front;
// the report completes when the stream ends.
//
// The command runs in a fresh workspace holding a copy of the candidate
// source. GRADER_SOURCE, GRADER_PROGRAM_DIR and GRADER_TIMEOUT describe the
// program it grades.
type CommandRoutine struct {
	Workspaces WorkspaceFactory
	Timeout    time.Duration
	Logger     logging.Logger
}

// NewReport implements Routine
func (r *CommandRoutine) NewReport(program *domain.Program) *domain.Report {
	return domain.NewOpenReport(program.ID, program.Source, program.Timeout, program.SoftTimeout)
}

// Run implements Routine
func (r *CommandRoutine) Run(ctx context.Context, program *domain.Program, report *domain.Report, emit func(*domain.TestResult) bool) (err error) {
	ws, err := r.Workspaces.Create(program.ID)
	if err != nil {
		return graderFault(program.ID, err)
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			err = multierr.Append(err, graderFault(program.ID, cerr))
		}
	}()
	if err := copyFile(program.SourcePath, ws.Path(program.Source)); err != nil {
		return graderFault(program.ID, fmt.Errorf("stage source: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	argv := expandAll(program.Grader, program.Source)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = ws.Dir
	cmd.Env = append(os.Environ(),
		"GRADER_SOURCE="+program.Source,
		"GRADER_PROGRAM_DIR="+program.Dir,
		"GRADER_TIMEOUT="+strconv.FormatFloat(program.Timeout.Seconds(), 'f', -1, 64),
	)
	cmd.WaitDelay = execution.DefaultWaitDelay
	execution.ConfigureProcess(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return graderFault(program.ID, err)
	}
	if err := cmd.Start(); err != nil {
		return graderFault(program.ID, fmt.Errorf("start grading command: %w", err))
	}

	stopped, streamErr := r.consume(stdout, report, emit)
	if stopped || streamErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()

	switch {
	case stopped:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case streamErr != nil:
		return graderFault(program.ID, streamErr)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return graderFault(program.ID, fmt.Errorf("grading command exceeded %s", r.Timeout))
	case waitErr != nil:
		return graderFault(program.ID, fmt.Errorf("grading command failed: %w: %s", waitErr, strings.TrimSpace(stderr.String())))
	}
	return nil
}

func (r *CommandRoutine) consume(stdout io.Reader, report *domain.Report, emit func(*domain.TestResult) bool) (bool, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var rec streamedResult
		if err := json.Unmarshal(data, &rec); err != nil {
			return false, fmt.Errorf("grading command output line %d: %w", line, err)
		}
		if rec.ID == "" {
			switch {
			case rec.Expected != nil:
				if err := report.SetExpected(*rec.Expected); err != nil {
					return false, fmt.Errorf("grading command output line %d: %w", line, err)
				}
			case rec.HardError != "":
			default:
				return false, fmt.Errorf("grading command output line %d: result without id", line)
			}
			if err := report.AddHardError(rec.HardError); err != nil {
				return false, fmt.Errorf("grading command output line %d: %w", line, err)
			}
			continue
		}

		result := report.NewResult(rec.ID)
		score := 1.0
		if rec.Score != nil {
			score = *rec.Score
		}
		if err := result.SetScore(score, rec.Info); err != nil {
			return false, fmt.Errorf("grading command output line %d: %w", line, err)
		}
		result.Elapsed = time.Duration(rec.ElapsedMS * float64(time.Millisecond))
		for _, section := range rec.Feedback {
			if err := result.Attach(section); err != nil {
				return false, err
			}
		}
		if err := report.AddHardError(rec.HardError); err != nil {
			return false, fmt.Errorf("grading command output line %d: %w", line, err)
		}
		r.Logger.Debug("custom result received", "test", result.Name(), "score", score)

		if !emit(result) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read grading command output: %w", err)
	}
	return false, nil
}

func expandAll(template []string, source string) []string {
	p := domain.Program{Command: template}
	return p.CommandFor(source)
}
