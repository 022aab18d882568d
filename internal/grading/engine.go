package grading

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autograder/internal/compare"
	"autograder/internal/domain"
	"autograder/internal/execution"
	"autograder/internal/logging"
)

const (
	// closeNameCutoff is the similarity a file name needs to be suggested for a missing source
	closeNameCutoff = 0.8
	// DefaultGraderTimeout bounds a custom grading command
	DefaultGraderTimeout = 5 * time.Minute
)

// StyleChecker reports style issues of a candidate source
type StyleChecker interface {
	Check(ctx context.Context, program *domain.Program) ([]string, error)
}

// Engine grades candidate programs test by test
type Engine struct {
	runner        execution.Runner
	workspaces    WorkspaceFactory
	style         StyleChecker
	logger        logging.Logger
	graderTimeout time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkspaces sets where scratch directories are created
func WithWorkspaces(f WorkspaceFactory) Option {
	return func(e *Engine) {
		e.workspaces = f
	}
}

// WithStyleChecker enables style checks for programs that configure one
func WithStyleChecker(s StyleChecker) Option {
	return func(e *Engine) {
		e.style = s
	}
}

// WithLogger sets the engine logger
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithGraderTimeout bounds custom grading commands
func WithGraderTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.graderTimeout = d
		}
	}
}

// NewEngine creates a new Engine
func NewEngine(runner execution.Runner, opts ...Option) *Engine {
	e := &Engine{
		runner:        runner,
		workspaces:    TempWorkspaces{},
		logger:        logging.Nop(),
		graderTimeout: DefaultGraderTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunProgram grades one program. Every finished result is handed to yield in
// completion order; returning false from yield stops grading and leaves the
// report incomplete.
//
// Problems with the bundle or the candidate source produce a finished report
// with a single error result and a config fault. Failures of the grading
// machinery abort the remaining tests and replace the report with an error
// report carrying a grader fault, so a broken run can never look graded.
// The returned error is only set when ctx ends the run early.
func (e *Engine) RunProgram(ctx context.Context, program *domain.Program, yield func(*domain.TestResult) bool) (*domain.Report, error) {
	if program.ConfigError != "" {
		return domain.NewErrorReport(program.ID, program.Source, domain.FaultConfig, program.ConfigError), nil
	}
	if _, err := os.Stat(program.SourcePath); err != nil {
		e.logger.Warn("candidate source missing", "program", program.ID, "path", program.SourcePath)
		return domain.NewErrorReport(program.ID, program.Source, domain.FaultConfig, missingSourceMessage(program)), nil
	}

	routine, err := e.routineFor(program)
	if err != nil {
		return domain.NewErrorReport(program.ID, program.Source, domain.FaultConfig, err.Error()), nil
	}
	report := routine.NewReport(program)

	if len(program.Style) > 0 && e.style != nil {
		issues, err := e.style.Check(ctx, program)
		if err != nil {
			e.logger.Warn("style check failed", "program", program.ID, "error", err)
		}
		if err := report.SetStyleIssues(issues); err != nil {
			return nil, err
		}
	}

	var addErr error
	stopped := false
	emit := func(result *domain.TestResult) bool {
		if err := report.Add(result); err != nil {
			addErr = fmt.Errorf("add result %s: %w", result.ID, err)
			return false
		}
		if !yield(result) {
			stopped = true
			return false
		}
		return true
	}

	start := time.Now()
	err = routine.Run(ctx, program, report, emit)
	if err == nil {
		err = addErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		kind := domain.FaultGrader
		var fault *FaultError
		if errors.As(err, &fault) {
			kind = fault.Kind
		}
		e.logger.Error("grading aborted", "program", program.ID, "fault", kind, "error", err)
		return domain.NewErrorReport(program.ID, program.Source, kind, err.Error()), nil
	}
	if stopped {
		return report, nil
	}

	report.MarkComplete()
	e.logger.Debug("program graded", "program", program.ID, "grade", report.Grade(), "elapsed", time.Since(start))
	return report, nil
}

func (e *Engine) routineFor(program *domain.Program) (Routine, error) {
	if len(program.Grader) > 0 {
		return &CommandRoutine{
			Workspaces: e.workspaces,
			Timeout:    e.graderTimeout,
			Logger:     e.logger,
		}, nil
	}

	var cmp compare.Comparator
	if len(program.Checker) > 0 {
		cmp = compare.NewCommand(program.Checker, program.Dir, e.runner)
	} else {
		var err error
		if cmp, err = compare.New(program.Compare); err != nil {
			return nil, err
		}
	}
	return &FixedRoutine{
		Runner:     e.runner,
		Workspaces: e.workspaces,
		Comparator: cmp,
		Logger:     e.logger,
	}, nil
}

func missingSourceMessage(program *domain.Program) string {
	lines := []string{fmt.Sprintf("Source file %s is missing. Tests omitted.", program.Source)}

	dir := filepath.Dir(program.SourcePath)
	pattern := "*" + filepath.Ext(program.Source)
	candidates, _ := filepath.Glob(filepath.Join(dir, pattern))
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, filepath.Base(c))
	}
	if match, ok := compare.CloseMatch(program.Source, names, closeNameCutoff); ok {
		lines = append(lines, fmt.Sprintf("This name looks close, perhaps a typo? %s", match))
	}
	return strings.Join(lines, "\n")
}
