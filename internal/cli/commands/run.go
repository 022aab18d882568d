package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"autograder/internal/config"
	"autograder/internal/discovery"
	"autograder/internal/domain"
	"autograder/internal/events"
	"autograder/internal/logging"
	"autograder/internal/storage"
	"autograder/internal/submission"
	"autograder/internal/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"
)

// ErrNotPassing is returned by run when at least one program did not pass
var ErrNotPassing = errors.New("not all programs passed")

// Process exit codes
const (
	ExitNotPassing = 1
	ExitError      = 2
)

// ExitCode maps a command error to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotPassing):
		return ExitNotPassing
	default:
		return ExitError
	}
}

// RunCommand handles the run command
type RunCommand struct {
	config    *config.Config
	scanner   *discovery.Scanner
	filter    *discovery.Filter
	storage   storage.Storage
	formatter *ui.Formatter
	viewer    ui.Viewer
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	scanner *discovery.Scanner,
	filter *discovery.Filter,
	st storage.Storage,
	formatter *ui.Formatter,
	viewer ui.Viewer,
) *RunCommand {
	return &RunCommand{
		config:    cfg,
		scanner:   scanner,
		filter:    filter,
		storage:   st,
		formatter: formatter,
		viewer:    viewer,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bundlePath, err := rc.config.GetBundlePath()
	if err != nil {
		return err
	}
	bundle, programs, err := loadPrograms(rc.config, rc.scanner, rc.filter, bundlePath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, bundle.Close())
	}()
	if len(programs) == 0 {
		return rc.nothingToGrade(cmd.OutOrStdout())
	}

	logger := logging.NewZapLogger(rc.config.Flags.Verbose)
	defer logger.Sync()

	if rc.config.Flags.Events {
		return rc.stream(ctx, cmd.OutOrStdout(), logger, bundlePath, programs)
	}
	return rc.console(ctx, cmd.OutOrStdout(), logger, bundlePath, programs)
}

// nothingToGrade reports an empty selection without polluting the event stream
func (rc *RunCommand) nothingToGrade(out io.Writer) error {
	const message = "No programs to grade"
	if rc.config.Flags.Events {
		return events.NewEncoder(out).Publish(events.NewDoneEvent(events.NewRunID(), events.Done{Message: message}))
	}
	_, err := color.New(color.FgYellow).Fprintln(out, message)
	return err
}

// stream grades with the event stream as the only output
func (rc *RunCommand) stream(ctx context.Context, out io.Writer, logger logging.Logger, bundlePath string, programs []*domain.Program) error {
	pub := events.NewEncoder(out)
	run, err := rc.grade(ctx, logger, pub, bundlePath, programs)
	if err != nil {
		return err
	}
	if !run.IsPassing() {
		return ErrNotPassing
	}
	return nil
}

// console grades with progress bars, the feedback file and a closing summary
func (rc *RunCommand) console(ctx context.Context, out io.Writer, logger logging.Logger, bundlePath string, programs []*domain.Program) (err error) {
	feedbackPath := rc.config.GetFeedbackPath(bundlePath)
	feedback, err := os.Create(feedbackPath)
	if err != nil {
		return fmt.Errorf("create feedback file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, feedback.Close())
	}()

	bus := events.NewBus()
	sub := bus.Subscribe()
	consumer := ui.NewConsole(out, feedback, term.IsTerminal(int(os.Stdout.Fd())))
	consumed := make(chan error, 1)
	go func() {
		consumed <- consumer.Consume(ctx, sub)
	}()

	run, gradeErr := rc.grade(ctx, logger, bus, bundlePath, programs)
	bus.Close()
	if err := <-consumed; err != nil && gradeErr == nil {
		gradeErr = err
	}
	if gradeErr != nil {
		return gradeErr
	}

	rc.formatter.SetOutput(out)
	rc.formatter.PrintRunSummary(run)
	if done := consumer.Done(); done != nil && done.Archive != "" {
		rc.formatter.PrintSubmission(done.Archive)
	}
	fmt.Fprintf(out, "Feedback written to %s\n", feedbackPath)

	if run.IsPassing() {
		return nil
	}
	if rc.config.Flags.Open {
		if err := rc.viewer.View(run); err != nil {
			return err
		}
	}
	return ErrNotPassing
}

// grade runs every program, stores the run, builds the submission archive
// and publishes the closing event
func (rc *RunCommand) grade(ctx context.Context, logger logging.Logger, pub events.Publisher, bundlePath string, programs []*domain.Program) (*storage.Run, error) {
	pool := newGrader(rc.config, logger)
	runID := events.NewRunID()

	reports, duration, err := pool.ExecuteWithOptions(ctx, runID, programs, pub, rc.config.Flags.FailFast)
	if err != nil {
		return nil, fmt.Errorf("grading failed: %w", err)
	}

	var graded []*domain.Report
	var sources []string
	for i, rep := range reports {
		if rep == nil {
			continue
		}
		graded = append(graded, rep)
		sources = append(sources, programs[i].SourcePath)
	}
	run := storage.NewRun(runID, bundlePath, graded, duration, rc.config.Processors)

	// Save results
	if err := rc.storage.Save(run); err != nil {
		return nil, fmt.Errorf("failed to save grading results: %w", err)
	}
	if rc.config.Flags.SaveDB {
		if err := saveToDatabase(ctx, rc.config, run); err != nil {
			return nil, err
		}
	}

	done := events.Done{
		Passing:  run.IsPassing(),
		Programs: run.Meta.Programs,
	}
	if done.Passing {
		done.Message = "CORRECTNESS TESTS PASSED FOR ALL COMPLETED PROGRAMS"
		if rc.config.Flags.Submit {
			builder := submission.NewBuilder(rc.config.GetSourceDir(bundlePath))
			archive, err := builder.Build(bundlePath, sources)
			if err != nil {
				return nil, err
			}
			done.Archive = archive
			logger.Info("submission archive created", "path", archive)
		}
	} else {
		done.Message = fmt.Sprintf("%d of %d programs did not pass", run.Meta.FailingPrograms, run.Meta.Programs)
	}
	if err := pub.Publish(events.NewDoneEvent(runID, done)); err != nil {
		return nil, err
	}
	return run, nil
}

// loadPrograms resolves the bundle and parses its programs.
// The bundle stays open while its programs are in use; the caller closes it.
func loadPrograms(cfg *config.Config, scanner *discovery.Scanner, filter *discovery.Filter, bundlePath string) (*discovery.Bundle, []*domain.Program, error) {
	bundle, err := discovery.OpenBundle(bundlePath)
	if err != nil {
		return nil, nil, err
	}

	parser := discovery.NewParser(cfg.Command(), cfg.GetSourceDir(bundlePath))
	programs, err := bundle.LoadPrograms(scanner, parser, filter, cfg.Flags.Filter)
	if err != nil {
		return nil, nil, multierr.Append(err, bundle.Close())
	}
	return bundle, programs, nil
}

func saveToDatabase(ctx context.Context, cfg *config.Config, run *storage.Run) (err error) {
	db, err := storage.OpenMySQL(ctx, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("connect to gradebook: %w", err)
	}
	defer func() {
		err = multierr.Append(err, db.Close())
	}()

	if err := db.SaveContext(ctx, run); err != nil {
		return fmt.Errorf("save run to gradebook: %w", err)
	}
	return nil
}
