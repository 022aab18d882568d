package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"autograder/internal/config"
	"autograder/internal/events"
	"autograder/internal/storage"
	"autograder/internal/ui"

	"github.com/spf13/cobra"
)

// ViewCommand handles the view command
type ViewCommand struct {
	config  *config.Config
	storage storage.Storage
	viewer  ui.Viewer
}

// NewViewCommand creates a new ViewCommand
func NewViewCommand(cfg *config.Config, st storage.Storage, viewer ui.Viewer) *ViewCommand {
	return &ViewCommand{
		config:  cfg,
		storage: st,
		viewer:  viewer,
	}
}

// Execute runs the command
func (vc *ViewCommand) Execute(cmd *cobra.Command, args []string) error {
	if vc.config.Flags.Live {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return vc.live(ctx)
	}

	run, err := vc.storage.Load()
	if err != nil {
		return err
	}
	return vc.viewer.View(run)
}

// live grades the bundle in a child "run --events" process and shows its
// event stream as it arrives
func (vc *ViewCommand) live(ctx context.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate grader executable: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	child := exec.CommandContext(ctx, exe, childArgs(vc.config.Flags)...)
	child.Dir = vc.config.ProjectPath
	var stderr bytes.Buffer
	child.Stderr = &stderr
	stdout, err := child.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := child.Start(); err != nil {
		return fmt.Errorf("start grading process: %w", err)
	}

	bus := events.NewBus()
	sub := bus.Subscribe()
	relayed := make(chan error, 1)
	go func() {
		relayed <- events.Relay(ctx, stdout, bus)
		bus.Close()
	}()

	viewErr := vc.viewer.Live(ctx, sub)

	// Quitting the viewer early stops the grading process.
	cancel()
	relayErr := <-relayed
	waitErr := child.Wait()

	if viewErr != nil {
		return viewErr
	}
	if relayErr != nil && !errors.Is(relayErr, context.Canceled) {
		return relayErr
	}
	return childError(waitErr, stderr.String())
}

// childArgs renders the flags that matter to the child run process
func childArgs(flags config.Flags) []string {
	args := []string{"run", "--events"}
	if flags.Processors > 0 {
		args = append(args, "--processors", strconv.Itoa(flags.Processors))
	}
	if flags.Filter != "" {
		args = append(args, "--filter", flags.Filter)
	}
	if flags.SourcePath != "" {
		args = append(args, "--src", flags.SourcePath)
	}
	if flags.FailFast {
		args = append(args, "--fail-fast")
	}
	if flags.BundlePath != "" {
		args = append(args, flags.BundlePath)
	}
	return args
}

// childError turns the exit of the grading process into an error
func childError(waitErr error, stderr string) error {
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		switch exitErr.ExitCode() {
		case ExitNotPassing:
			return nil
		case -1:
			// killed after the viewer was closed
			return nil
		}
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("grading process failed: %s", msg)
	}
	return fmt.Errorf("grading process failed: %w", waitErr)
}
