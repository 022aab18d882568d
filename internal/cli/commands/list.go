package commands

import (
	"autograder/internal/config"
	"autograder/internal/discovery"
	"autograder/internal/storage"
	"autograder/internal/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// ListCommand handles the list command
type ListCommand struct {
	config    *config.Config
	scanner   *discovery.Scanner
	filter    *discovery.Filter
	formatter *ui.Formatter
	storage   storage.Storage
}

// NewListCommand creates a new ListCommand
func NewListCommand(
	cfg *config.Config,
	scanner *discovery.Scanner,
	filter *discovery.Filter,
	formatter *ui.Formatter,
	st storage.Storage,
) *ListCommand {
	return &ListCommand{
		config:    cfg,
		scanner:   scanner,
		filter:    filter,
		formatter: formatter,
		storage:   st,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) (err error) {
	bundlePath, err := lc.config.GetBundlePath()
	if err != nil {
		return err
	}
	bundle, programs, err := loadPrograms(lc.config, lc.scanner, lc.filter, bundlePath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, bundle.Close())
	}()

	if len(programs) == 0 {
		color.Yellow("No programs found")
		return nil
	}

	lc.formatter.SetOutput(cmd.OutOrStdout())
	lc.formatter.PrintProgramList(programs, lc.config.Flags.TestCases, lc.lastFailures())
	return nil
}

// lastFailures returns the programs that did not pass in the last saved run
func (lc *ListCommand) lastFailures() map[string]struct{} {
	failed := make(map[string]struct{})
	run, err := lc.storage.Load()
	if err != nil {
		return failed
	}
	for _, rep := range run.Reports {
		if !rep.IsPassing() {
			failed[rep.ProgramID] = struct{}{}
		}
	}
	return failed
}
