package commands

import (
	"autograder/internal/cli"
	"autograder/internal/config"
	"autograder/internal/discovery"
	"autograder/internal/execution"
	"autograder/internal/grading"
	"autograder/internal/logging"
	"autograder/internal/parser"
	"autograder/internal/storage"
	"autograder/internal/style"
	"autograder/internal/ui"

	"github.com/spf13/cobra"
)

// Commands holds all CLI commands
type Commands struct {
	Run     *RunCommand
	List    *ListCommand
	Migrate *MigrateCommand
	View    *ViewCommand
}

// NewCommands creates all commands with dependencies
func NewCommands(cfg *config.Config) *Commands {
	// Initialize dependencies
	scanner := discovery.NewScanner(cfg.PathsToIgnore)
	filter := discovery.NewFilter()
	jsonStorage := storage.NewJSONStorage(cfg)
	formatter := ui.NewFormatter(cfg, parser.NewTracebackParser(""))
	viewer := ui.NewResultsViewer()

	return &Commands{
		Run:     NewRunCommand(cfg, scanner, filter, jsonStorage, formatter, viewer),
		List:    NewListCommand(cfg, scanner, filter, formatter, jsonStorage),
		Migrate: NewMigrateCommand(cfg),
		View:    NewViewCommand(cfg, jsonStorage, viewer),
	}
}

// newGrader builds the grading pipeline from the loaded configuration.
// Runtime settings come from flags and the environment, so this runs after PreRunE.
func newGrader(cfg *config.Config, logger logging.Logger) *grading.WorkerPool {
	runner := execution.NewRunner(
		execution.WithDrainWait(cfg.DrainWait),
		execution.WithLogger(logger),
	)
	engine := grading.NewEngine(runner,
		grading.WithWorkspaces(grading.TempWorkspaces{Root: cfg.ScratchRoot}),
		grading.WithStyleChecker(style.NewCommandChecker(runner, style.DefaultTimeout)),
		grading.WithLogger(logger),
	)
	return grading.NewWorkerPool(engine, cfg.Processors, logger)
}

// loadConfig reloads cfg from the environment and the parsed flags
func loadConfig(cfg *config.Config, flags *cli.Flags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		bundle := ""
		if len(args) > 0 {
			bundle = args[0]
		}
		loaded, err := config.Load(flags.ToConfigFlags(bundle))
		if err != nil {
			return err
		}
		*cfg = *loaded
		return nil
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	// Run command
	runCmd := &cobra.Command{
		Use:     "run [bundle]",
		Short:   "Grade candidate programs against a test bundle",
		Long:    "Run every program of a test bundle (directory or tests-*.zip) against its candidate source and report the results",
		Args:    cobra.MaximumNArgs(1),
		RunE:    c.Run.Execute,
		PreRunE: loadConfig(cfg, flags),
	}
	runCmd.Flags().IntVarP(&flags.Processors, "processors", "p", 0, "Number of programs graded in parallel (default GRADER_PROCESSORS or 4)")
	runCmd.Flags().StringVarP(&flags.Filter, "filter", "f", "", "Grade only programs matching the pattern (supports wildcards, e.g. 'lab0*' or '*interest*')")
	runCmd.Flags().StringVarP(&flags.SourcePath, "src", "s", "", "Directory holding the candidate sources (default: the bundle's directory)")
	runCmd.Flags().BoolVar(&flags.Events, "events", false, "Write the event stream to stdout as NDJSON instead of the console output")
	runCmd.Flags().BoolVar(&flags.Submit, "submit", false, "Build the submission archive when every program passes")
	runCmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging on stderr")
	runCmd.Flags().BoolVar(&flags.SaveDB, "save-db", false, "Also store the run in the MySQL gradebook")
	runCmd.Flags().BoolVar(&flags.Open, "open", false, "Open the results viewer when the run finishes with failures")
	runCmd.Flags().BoolVar(&flags.FailFast, "fail-fast", false, "Stop handing out programs after the first one that does not pass")
	rootCmd.AddCommand(runCmd)

	// List command
	listCmd := &cobra.Command{
		Use:     "list [bundle]",
		Short:   "List the programs of a test bundle",
		Long:    "Resolve a test bundle and list its programs without running anything",
		Args:    cobra.MaximumNArgs(1),
		RunE:    c.List.Execute,
		PreRunE: loadConfig(cfg, flags),
	}
	listCmd.Flags().StringVarP(&flags.Filter, "filter", "f", "", "List only programs matching the pattern (supports wildcards)")
	listCmd.Flags().StringVarP(&flags.SourcePath, "src", "s", "", "Directory holding the candidate sources (default: the bundle's directory)")
	listCmd.Flags().BoolVarP(&flags.TestCases, "test-cases", "c", false, "Show the test cases of every program")
	rootCmd.AddCommand(listCmd)

	// Migrate command
	migrateCmd := &cobra.Command{
		Use:     "migrate",
		Short:   "Create the MySQL gradebook",
		Long:    "Create the gradebook database if needed and the tables used by run --save-db",
		Args:    cobra.NoArgs,
		RunE:    c.Migrate.Execute,
		PreRunE: loadConfig(cfg, flags),
	}
	rootCmd.AddCommand(migrateCmd)

	// View command
	viewCmd := &cobra.Command{
		Use:     "view [bundle]",
		Short:   "View grading results interactively",
		Long:    "Browse the last saved run, or with --live grade a bundle and watch results arrive",
		Args:    cobra.MaximumNArgs(1),
		RunE:    c.View.Execute,
		PreRunE: loadConfig(cfg, flags),
	}
	viewCmd.Flags().BoolVar(&flags.Live, "live", false, "Grade the bundle in a child process and stream its results")
	viewCmd.Flags().IntVarP(&flags.Processors, "processors", "p", 0, "Number of programs graded in parallel (with --live)")
	viewCmd.Flags().StringVarP(&flags.Filter, "filter", "f", "", "Grade only programs matching the pattern (with --live)")
	viewCmd.Flags().StringVarP(&flags.SourcePath, "src", "s", "", "Directory holding the candidate sources (with --live)")
	viewCmd.Flags().BoolVar(&flags.FailFast, "fail-fast", false, "Stop after the first program that does not pass (with --live)")
	rootCmd.AddCommand(viewCmd)
}
