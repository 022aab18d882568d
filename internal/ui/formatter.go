package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"autograder/internal/config"
	"autograder/internal/domain"
	"autograder/internal/parser"
	"autograder/internal/storage"
)

// Formatter formats and displays output
type Formatter struct {
	config *config.Config
	errors parser.Parser
	out    io.Writer
}

// NewFormatter creates a new Formatter writing to stdout
func NewFormatter(cfg *config.Config, p parser.Parser) *Formatter {
	return &Formatter{
		config: cfg,
		errors: p,
		out:    os.Stdout,
	}
}

// SetOutput redirects the formatter
func (f *Formatter) SetOutput(w io.Writer) {
	f.out = w
}

// PrintRunSummary prints the per-program table and the list of programs that did not pass
func (f *Formatter) PrintRunSummary(run *storage.Run) {
	meta := run.Meta
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(f.out)
	cyan.Fprintln(f.out, "╔═══════════════════════════════════════════════════════════════╗")
	cyan.Fprintln(f.out, "║                     Grading Statistics                        ║")
	cyan.Fprintln(f.out, "╚═══════════════════════════════════════════════════════════════╝")

	table := tablewriter.NewWriter(f.out)
	table.SetHeader([]string{"Program", "Source", "Passed", "Grade", "Timeouts", "Slow", "Status"})
	table.SetAutoWrapText(false)
	for _, rep := range run.Reports {
		table.Append(summaryRow(rep))
	}
	table.Render()

	fmt.Fprintf(f.out, "%d/%d programs passing, %d/%d tests passed in %.2fs with %d workers (run %s)\n",
		meta.PassingPrograms, meta.Programs, meta.PassedTests, meta.Tests,
		meta.DurationSeconds, meta.Workers, meta.RunID)

	fmt.Fprintln(f.out)
	if run.IsPassing() {
		color.New(color.FgGreen).Fprintln(f.out, "✓ CORRECTNESS TESTS PASSED FOR ALL COMPLETED PROGRAMS")
		fmt.Fprintln(f.out, "Reminder: passing correctness tests does not guarantee full credit.")
		return
	}

	color.New(color.FgRed).Fprintln(f.out, "The following programs did not pass:")
	f.printFailureTree(run.Reports)
}

// PrintSubmission announces the generated submission archive
func (f *Formatter) PrintSubmission(archive string) {
	if rel, err := filepath.Rel(f.config.ProjectPath, archive); err == nil && !strings.HasPrefix(rel, "..") {
		archive = rel
	}
	color.New(color.FgGreen).Fprintf(f.out, "(%s generated for submission)\n", archive)
}

func summaryRow(rep *domain.Report) []string {
	status := "FAIL"
	switch {
	case rep.Fault != domain.FaultNone:
		status = strings.ToUpper(string(rep.Fault)) + " ERROR"
	case rep.IsPassing():
		status = "PASS"
	}
	passed := fmt.Sprintf("%d/%d", rep.CountPassed(), rep.Expected())
	if rep.Fault != domain.FaultNone {
		passed = "-"
	}
	return []string{
		rep.ProgramID,
		rep.Source,
		passed,
		fmt.Sprintf("%.0f%%", 100*rep.Grade()),
		fmt.Sprint(rep.CountTimeouts()),
		fmt.Sprint(rep.CountSoftTimeouts()),
		status,
	}
}

// printFailureTree prints each non-passing program with its failing tests
// and a one-line summary of every hard error
func (f *Formatter) printFailureTree(reports []*domain.Report) {
	var failing []*domain.Report
	for _, rep := range reports {
		if !rep.IsPassing() {
			failing = append(failing, rep)
		}
	}

	for i, rep := range failing {
		lastProgram := i == len(failing)-1
		branch, indent := "├── ", "│   "
		if lastProgram {
			branch, indent = "└── ", "    "
		}
		name := rep.Source
		if name == "" {
			name = rep.ProgramID
		}
		color.New(color.FgYellow).Fprintf(f.out, "%s%s\n", branch, name)

		var lines []string
		for _, result := range rep.Results {
			if result.IsPassing() || result.ID == domain.ErrorResultID {
				continue
			}
			line := result.ID
			if result.Info != "" {
				line += ": " + result.Info
			}
			lines = append(lines, line)
		}
		for _, msg := range rep.HardErrors {
			if rep.Fault != domain.FaultNone {
				lines = append(lines, strings.Split(strings.TrimSpace(msg), "\n")...)
				continue
			}
			if summary := parser.Summarize(f.errors, msg); summary != "" {
				lines = append(lines, summary)
			}
		}

		for j, line := range lines {
			prefix := indent + "├── "
			if j == len(lines)-1 {
				prefix = indent + "└── "
			}
			fmt.Fprintf(f.out, "%s%s\n", prefix, color.RedString(line))
		}
	}
}

// CountTestCases returns the total number of test cases across the given programs.
func (f *Formatter) CountTestCases(programs []*domain.Program) int {
	var total int
	for _, p := range programs {
		total += len(p.Tests)
	}
	return total
}

// PrintProgramList prints the programs of a bundle, optionally with their test cases.
// failed is optional; programs in this set are marked with [F] in red (from last run).
func (f *Formatter) PrintProgramList(programs []*domain.Program, showTestCases bool, failed map[string]struct{}) {
	if showTestCases {
		color.New(color.FgGreen).Fprintf(f.out, "Found %d program(s) with %d test case(s):\n\n", len(programs), f.CountTestCases(programs))
	} else {
		color.New(color.FgGreen).Fprintf(f.out, "Found %d program(s):\n\n", len(programs))
	}

	for i, p := range programs {
		isLast := i == len(programs)-1
		branch, indent := "├── ", "│   "
		if isLast {
			branch, indent = "└── ", "    "
		}

		marker := ""
		if _, ok := failed[p.ID]; ok {
			marker = " " + color.RedString("[F]")
		}
		label := p.ID
		if p.Source != "" {
			label += " (" + p.Source + ")"
		}
		color.New(color.FgCyan).Fprintf(f.out, "%s%s%s\n", branch, label, marker)

		if p.ConfigError != "" {
			fmt.Fprintf(f.out, "%s└── %s\n", indent, color.RedString(p.ConfigError))
			continue
		}
		if !showTestCases {
			continue
		}
		if len(p.Grader) > 0 {
			fmt.Fprintf(f.out, "%s└── %s\n", indent, color.YellowString("custom grader: %s", filepath.Base(p.Grader[0])))
			continue
		}
		if len(p.Tests) == 0 {
			fmt.Fprintf(f.out, "%s└── %s\n", indent, color.RedString("(no test cases found)"))
			continue
		}
		for j, tc := range p.Tests {
			prefix := indent + "├── "
			if j == len(p.Tests)-1 {
				prefix = indent + "└── "
			}
			fmt.Fprintf(f.out, "%s%s\n", prefix, color.YellowString(tc.Name))
		}
	}
}
