package grading

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"autograder/internal/compare"
	"autograder/internal/discovery"
	"autograder/internal/domain"
	"autograder/internal/execution"
	"autograder/internal/logging"
	"autograder/internal/parser"
)

// maxEchoedInputSize is the largest input file echoed back into feedback
const maxEchoedInputSize = 10 * 1024

// Routine produces the results of one program
type Routine interface {
	// NewReport prepares the report the routine fills
	NewReport(program *domain.Program) *domain.Report
	// Run grades the program and hands every result to emit in completion
	// order. It stops without error once emit returns false.
	Run(ctx context.Context, program *domain.Program, report *domain.Report, emit func(*domain.TestResult) bool) error
}

// FixedRoutine runs the declared test cases of a program one after another
type FixedRoutine struct {
	Runner     execution.Runner
	Workspaces WorkspaceFactory
	Comparator compare.Comparator
	Logger     logging.Logger
}

// NewReport implements Routine
func (r *FixedRoutine) NewReport(program *domain.Program) *domain.Report {
	return domain.NewReport(program.ID, program.Source, len(program.Tests), program.Timeout, program.SoftTimeout)
}

// Run implements Routine
func (r *FixedRoutine) Run(ctx context.Context, program *domain.Program, report *domain.Report, emit func(*domain.TestResult) bool) error {
	for i := range program.Tests {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc := &program.Tests[i]
		result, err := r.runTest(ctx, program, tc, report)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return graderFault(program.ID, fmt.Errorf("run %s against test %s: %w", program.Source, tc.Name, err))
		}
		if !emit(result) {
			return nil
		}
	}
	return nil
}

// Failure precedence, lowest rank wins
const (
	rankRuntime = iota
	rankConsole
	rankMissingFile
	rankFileContents
)

type verdict struct {
	rank int
	info string
	set  bool
}

func (v *verdict) fail(rank int, info string) {
	if !v.set || rank < v.rank {
		v.rank, v.info, v.set = rank, info, true
	}
}

func (r *FixedRoutine) runTest(ctx context.Context, program *domain.Program, tc *domain.TestCase, report *domain.Report) (result *domain.TestResult, err error) {
	ws, err := r.Workspaces.Create(program.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, ws.Cleanup())
	}()

	result = report.NewResult(tc.Name)
	result.Timeout = tc.Timeout
	result.SoftTimeout = tc.SoftTimeout

	inputs := sortedKeys(tc.InputFiles)
	for _, name := range inputs {
		text, err := discovery.ReadText(tc.InputFiles[name], program.Encoding)
		if err != nil {
			return nil, fmt.Errorf("read input file %q: %w", name, err)
		}
		if err := os.WriteFile(ws.Path(name), []byte(text), 0644); err != nil {
			return nil, fmt.Errorf("stage input file %q: %w", name, err)
		}
	}
	if err := copyFile(program.SourcePath, ws.Path(program.Source)); err != nil {
		return nil, fmt.Errorf("stage source: %w", err)
	}

	outcome, err := r.Runner.Run(ctx, execution.Request{
		Command:   program.CommandFor(program.Source),
		Dir:       ws.Dir,
		Stdin:     tc.Stdin,
		Timeout:   tc.Timeout,
		Label:     program.Source,
		EchoInput: tc.EchoInput,
	})
	if err != nil {
		return nil, err
	}
	result.Elapsed = outcome.Elapsed
	r.Logger.Debug("test executed", "test", result.Name(), "elapsed", outcome.Elapsed, "timed_out", outcome.TimedOut)

	var v verdict
	var sections []domain.FeedbackSection

	if tc.ExpectedStdout != nil {
		expected, err := discovery.ReadText(*tc.ExpectedStdout, program.Encoding)
		if err != nil {
			return nil, fmt.Errorf("read expected console output: %w", err)
		}
		section, match, err := r.compare(ctx, domain.LabelConsole, outcome.Stdout, expected, compare.KindStdout)
		if err != nil {
			return nil, err
		}
		if !match {
			v.fail(rankConsole, "console output mismatch")
		}
		sections = append(sections, section)
	}

	for _, name := range inputs {
		info, err := os.Stat(ws.Path(name))
		if err != nil || info.Size() >= maxEchoedInputSize {
			continue
		}
		data, err := os.ReadFile(ws.Path(name))
		if err != nil {
			continue
		}
		sections = append(sections, domain.FeedbackSection{
			Label: fmt.Sprintf(domain.LabelInputFile, name),
			Lines: splitLines(execution.NormalizeNewlines(execution.DecodePermissive(data))),
		})
	}

	for _, name := range sortedKeys(tc.ExpectedFiles) {
		data, err := os.ReadFile(ws.Path(name))
		if os.IsNotExist(err) {
			v.fail(rankMissingFile, "file expected, but missing: "+name)
			sections = append(sections, domain.FeedbackSection{Label: fmt.Sprintf(domain.LabelOutputMissing, name)})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read output file %q: %w", name, err)
		}
		expected, err := discovery.ReadText(tc.ExpectedFiles[name], program.Encoding)
		if err != nil {
			return nil, fmt.Errorf("read expected output file %q: %w", name, err)
		}
		actual := execution.NormalizeNewlines(execution.DecodePermissive(data))
		section, match, err := r.compare(ctx, fmt.Sprintf(domain.LabelOutputFile, name), actual, expected, compare.FileKind(name))
		if err != nil {
			return nil, err
		}
		if !match {
			v.fail(rankFileContents, "output file contents incorrect: "+name)
		}
		sections = append(sections, section)
	}

	if outcome.Failed() {
		cleaned := parser.NewTracebackParser(ws.Dir).Clean(outcome.Stderr)
		code := "none"
		if outcome.ExitCode != nil {
			code = strconv.Itoa(*outcome.ExitCode)
		}
		sections = append(sections, domain.FeedbackSection{
			Label: fmt.Sprintf(domain.LabelRuntimeErrors, code),
			Lines: splitLines(cleaned),
		})
		if outcome.TimedOut {
			v.fail(rankRuntime, outcome.Stderr)
		} else {
			v.fail(rankRuntime, "runtime errors or nonstandard exit code")
		}
		signature := cleaned
		if strings.TrimSpace(signature) == "" {
			signature = "exit code " + code
			if outcome.TimedOut {
				signature = fmt.Sprintf("timed out after %s", outcome.Elapsed.Round(time.Millisecond))
			}
		}
		if err := report.AddHardError(signature); err != nil {
			return nil, err
		}
	}

	score := 1.0
	if v.set {
		score = 0
	}
	if err := result.SetScore(score, v.info); err != nil {
		return nil, err
	}
	for _, s := range sections {
		if err := result.Attach(s); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// compare judges actual against expected and renders the feedback section for it
func (r *FixedRoutine) compare(ctx context.Context, label, actual, expected string, kind compare.Kind) (domain.FeedbackSection, bool, error) {
	res, err := r.Comparator.Compare(ctx, strings.NewReader(actual), strings.NewReader(expected), kind)
	if err != nil {
		return domain.FeedbackSection{}, false, fmt.Errorf("compare %s: %w", kind, err)
	}
	if res.Feedback != nil {
		return domain.FeedbackSection{Label: label, Lines: res.Feedback}, res.Match, nil
	}
	return domain.FeedbackSection{Label: label, Lines: compare.Diff(expected, actual), Diff: true}, res.Match, nil
}

func sortedKeys(m map[string]domain.FileRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
