package grading

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"autograder/internal/domain"
	"autograder/internal/execution"
)

type stubRunner struct {
	run   func(req execution.Request) (domain.ExecutionOutcome, error)
	calls []execution.Request
}

func (s *stubRunner) Run(_ context.Context, req execution.Request) (domain.ExecutionOutcome, error) {
	s.calls = append(s.calls, req)
	return s.run(req)
}

func exitCode(n int) *int {
	return &n
}

func succeed(stdout string) func(execution.Request) (domain.ExecutionOutcome, error) {
	return func(execution.Request) (domain.ExecutionOutcome, error) {
		return domain.ExecutionOutcome{ExitCode: exitCode(0), Stdout: stdout, Elapsed: 10 * time.Millisecond}, nil
	}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// newProgram lays out a program folder with one test and a candidate source
func newProgram(t *testing.T, files map[string]string) (*domain.Program, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "test-lab01")
	for name, content := range files {
		writeFile(t, filepath.Join(dir, name), content)
	}
	source := writeFile(t, filepath.Join(root, "src", "main.py"), "print(7)\n")

	tc := domain.TestCase{
		ID:            "01",
		Name:          "#01",
		Stdin:         []string{"3\n", "4\n"},
		ExpectedFiles: map[string]domain.FileRef{},
		InputFiles:    map[string]domain.FileRef{},
		Timeout:       time.Second,
		SoftTimeout:   time.Second,
	}
	for name := range files {
		switch {
		case name == "01.stdout":
			tc.ExpectedStdout = &domain.FileRef{Path: filepath.Join(dir, name)}
		case strings.HasPrefix(name, "01-inp-"):
			tc.InputFiles[strings.TrimPrefix(name, "01-inp-")] = domain.FileRef{Path: filepath.Join(dir, name)}
		case strings.HasPrefix(name, "01-out-"):
			tc.ExpectedFiles[strings.TrimPrefix(name, "01-out-")] = domain.FileRef{Path: filepath.Join(dir, name)}
		}
	}

	return &domain.Program{
		ID:          "lab01",
		Dir:         dir,
		Source:      "main.py",
		SourcePath:  source,
		Command:     []string{"python3", "{source}"},
		Tests:       []domain.TestCase{tc},
		Timeout:     time.Second,
		SoftTimeout: time.Second,
	}, root
}

func runOne(t *testing.T, engine *Engine, program *domain.Program) (*domain.Report, []*domain.TestResult) {
	t.Helper()
	var yielded []*domain.TestResult
	report, err := engine.RunProgram(context.Background(), program, func(r *domain.TestResult) bool {
		yielded = append(yielded, r)
		return true
	})
	if err != nil {
		t.Fatalf("run program: %v", err)
	}
	return report, yielded
}

func labels(r *domain.TestResult) []string {
	var out []string
	for _, s := range r.Sections {
		out = append(out, s.Label)
	}
	return out
}

func TestEngine_PassingTest(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	runner := &stubRunner{run: succeed("7\n")}

	report, yielded := runOne(t, NewEngine(runner), program)

	if len(yielded) != 1 {
		t.Fatalf("expected 1 yielded result, got %d", len(yielded))
	}
	result := yielded[0]
	if result.Score != 1 || result.Info != "" || !result.IsPassing() {
		t.Errorf("expected passing result, got score=%v info=%q", result.Score, result.Info)
	}
	if !report.IsComplete() || !report.IsPassing() || report.Grade() != 1 {
		t.Errorf("expected complete passing report, got %s", report.Summary())
	}

	req := runner.calls[0]
	if !reflect.DeepEqual(req.Command, []string{"python3", "main.py"}) {
		t.Errorf("unexpected command %v", req.Command)
	}
	if !reflect.DeepEqual(req.Stdin, []string{"3\n", "4\n"}) || req.Timeout != time.Second || req.Label != "main.py" {
		t.Errorf("unexpected request %+v", req)
	}
	want := domain.FeedbackSection{Label: domain.LabelConsole, Lines: []string{"  7"}, Diff: true}
	if !reflect.DeepEqual(result.Sections, []domain.FeedbackSection{want}) {
		t.Errorf("unexpected feedback %+v", result.Sections)
	}
}

func TestEngine_FailurePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		stdout     string
		stderr     string
		code       *int
		timedOut   bool
		writes     map[string]string
		wantInfo   string
		wantLabels []string
	}{
		{
			name:       "console mismatch",
			files:      map[string]string{"01.stdout": "7\n"},
			stdout:     "8\n",
			code:       exitCode(0),
			wantInfo:   "console output mismatch",
			wantLabels: []string{"console output"},
		},
		{
			name:       "runtime error beats console mismatch",
			files:      map[string]string{"01.stdout": "7\n"},
			stdout:     "",
			stderr:     "Traceback (most recent call last):\n  File \"/tmp/x/main.py\", line 1\nNameError: name 'x' is not defined\n",
			code:       exitCode(1),
			wantInfo:   "runtime errors or nonstandard exit code",
			wantLabels: []string{"console output", "runtime errors (exit code: 1)"},
		},
		{
			name:       "timeout",
			files:      map[string]string{"01.stdout": "7\n"},
			stderr:     execution.TimeoutMessage("main.py", time.Second),
			timedOut:   true,
			wantInfo:   "[main.py] maximum runtime allowance (1.00 seconds) exceeded",
			wantLabels: []string{"console output", "runtime errors (exit code: none)"},
		},
		{
			name:       "console mismatch beats missing file",
			files:      map[string]string{"01.stdout": "7\n", "01-out-a.txt": "a\n"},
			stdout:     "8\n",
			code:       exitCode(0),
			wantInfo:   "console output mismatch",
			wantLabels: []string{"console output", "output file missing: a.txt"},
		},
		{
			name:       "missing file beats wrong file",
			files:      map[string]string{"01-out-a.txt": "a\n", "01-out-b.txt": "b\n"},
			code:       exitCode(0),
			writes:     map[string]string{"b.txt": "wrong\n"},
			wantInfo:   "file expected, but missing: a.txt",
			wantLabels: []string{"output file missing: a.txt", "output file: b.txt"},
		},
		{
			name:       "wrong file contents",
			files:      map[string]string{"01-out-b.txt": "b\n"},
			code:       exitCode(0),
			writes:     map[string]string{"b.txt": "wrong\n"},
			wantInfo:   "output file contents incorrect: b.txt",
			wantLabels: []string{"output file: b.txt"},
		},
		{
			name:       "output file with windows newlines matches",
			files:      map[string]string{"01-out-b.txt": "b\nc\n"},
			code:       exitCode(0),
			writes:     map[string]string{"b.txt": "b\r\nc\r\n"},
			wantLabels: []string{"output file: b.txt"},
		},
		{
			name:       "output on stderr alone is a runtime error",
			files:      map[string]string{"01.stdout": "7\n"},
			stdout:     "7\n",
			stderr:     "warning\n",
			code:       exitCode(0),
			wantInfo:   "runtime errors or nonstandard exit code",
			wantLabels: []string{"console output", "runtime errors (exit code: 0)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, _ := newProgram(t, tt.files)
			runner := &stubRunner{run: func(req execution.Request) (domain.ExecutionOutcome, error) {
				for name, content := range tt.writes {
					writeFile(t, filepath.Join(req.Dir, name), content)
				}
				elapsed := 10 * time.Millisecond
				if tt.timedOut {
					elapsed = req.Timeout
				}
				return domain.ExecutionOutcome{ExitCode: tt.code, Stdout: tt.stdout, Stderr: tt.stderr, TimedOut: tt.timedOut, Elapsed: elapsed}, nil
			}}

			report, yielded := runOne(t, NewEngine(runner), program)
			result := yielded[0]

			wantScore := 0.0
			if tt.wantInfo == "" {
				wantScore = 1
			}
			if result.Score != wantScore || result.Info != tt.wantInfo {
				t.Errorf("expected score=%v info=%q, got score=%v info=%q", wantScore, tt.wantInfo, result.Score, result.Info)
			}
			if got := labels(result); !reflect.DeepEqual(got, tt.wantLabels) {
				t.Errorf("expected sections %q, got %q", tt.wantLabels, got)
			}
			if tt.stderr != "" && len(report.HardErrors) != 1 {
				t.Errorf("expected one hard error, got %q", report.HardErrors)
			}
		})
	}
}

func TestEngine_SilentFailureLeavesSignature(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.ExecutionOutcome
		want    string
	}{
		{
			name:    "non-zero exit",
			outcome: domain.ExecutionOutcome{ExitCode: exitCode(3), Elapsed: 10 * time.Millisecond},
			want:    "exit code 3",
		},
		{
			name:    "timeout",
			outcome: domain.ExecutionOutcome{TimedOut: true, Elapsed: time.Second},
			want:    "timed out after 1s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
			runner := &stubRunner{run: func(execution.Request) (domain.ExecutionOutcome, error) {
				return tt.outcome, nil
			}}

			report, yielded := runOne(t, NewEngine(runner), program)

			if yielded[0].Score != 0 {
				t.Errorf("expected a failing result, got score %v", yielded[0].Score)
			}
			if len(report.HardErrors) != 1 || report.HardErrors[0] != tt.want {
				t.Errorf("expected hard error %q, got %q", tt.want, report.HardErrors)
			}
		})
	}
}

func TestEngine_TracebackPathsAreCleaned(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	runner := &stubRunner{run: func(req execution.Request) (domain.ExecutionOutcome, error) {
		stderr := "Traceback (most recent call last):\n  File \"" + filepath.Join(req.Dir, "main.py") + "\", line 2, in <module>\nZeroDivisionError: division by zero\n"
		return domain.ExecutionOutcome{ExitCode: exitCode(1), Stderr: stderr}, nil
	}}

	report, yielded := runOne(t, NewEngine(runner), program)

	runtime := yielded[0].Sections[len(yielded[0].Sections)-1]
	if runtime.Lines[1] != `  File "main.py", line 2, in <module>` {
		t.Errorf("traceback path not cleaned: %q", runtime.Lines)
	}
	if !strings.Contains(report.HardErrors[0], `File "main.py", line 2`) {
		t.Errorf("hard error not cleaned: %q", report.HardErrors[0])
	}
}

func TestEngine_StagesInputsAndSource(t *testing.T) {
	program, _ := newProgram(t, map[string]string{
		"01.stdout":       "ok\n",
		"01-inp-data.txt": "line one\r\nline two\r\n",
	})
	program.Encoding = "windows-1252"
	writeFile(t, program.Tests[0].InputFiles["data.txt"].Path, "caf\xe9\r\n")

	var staged, source string
	runner := &stubRunner{run: func(req execution.Request) (domain.ExecutionOutcome, error) {
		b, err := os.ReadFile(filepath.Join(req.Dir, "data.txt"))
		if err != nil {
			return domain.ExecutionOutcome{}, err
		}
		staged = string(b)
		b, err = os.ReadFile(filepath.Join(req.Dir, "main.py"))
		if err != nil {
			return domain.ExecutionOutcome{}, err
		}
		source = string(b)
		return domain.ExecutionOutcome{ExitCode: exitCode(0), Stdout: "ok\n"}, nil
	}}

	_, yielded := runOne(t, NewEngine(runner), program)

	if staged != "café\n" {
		t.Errorf("input file not decoded and normalized: %q", staged)
	}
	if source != "print(7)\n" {
		t.Errorf("source not staged: %q", source)
	}
	want := []string{"console output", "input file: data.txt"}
	if got := labels(yielded[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("expected sections %q, got %q", want, got)
	}
	if lines := yielded[0].Sections[1].Lines; !reflect.DeepEqual(lines, []string{"café"}) {
		t.Errorf("unexpected input echo %q", lines)
	}
}

func TestEngine_WorkspacesAreRemoved(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	scratch := t.TempDir()

	var dir string
	runner := &stubRunner{run: func(req execution.Request) (domain.ExecutionOutcome, error) {
		dir = req.Dir
		return domain.ExecutionOutcome{ExitCode: exitCode(0), Stdout: "7\n"}, nil
	}}
	runOne(t, NewEngine(runner, WithWorkspaces(TempWorkspaces{Root: scratch})), program)

	if !strings.HasPrefix(dir, scratch) {
		t.Errorf("workspace %s not created under %s", dir, scratch)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("workspace %s was not removed", dir)
	}
}

func TestEngine_MissingSource(t *testing.T) {
	program, root := newProgram(t, map[string]string{"01.stdout": "7\n"})
	program.Source = "mian.py"
	program.SourcePath = filepath.Join(root, "src", "mian.py")
	runner := &stubRunner{run: succeed("7\n")}

	report, yielded := runOne(t, NewEngine(runner), program)

	if len(yielded) != 0 || len(runner.calls) != 0 {
		t.Error("nothing should run for a missing source")
	}
	if report.Fault != domain.FaultConfig || !report.IsComplete() || report.IsPassing() {
		t.Errorf("expected finished config error report, got %+v", report)
	}
	want := "Source file mian.py is missing. Tests omitted.\nThis name looks close, perhaps a typo? main.py"
	if report.HardErrors[0] != want {
		t.Errorf("expected %q, got %q", want, report.HardErrors[0])
	}
}

func TestEngine_ConfigError(t *testing.T) {
	program, _ := newProgram(t, nil)
	program.ConfigError = "bad timeout"

	report, _ := runOne(t, NewEngine(&stubRunner{run: succeed("")}), program)
	if report.Fault != domain.FaultConfig || report.Results[0].ID != domain.ErrorResultID {
		t.Errorf("expected config error report, got %+v", report)
	}
}

func TestEngine_GraderFaultReplacesReport(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	second := program.Tests[0]
	second.ID, second.Name = "02", "#02"
	program.Tests = append(program.Tests, second)

	calls := 0
	runner := &stubRunner{run: func(execution.Request) (domain.ExecutionOutcome, error) {
		calls++
		if calls == 2 {
			return domain.ExecutionOutcome{}, errors.New("fork failed")
		}
		return domain.ExecutionOutcome{ExitCode: exitCode(0), Stdout: "7\n"}, nil
	}}

	report, yielded := runOne(t, NewEngine(runner), program)

	if len(yielded) != 1 {
		t.Errorf("expected the first result to be yielded, got %d", len(yielded))
	}
	if report.Fault != domain.FaultGrader || report.Grade() != 0 || !report.IsComplete() {
		t.Errorf("expected grader error report, got %s", report.Summary())
	}
	if len(report.Results) != 1 || report.Results[0].ID != domain.ErrorResultID {
		t.Errorf("expected only the error result, got %+v", report.Results)
	}
	if !strings.Contains(report.HardErrors[0], "fork failed") {
		t.Errorf("expected cause in hard error, got %q", report.HardErrors)
	}
}

func TestEngine_YieldFalseStops(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	program.Tests = append(program.Tests, program.Tests[0])
	runner := &stubRunner{run: succeed("7\n")}

	report, err := NewEngine(runner).RunProgram(context.Background(), program, func(*domain.TestResult) bool {
		return false
	})
	if err != nil {
		t.Fatalf("run program: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("expected grading to stop after the first test, ran %d", len(runner.calls))
	}
	if report.IsComplete() {
		t.Error("stopped report should not be complete")
	}
}

func TestEngine_ContextCancelled(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	ctx, cancel := context.WithCancel(context.Background())
	runner := &stubRunner{run: func(execution.Request) (domain.ExecutionOutcome, error) {
		cancel()
		return domain.ExecutionOutcome{}, context.Canceled
	}}

	_, err := NewEngine(runner).RunProgram(ctx, program, func(*domain.TestResult) bool { return true })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type stubStyle struct {
	issues []string
}

func (s stubStyle) Check(context.Context, *domain.Program) ([]string, error) {
	return s.issues, nil
}

func TestEngine_StyleIssues(t *testing.T) {
	program, _ := newProgram(t, map[string]string{"01.stdout": "7\n"})
	program.Style = []string{"pycodestyle", "{source}"}
	issues := []string{"main.py:1:1: [E111] indentation is not a multiple of 4"}

	report, _ := runOne(t, NewEngine(&stubRunner{run: succeed("7\n")}, WithStyleChecker(stubStyle{issues: issues})), program)

	if !reflect.DeepEqual(report.StyleIssues, issues) {
		t.Errorf("expected style issues %q, got %q", issues, report.StyleIssues)
	}
	if !report.IsPassing() || !report.HasErrors() {
		t.Error("style issues are reported but do not fail the program")
	}
}
