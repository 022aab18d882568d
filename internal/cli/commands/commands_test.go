package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"autograder/internal/config"
	"autograder/internal/events"
	"autograder/internal/storage"

	"github.com/spf13/cobra"
)

func writeBundle(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func newTestConfig(t *testing.T, bundle string) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.ProjectPath = t.TempDir()
	cfg.Flags.BundlePath = bundle
	cfg.Processors = 2
	return cfg
}

func newTestCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func TestRunCommand_MissingSource(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "tests-lab01")
	writeBundle(t, bundle, map[string]string{
		"test-lab01/config.yaml": "source: interest.py\n",
		"test-lab01/01.stdin":    "5\n",
		"test-lab01/01.stdout":   "10\n",
	})

	cfg := newTestConfig(t, bundle)
	cmds := NewCommands(cfg)

	var out bytes.Buffer
	err := cmds.Run.Execute(newTestCommand(&out), nil)
	if !errors.Is(err, ErrNotPassing) {
		t.Fatalf("expected ErrNotPassing, got %v", err)
	}
	if ExitCode(err) != ExitNotPassing {
		t.Errorf("expected exit code %d, got %d", ExitNotPassing, ExitCode(err))
	}
	if !strings.Contains(out.String(), "CONFIG ERROR") {
		t.Errorf("expected the summary to flag the config error, got:\n%s", out.String())
	}

	feedback, err := os.ReadFile(filepath.Join(dir, config.DefaultFeedbackFile))
	if err != nil {
		t.Fatalf("read feedback: %v", err)
	}
	if !strings.Contains(string(feedback), "interest.py") {
		t.Errorf("expected feedback to name the missing source, got:\n%s", feedback)
	}

	run, err := storage.NewJSONStorage(cfg).Load()
	if err != nil {
		t.Fatalf("load saved run: %v", err)
	}
	if run.Meta.Programs != 1 || run.Meta.FailingPrograms != 1 {
		t.Errorf("unexpected saved meta: %+v", run.Meta)
	}
}

func TestRunCommand_PassingWithSubmission(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	bundle := filepath.Join(dir, "tests-lab02")
	writeBundle(t, bundle, map[string]string{
		"test-double/config.yaml": "source: double.py\ntimeout: 5\n",
		"test-double/01.stdin":    "5\n",
		"test-double/01.stdout":   "10\n",
	})
	writeBundle(t, dir, map[string]string{
		"double.py": "print(int(input()) * 2)\n",
	})

	cfg := newTestConfig(t, bundle)
	cfg.Flags.Submit = true
	cmds := NewCommands(cfg)

	var out bytes.Buffer
	if err := cmds.Run.Execute(newTestCommand(&out), nil); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "lab02.zip")); err != nil {
		t.Errorf("expected submission archive: %v", err)
	}
	if !strings.Contains(out.String(), "CORRECTNESS TESTS PASSED") {
		t.Errorf("expected success message, got:\n%s", out.String())
	}
}

func TestRunCommand_EventsMode(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "tests-lab01")
	writeBundle(t, bundle, map[string]string{
		"test-lab01/config.yaml": "source: interest.py\n",
		"test-lab01/01.stdin":    "5\n",
	})

	cfg := newTestConfig(t, bundle)
	cfg.Flags.Events = true
	cmds := NewCommands(cfg)

	var out bytes.Buffer
	err := cmds.Run.Execute(newTestCommand(&out), nil)
	if !errors.Is(err, ErrNotPassing) {
		t.Fatalf("expected ErrNotPassing, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected report and done events, got:\n%s", out.String())
	}
	if !strings.Contains(lines[len(lines)-1], `"kind":"done"`) {
		t.Errorf("expected the stream to end with a done event, got %s", lines[len(lines)-1])
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultFeedbackFile)); !os.IsNotExist(err) {
		t.Error("events mode must not write the feedback file")
	}
}

func TestRunCommand_NothingToGrade(t *testing.T) {
	for _, streaming := range []bool{false, true} {
		name := "console"
		if streaming {
			name = "events"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			bundle := filepath.Join(dir, "tests-lab01")
			writeBundle(t, bundle, map[string]string{
				"test-lab01/config.yaml": "source: interest.py\n",
				"test-lab01/01.stdin":    "5\n",
			})

			cfg := newTestConfig(t, bundle)
			cfg.Flags.Events = streaming
			cfg.Flags.Filter = "no-such-program"
			cmds := NewCommands(cfg)

			var out bytes.Buffer
			if err := cmds.Run.Execute(newTestCommand(&out), nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			if len(lines) != 1 {
				t.Fatalf("expected a single line, got:\n%s", out.String())
			}
			if !strings.Contains(lines[0], "No programs to grade") {
				t.Errorf("expected the empty notice, got %s", lines[0])
			}
			if streaming {
				var event events.Event
				if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
					t.Fatalf("events mode printed a non-event line %q: %v", lines[0], err)
				}
				if event.Kind != events.KindDone || event.Done == nil || event.Done.Programs != 0 {
					t.Errorf("expected an empty done event, got %+v", event)
				}
			}
		})
	}
}

func TestListCommand_MarksLastFailures(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "tests-lab01")
	writeBundle(t, bundle, map[string]string{
		"test-lab01/config.yaml": "source: interest.py\n",
		"test-lab01/01.stdin":    "5\n",
		"test-lab02/config.yaml": "source: loan.py\n",
		"test-lab02/01.stdin":    "5\n",
	})

	cfg := newTestConfig(t, bundle)
	cmds := NewCommands(cfg)

	var out bytes.Buffer
	if err := cmds.Run.Execute(newTestCommand(&out), nil); !errors.Is(err, ErrNotPassing) {
		t.Fatalf("expected ErrNotPassing, got %v", err)
	}

	cfg.Flags.TestCases = true
	out.Reset()
	if err := cmds.List.Execute(newTestCommand(&out), nil); err != nil {
		t.Fatalf("list: %v", err)
	}
	listing := out.String()
	for _, want := range []string{"test-lab01", "test-lab02", "[F]", "#01"} {
		if !strings.Contains(listing, want) {
			t.Errorf("expected %q in listing:\n%s", want, listing)
		}
	}
}

func TestChildArgs(t *testing.T) {
	tests := []struct {
		name  string
		flags config.Flags
		want  []string
	}{
		{
			name:  "defaults",
			flags: config.Flags{},
			want:  []string{"run", "--events"},
		},
		{
			name: "all forwarded flags",
			flags: config.Flags{
				Processors: 8,
				Filter:     "lab0*",
				SourcePath: "src",
				FailFast:   true,
				BundlePath: "tests-lab01.zip",
			},
			want: []string{"run", "--events", "--processors", "8", "--filter", "lab0*", "--src", "src", "--fail-fast", "tests-lab01.zip"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := childArgs(tt.flags); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "not passing", err: ErrNotPassing, want: ExitNotPassing},
		{name: "wrapped not passing", err: errors.Join(errors.New("x"), ErrNotPassing), want: ExitNotPassing},
		{name: "other error", err: errors.New("boom"), want: ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestChildError(t *testing.T) {
	if err := childError(nil, ""); err != nil {
		t.Errorf("expected nil for a clean exit, got %v", err)
	}
	if err := childError(errors.New("exec failed"), "Error: no bundle\n"); err == nil || !strings.Contains(err.Error(), "no bundle") {
		t.Errorf("expected stderr in the error, got %v", err)
	}
}
