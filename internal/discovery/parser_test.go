package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

func TestParser_ParseProgram(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "test-lab01")
	writeFiles(t, dir, map[string]string{
		"config.yaml": `grader-version: 5
source: interest.py
timeout: 2
soft-timeout: 1.5
compare: tokens
style: [pycodestyle, "{source}"]
`,
		"01.stdin":          "1000\r\n0.05\r\n",
		"01.stdout":         "Balance: 1050.00\n",
		"01-inp-rates.txt":  "0.05\n",
		"01-out-report.txt": "done\n",
		"02.stdin":          "5",
		"02-config.yaml":    "test-name: Zero interest\ntimeout: 0.5\necho-input: true\n",
		"notes.md":          "ignored",
	})

	parser := NewParser(nil, "/work/src")
	program, err := parser.ParseProgram(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if program.ConfigError != "" {
		t.Fatalf("unexpected config error: %s", program.ConfigError)
	}

	t.Run("program settings", func(t *testing.T) {
		if program.ID != "test-lab01" || program.Source != "interest.py" {
			t.Errorf("unexpected identity: %s %s", program.ID, program.Source)
		}
		if program.SourcePath != filepath.Join("/work/src", "interest.py") {
			t.Errorf("unexpected source path: %s", program.SourcePath)
		}
		if !reflect.DeepEqual(program.Command, DefaultCommand) {
			t.Errorf("expected default command, got %v", program.Command)
		}
		if !reflect.DeepEqual(program.Style, []string{"pycodestyle", "{source}"}) {
			t.Errorf("unexpected style command: %v", program.Style)
		}
		if program.Timeout != 2*time.Second || program.SoftTimeout != 1500*time.Millisecond {
			t.Errorf("unexpected limits: %s / %s", program.Timeout, program.SoftTimeout)
		}
		if program.Compare != "tokens" {
			t.Errorf("unexpected compare strategy: %s", program.Compare)
		}
	})

	t.Run("tests in id order", func(t *testing.T) {
		if len(program.Tests) != 2 {
			t.Fatalf("expected 2 tests, got %d", len(program.Tests))
		}
		first, second := program.Tests[0], program.Tests[1]

		if first.Name != "#01" {
			t.Errorf("expected default name #01, got %s", first.Name)
		}
		if !reflect.DeepEqual(first.Stdin, []string{"1000\n", "0.05\n"}) {
			t.Errorf("unexpected stdin chunks: %q", first.Stdin)
		}
		if first.ExpectedStdout == nil || filepath.Base(first.ExpectedStdout.Path) != "01.stdout" {
			t.Errorf("expected stdout reference, got %+v", first.ExpectedStdout)
		}
		if _, ok := first.InputFiles["rates.txt"]; !ok {
			t.Errorf("expected rates.txt input file, got %v", first.InputFiles)
		}
		if _, ok := first.ExpectedFiles["report.txt"]; !ok {
			t.Errorf("expected report.txt output file, got %v", first.ExpectedFiles)
		}
		if first.Timeout != 2*time.Second || first.EchoInput {
			t.Errorf("first test should inherit program settings: %+v", first)
		}

		if second.Name != "Zero interest" || !second.EchoInput {
			t.Errorf("per-test config not applied: %+v", second)
		}
		if second.Timeout != 500*time.Millisecond || second.SoftTimeout != 500*time.Millisecond {
			t.Errorf("expected clamped 0.5s limits, got %s / %s", second.Timeout, second.SoftTimeout)
		}
		if second.ExpectedStdout != nil {
			t.Error("second test has no expected stdout")
		}
		if !reflect.DeepEqual(second.Stdin, []string{"5"}) {
			t.Errorf("unexpected stdin chunks: %q", second.Stdin)
		}
	})
}

func TestParser_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{name: "missing config", config: "", want: "missing config.yaml"},
		{name: "missing source", config: "timeout: 1\n", want: "missing source"},
		{name: "bad yaml", config: "source: [a\n", want: "parse config.yaml"},
		{name: "unknown encoding", config: "source: a.py\nencoding: klingon\n", want: "unknown encoding"},
		{name: "unknown comparator", config: "source: a.py\ncompare: fuzzy\n", want: "fuzzy"},
		{name: "negative timeout", config: "source: a.py\ntimeout: -1\n", want: "timeout must be positive"},
		{name: "source with directory", config: "source: ../a.py\n", want: "plain file name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "test-x")
			files := map[string]string{"01.stdin": "1\n"}
			if tt.config != "" {
				files["config.yaml"] = tt.config
			}
			writeFiles(t, dir, files)

			program, err := NewParser(nil, ".").ParseProgram(dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(program.ConfigError, tt.want) {
				t.Errorf("expected config error containing %q, got %q", tt.want, program.ConfigError)
			}
		})
	}
}

func TestParser_SoftTimeoutDefaultsAndClamp(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		wantHard time.Duration
		wantSoft time.Duration
	}{
		{name: "defaults", config: "source: a.py\n", wantHard: time.Second, wantSoft: time.Second},
		{name: "soft follows hard", config: "source: a.py\ntimeout: 3\n", wantHard: 3 * time.Second, wantSoft: 3 * time.Second},
		{name: "soft clamped", config: "source: a.py\ntimeout: 2\nsoft-timeout: 5\n", wantHard: 2 * time.Second, wantSoft: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "test-x")
			writeFiles(t, dir, map[string]string{"config.yaml": tt.config})

			program, err := NewParser(nil, ".").ParseProgram(dir)
			if err != nil || program.ConfigError != "" {
				t.Fatalf("unexpected error: %v %s", err, program.ConfigError)
			}
			if program.Timeout != tt.wantHard || program.SoftTimeout != tt.wantSoft {
				t.Errorf("expected %s / %s, got %s / %s", tt.wantHard, tt.wantSoft, program.Timeout, program.SoftTimeout)
			}
		})
	}
}

func TestParser_CommandForms(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-x")
	writeFiles(t, dir, map[string]string{
		"config.yaml": "source: a.py\ncommand: python3 -u {source}\ngrader: [./grade.sh, \"{source}\"]\n",
	})

	program, err := NewParser([]string{"pypy3", "{source}"}, ".").ParseProgram(dir)
	if err != nil || program.ConfigError != "" {
		t.Fatalf("unexpected error: %v %s", err, program.ConfigError)
	}
	if !reflect.DeepEqual(program.Command, []string{"python3", "-u", "{source}"}) {
		t.Errorf("unexpected command: %v", program.Command)
	}
	if !reflect.DeepEqual(program.Grader, []string{"./grade.sh", "{source}"}) {
		t.Errorf("unexpected grader: %v", program.Grader)
	}
}

func TestParser_RejectsNewerBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-x")
	writeFiles(t, dir, map[string]string{"config.yaml": "grader-version: 6\nsource: a.py\n"})

	_, err := NewParser(nil, ".").ParseProgram(dir)
	if !errors.Is(err, ErrNewerBundle) {
		t.Errorf("expected ErrNewerBundle, got %v", err)
	}
}

func TestParser_FindTestCases(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-x")
	writeFiles(t, dir, map[string]string{
		"config.yaml":    "source: a.py\n",
		"02.stdin":       "",
		"01.stdin":       "",
		"01-config.yaml": "test-name: Empty input\n",
	})

	names, err := NewParser(nil, ".").FindTestCases(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"Empty input", "#02"}) {
		t.Errorf("unexpected test names: %v", names)
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a\nb\n", want: []string{"a\n", "b\n"}},
		{in: "a\n\nb", want: []string{"a\n", "\n", "b"}},
	}
	for _, tt := range tests {
		if got := SplitChunks(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitChunks(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
