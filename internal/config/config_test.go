package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestConfig_GetBundlePath(t *testing.T) {
	t.Run("flag relative to project path", func(t *testing.T) {
		cfg := &Config{ProjectPath: "/project", Flags: Flags{BundlePath: "tests-lab01.zip"}}
		got, err := cfg.GetBundlePath()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "/project/tests-lab01.zip" {
			t.Errorf("expected /project/tests-lab01.zip, got %s", got)
		}
	})

	t.Run("absolute flag", func(t *testing.T) {
		cfg := &Config{ProjectPath: "/project", Flags: Flags{BundlePath: "/absolute/tests"}}
		got, _ := cfg.GetBundlePath()
		if got != "/absolute/tests" {
			t.Errorf("expected /absolute/tests, got %s", got)
		}
	})

	tmpDir, err := os.MkdirTemp("", "grader-config-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	cfg := &Config{ProjectPath: tmpDir}

	t.Run("no bundle found", func(t *testing.T) {
		if _, err := cfg.GetBundlePath(); err == nil {
			t.Error("expected error without any tests-*.zip")
		}
	})

	t.Run("single bundle found", func(t *testing.T) {
		os.WriteFile(filepath.Join(tmpDir, "tests-lab01.zip"), []byte("x"), 0644)
		got, err := cfg.GetBundlePath()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(got) != "tests-lab01.zip" {
			t.Errorf("unexpected bundle %s", got)
		}
	})

	t.Run("ambiguous bundles", func(t *testing.T) {
		os.WriteFile(filepath.Join(tmpDir, "tests-lab02.zip"), []byte("x"), 0644)
		_, err := cfg.GetBundlePath()
		if err == nil || !strings.Contains(err.Error(), "tests-lab02.zip") {
			t.Errorf("expected error listing the bundles, got %v", err)
		}
	})
}

func TestConfig_SourcePaths(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		bundle   string
		expected string
	}{
		{
			name:     "bundle directory by default",
			config:   &Config{ProjectPath: "/project"},
			bundle:   "/downloads/tests-lab01.zip",
			expected: "/downloads/interest.py",
		},
		{
			name:     "source flag",
			config:   &Config{ProjectPath: "/project", Flags: Flags{SourcePath: "src"}},
			bundle:   "/downloads/tests-lab01.zip",
			expected: "/project/src/interest.py",
		},
		{
			name:     "no bundle",
			config:   &Config{ProjectPath: "/project"},
			expected: "/project/interest.py",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.GetSourcePath(tt.bundle, "interest.py"); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"GRADER_PYTHON":      "pypy3 -u",
		"GRADER_SCRATCH_DIR": "/scratch",
		"GRADER_PROCESSORS":  "8",
		"GRADER_DRAIN_MS":    "120",
		"DB_HOST":            "db",
		"DB_PASSWORD":        "secret",
		"DB_DATABASE":        "grades",
	}
	cfg := New()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(cfg.Command(), []string{"pypy3", "-u", "{source}"}) {
		t.Errorf("unexpected command: %v", cfg.Command())
	}
	if cfg.ScratchRoot != "/scratch" || cfg.Processors != 8 || cfg.DrainWait != 120*time.Millisecond {
		t.Errorf("unexpected execution settings: %+v", cfg)
	}
	if want := "root:secret@tcp(db:3306)/grades?parseTime=true"; cfg.DatabaseDSN() != want {
		t.Errorf("expected DSN %s, got %s", want, cfg.DatabaseDSN())
	}

	t.Run("invalid numbers", func(t *testing.T) {
		for _, key := range []string{"GRADER_PROCESSORS", "GRADER_DRAIN_MS"} {
			bad := map[string]string{key: "zero"}
			if err := New().ApplyEnv(func(k string) string { return bad[k] }); err == nil {
				t.Errorf("expected error for %s", key)
			}
		}
	})
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnv(dir); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	os.WriteFile(filepath.Join(dir, ".env"), []byte("GRADER_TEST_ONLY_VALUE=from-file\n"), 0644)
	t.Setenv("GRADER_TEST_ONLY_VALUE", "")
	os.Unsetenv("GRADER_TEST_ONLY_VALUE")
	if err := LoadEnv(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("GRADER_TEST_ONLY_VALUE"); got != "from-file" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := New()
	if cfg.Processors != DefaultProcessors {
		t.Errorf("expected %d processors, got %d", DefaultProcessors, cfg.Processors)
	}
	if !strings.HasSuffix(cfg.GetOutputPath(), filepath.Join("storage", "grade-results.json")) {
		t.Errorf("unexpected output path %s", cfg.GetOutputPath())
	}
	if want := "root@tcp(127.0.0.1:3306)/autograder?parseTime=true"; cfg.DatabaseDSN() != want {
		t.Errorf("expected DSN %s, got %s", want, cfg.DatabaseDSN())
	}
}
