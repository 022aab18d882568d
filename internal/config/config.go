package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"autograder/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	// Project settings
	ProjectPath string

	// Output settings
	OutputJSONFile string
	OutputJSONDir  string
	FeedbackFile   string

	// Execution settings
	Processors  int
	Python      []string
	ScratchRoot string
	DrainWait   time.Duration

	// Paths to ignore when scanning
	PathsToIgnore []string

	Database Database

	// Command flags
	Flags Flags
}

// Database holds the gradebook connection settings
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Flags holds command-line flags
type Flags struct {
	Processors int
	Filter     string
	BundlePath string
	SourcePath string
	TestCases  bool
	Events     bool
	Submit     bool
	Verbose    bool
	SaveDB     bool
	Open       bool
	FailFast   bool
	Live       bool
}

// New creates a new Config with defaults
func New() *Config {
	cfg := &Config{
		ProjectPath:    DefaultProjectPath,
		OutputJSONFile: DefaultOutputJSONFile,
		OutputJSONDir:  DefaultOutputJSONDir,
		FeedbackFile:   DefaultFeedbackFile,
		Processors:     DefaultProcessors,
		Python:         []string{DefaultPython},
		DrainWait:      DefaultDrainWait,
		Database: Database{
			Host: DefaultDBHost,
			Port: DefaultDBPort,
			User: DefaultDBUser,
			Name: DefaultDBName,
		},
		Flags: Flags{Processors: DefaultProcessors},
	}
	// Copy default paths to ignore
	cfg.PathsToIgnore = make([]string, len(DefaultPathsToIgnore))
	copy(cfg.PathsToIgnore, DefaultPathsToIgnore)
	return cfg
}

// Load creates a config from the environment and applies flags
func Load(flags Flags) (*Config, error) {
	cfg := New()
	if err := LoadEnv(cfg.ProjectPath); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.Flags = flags

	// Apply flag overrides
	if flags.Processors > 0 {
		cfg.Processors = flags.Processors
	}

	return cfg, nil
}

// LoadEnv loads a .env file from the project directory into the process
// environment. Variables that are already set win; a missing file is fine.
func LoadEnv(projectPath string) error {
	envPath := filepath.Join(projectPath, ".env")
	if _, err := os.Stat(envPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

// ApplyEnv reads GRADER_* and DB_* settings through getenv
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GRADER_PYTHON"); v != "" {
		c.Python = strings.Fields(v)
	}
	if v := getenv("GRADER_SCRATCH_DIR"); v != "" {
		c.ScratchRoot = v
	}
	if v := getenv("GRADER_PROCESSORS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("GRADER_PROCESSORS must be a positive integer, got %q", v)
		}
		c.Processors = n
	}
	if v := getenv("GRADER_DRAIN_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 1 {
			return fmt.Errorf("GRADER_DRAIN_MS must be a positive integer, got %q", v)
		}
		c.DrainWait = time.Duration(ms) * time.Millisecond
	}

	setString(&c.Database.Host, getenv("DB_HOST"))
	setString(&c.Database.Port, getenv("DB_PORT"))
	setString(&c.Database.User, getenv("DB_USERNAME"))
	setString(&c.Database.Password, getenv("DB_PASSWORD"))
	setString(&c.Database.Name, getenv("DB_DATABASE"))
	return nil
}

// Command returns the default candidate command template
func (c *Config) Command() []string {
	cmd := make([]string, 0, len(c.Python)+1)
	cmd = append(cmd, c.Python...)
	return append(cmd, domain.SourcePlaceholder)
}

// GetBundlePath returns the bundle to grade. Without a flag the project
// directory is searched for a single tests-*.zip archive.
func (c *Config) GetBundlePath() (string, error) {
	if c.Flags.BundlePath != "" {
		return c.resolve(c.Flags.BundlePath), nil
	}

	matches, err := filepath.Glob(filepath.Join(c.ProjectPath, BundleGlob))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("could not find test zips (%s) in %s", BundleGlob, c.ProjectPath)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = filepath.Base(m)
		}
		return "", fmt.Errorf("several test zips found, pick one: %s", strings.Join(names, ", "))
	}
}

// GetSourceDir returns the directory holding the candidate sources.
// It defaults to the directory of the bundle.
func (c *Config) GetSourceDir(bundlePath string) string {
	if c.Flags.SourcePath != "" {
		return c.resolve(c.Flags.SourcePath)
	}
	if bundlePath != "" {
		return filepath.Dir(bundlePath)
	}
	return c.ProjectPath
}

// GetSourcePath returns the path of a candidate source file
func (c *Config) GetSourcePath(bundlePath, name string) string {
	return filepath.Join(c.GetSourceDir(bundlePath), name)
}

// GetOutputPath returns the absolute path of the saved run file
func (c *Config) GetOutputPath() string {
	return absolute(filepath.Join(c.ProjectPath, c.OutputJSONDir, c.OutputJSONFile))
}

// GetFeedbackPath returns where the plain text feedback is written
func (c *Config) GetFeedbackPath(bundlePath string) string {
	return filepath.Join(c.GetSourceDir(bundlePath), c.FeedbackFile)
}

// DatabaseDSN returns the MySQL data source name of the gradebook
func (c *Config) DatabaseDSN() string {
	dsn := mysql.NewConfig()
	dsn.User = c.Database.User
	dsn.Passwd = c.Database.Password
	dsn.Net = "tcp"
	dsn.Addr = c.Database.Host + ":" + c.Database.Port
	dsn.DBName = c.Database.Name
	dsn.ParseTime = true
	return dsn.FormatDSN()
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ProjectPath, path)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func absolute(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
