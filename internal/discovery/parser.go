package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autograder/internal/compare"
	"autograder/internal/domain"
)

const (
	// GraderVersion is the newest bundle format this grader understands
	GraderVersion = 5

	// ConfigFile is the per-program configuration file name
	ConfigFile = "config.yaml"

	// DefaultTimeout applies when a program does not configure one
	DefaultTimeout = time.Second

	stdinSuffix     = ".stdin"
	stdoutSuffix    = ".stdout"
	inputTag        = "-inp-"
	outputTag       = "-out-"
	testConfigTag   = "-config.yaml"
	defaultNameMark = "#"
)

// ErrNewerBundle is returned for bundles built for a newer grader
var ErrNewerBundle = errors.New("this test bundle was compiled for a newer version of the grader")

// DefaultCommand runs candidates with the system Python interpreter
var DefaultCommand = []string{"python3", domain.SourcePlaceholder}

// commandLine accepts either a single string split on whitespace or a list
type commandLine []string

func (c *commandLine) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	}
	return fmt.Errorf("line %d: command must be a string or a list", node.Line)
}

type programConfig struct {
	GraderVersion int         `yaml:"grader-version"`
	Source        string      `yaml:"source"`
	Command       commandLine `yaml:"command"`
	Timeout       *float64    `yaml:"timeout"`
	SoftTimeout   *float64    `yaml:"soft-timeout"`
	Encoding      string      `yaml:"encoding"`
	Compare       string      `yaml:"compare"`
	Checker       commandLine `yaml:"checker"`
	Grader        commandLine `yaml:"grader"`
	Style         commandLine `yaml:"style"`
	EchoInput     bool        `yaml:"echo-input"`
}

type testConfig struct {
	TestName    string   `yaml:"test-name"`
	Timeout     *float64 `yaml:"timeout"`
	SoftTimeout *float64 `yaml:"soft-timeout"`
	EchoInput   *bool    `yaml:"echo-input"`
}

// Parser resolves program folders into programs with their test cases
type Parser struct {
	command   []string
	sourceDir string
}

// NewParser creates a new Parser. command is used when a program does not
// configure its own; sourceDir is where candidate sources are looked up.
func NewParser(command []string, sourceDir string) *Parser {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &Parser{command: command, sourceDir: sourceDir}
}

// ParseProgram builds the program described by the folder dir.
//
// Problems with the folder are recorded in Program.ConfigError so that the
// program still shows up with an error report. The only returned error is
// ErrNewerBundle, which rejects the whole bundle.
func (p *Parser) ParseProgram(dir string) (*domain.Program, error) {
	program := &domain.Program{
		ID:          filepath.Base(dir),
		Dir:         dir,
		Command:     p.command,
		Timeout:     DefaultTimeout,
		SoftTimeout: DefaultTimeout,
	}

	var cfg programConfig
	if err := readYAML(filepath.Join(dir, ConfigFile), &cfg); err != nil {
		program.ConfigError = err.Error()
		return program, nil
	}
	if cfg.GraderVersion > GraderVersion {
		return nil, fmt.Errorf("%s: %w (bundle version %d, grader version %d)",
			program.ID, ErrNewerBundle, cfg.GraderVersion, GraderVersion)
	}

	program.Source = cfg.Source
	if len(cfg.Command) > 0 {
		program.Command = cfg.Command
	}
	program.Encoding = cfg.Encoding
	program.Compare = cfg.Compare
	program.Checker = cfg.Checker
	program.Grader = cfg.Grader
	program.Style = cfg.Style

	if err := p.validate(program); err != nil {
		program.ConfigError = fmt.Sprintf("%s: %v", ConfigFile, err)
		return program, nil
	}
	program.SourcePath = filepath.Join(p.sourceDir, program.Source)

	timeout, soft, err := limits(cfg.Timeout, cfg.SoftTimeout, DefaultTimeout, 0)
	if err != nil {
		program.ConfigError = fmt.Sprintf("%s: %v", ConfigFile, err)
		return program, nil
	}
	program.Timeout, program.SoftTimeout = timeout, soft

	tests, err := p.findTests(program, cfg.EchoInput)
	if err != nil {
		program.ConfigError = err.Error()
		return program, nil
	}
	program.Tests = tests
	return program, nil
}

// FindTestCases lists the display names of the tests in a program folder
func (p *Parser) FindTestCases(dir string) ([]string, error) {
	program, err := p.ParseProgram(dir)
	if err != nil {
		return nil, err
	}
	if program.ConfigError != "" {
		return nil, errors.New(program.ConfigError)
	}

	names := make([]string, 0, len(program.Tests))
	for _, tc := range program.Tests {
		names = append(names, tc.Name)
	}
	return names, nil
}

func (p *Parser) validate(program *domain.Program) error {
	if program.Source == "" {
		return errors.New("missing source")
	}
	if filepath.Base(program.Source) != program.Source {
		return fmt.Errorf("source %q must be a plain file name", program.Source)
	}
	if err := ValidateEncoding(program.Encoding); err != nil {
		return err
	}
	if _, err := compare.New(program.Compare); err != nil {
		return err
	}
	if len(program.Grader) == 0 && len(program.Command) == 0 {
		return errors.New("empty command")
	}
	return nil
}

func (p *Parser) findTests(program *domain.Program, echo bool) ([]domain.TestCase, error) {
	entries, err := os.ReadDir(program.Dir)
	if err != nil {
		return nil, fmt.Errorf("read program folder: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, stdinSuffix) {
			ids = append(ids, strings.SplitN(name, ".", 2)[0])
		}
	}
	sort.Strings(ids)

	tests := make([]domain.TestCase, 0, len(ids))
	for _, id := range ids {
		tc, err := p.parseTest(program, id, entries, echo)
		if err != nil {
			return nil, fmt.Errorf("test %s: %w", id, err)
		}
		tests = append(tests, tc)
	}
	return tests, nil
}

func (p *Parser) parseTest(program *domain.Program, id string, entries []os.DirEntry, echo bool) (domain.TestCase, error) {
	tc := domain.TestCase{
		ID:            id,
		Name:          defaultNameMark + id,
		ExpectedFiles: make(map[string]domain.FileRef),
		InputFiles:    make(map[string]domain.FileRef),
		Timeout:       program.Timeout,
		SoftTimeout:   program.SoftTimeout,
		EchoInput:     echo,
	}

	var cfg testConfig
	configPath := filepath.Join(program.Dir, id+testConfigTag)
	if _, err := os.Stat(configPath); err == nil {
		if err := readYAML(configPath, &cfg); err != nil {
			return tc, err
		}
		if cfg.TestName != "" {
			tc.Name = cfg.TestName
		}
		if cfg.EchoInput != nil {
			tc.EchoInput = *cfg.EchoInput
		}
		if cfg.Timeout != nil || cfg.SoftTimeout != nil {
			timeout, soft, err := limits(cfg.Timeout, cfg.SoftTimeout, program.Timeout, program.SoftTimeout)
			if err != nil {
				return tc, fmt.Errorf("%s: %w", filepath.Base(configPath), err)
			}
			tc.Timeout, tc.SoftTimeout = timeout, soft
		}
	}

	data, err := os.ReadFile(filepath.Join(program.Dir, id+stdinSuffix))
	if err != nil {
		return tc, fmt.Errorf("read standard input: %w", err)
	}
	text, err := DecodeText(data, program.Encoding)
	if err != nil {
		return tc, fmt.Errorf("standard input: %w", err)
	}
	tc.Stdin = SplitChunks(text)

	stdoutPath := filepath.Join(program.Dir, id+stdoutSuffix)
	if _, err := os.Stat(stdoutPath); err == nil {
		tc.ExpectedStdout = &domain.FileRef{Path: stdoutPath}
	}

	inputPrefix := id + inputTag
	outputPrefix := id + outputTag
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		switch {
		case strings.HasPrefix(name, inputPrefix) && len(name) > len(inputPrefix):
			tc.InputFiles[name[len(inputPrefix):]] = domain.FileRef{Path: filepath.Join(program.Dir, name)}
		case strings.HasPrefix(name, outputPrefix) && len(name) > len(outputPrefix):
			tc.ExpectedFiles[name[len(outputPrefix):]] = domain.FileRef{Path: filepath.Join(program.Dir, name)}
		}
	}
	return tc, nil
}

// SplitChunks splits standard input into lines, keeping each line terminator
func SplitChunks(text string) []string {
	var chunks []string
	for text != "" {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}

// limits resolves hard and soft timeouts given in seconds. A missing soft
// timeout follows the hard one (or fallbackSoft when only inherited) and is
// clamped to it.
func limits(timeout, soft *float64, fallback, fallbackSoft time.Duration) (time.Duration, time.Duration, error) {
	hard := fallback
	if timeout != nil {
		if *timeout <= 0 {
			return 0, 0, fmt.Errorf("timeout must be positive, got %v", *timeout)
		}
		hard = fromSeconds(*timeout)
	}

	var softLimit time.Duration
	switch {
	case soft != nil:
		if *soft <= 0 {
			return 0, 0, fmt.Errorf("soft-timeout must be positive, got %v", *soft)
		}
		softLimit = fromSeconds(*soft)
	case timeout == nil && fallbackSoft > 0:
		softLimit = fallbackSoft
	default:
		softLimit = hard
	}

	if softLimit > hard {
		softLimit = hard
	}
	return hard, softLimit, nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("missing %s", filepath.Base(path))
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
