package config

import "time"

const (
	// DefaultProjectPath is the default project path
	DefaultProjectPath = "."
	// DefaultOutputJSONFile is the default saved run file name
	DefaultOutputJSONFile = "grade-results.json"
	// DefaultOutputJSONDir is the default output directory
	DefaultOutputJSONDir = "storage"
	// DefaultFeedbackFile is the plain text feedback written after each run
	DefaultFeedbackFile = "feedback.txt"
	// DefaultProcessors is the default number of programs graded in parallel
	DefaultProcessors = 4
	// DefaultPython is the interpreter used when a program does not set a command
	DefaultPython = "python3"
	// DefaultDrainWait caps how long echo mode waits for a prompt before each input line
	DefaultDrainWait = 50 * time.Millisecond
	// BundleGlob matches test bundles dropped next to the candidate sources
	BundleGlob = "tests-*.zip"
)

// Database defaults
const (
	DefaultDBHost = "127.0.0.1"
	DefaultDBPort = "3306"
	DefaultDBUser = "root"
	DefaultDBName = "autograder"
)

// DefaultPathsToIgnore are the directories never searched for program folders
var DefaultPathsToIgnore = []string{
	"__MACOSX",
	"__pycache__",
	"node_modules",
	"storage",
}
