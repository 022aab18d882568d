package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrPublished is returned when a result is changed after it has been emitted
	ErrPublished = errors.New("test result already published")
	// ErrScoreRange is returned for a score outside [0, 1]
	ErrScoreRange = errors.New("score outside [0, 1]")
)

// ErrorResultID identifies the placeholder result of a program that could not be graded
const ErrorResultID = "error"

// ExecutionOutcome is what one run of a candidate produced
type ExecutionOutcome struct {
	ExitCode *int          // nil when the process was killed for exceeding its deadline
	Stdout   string        // Decoded, newline-normalized console transcript
	Stderr   string        // Decoded error output
	Elapsed  time.Duration // Wall-clock time of the whole interaction
	TimedOut bool          // Whether the aggregate deadline expired
}

// Failed reports whether the outcome counts as a runtime error
func (o ExecutionOutcome) Failed() bool {
	return o.TimedOut || o.ExitCode == nil || *o.ExitCode != 0 || len(o.Stderr) > 0
}

// Feedback section labels
const (
	LabelConsole       = "console output"
	LabelInputFile     = "input file: %s"
	LabelOutputFile    = "output file: %s"
	LabelOutputMissing = "output file missing: %s"
	LabelRuntimeErrors = "runtime errors (exit code: %s)"
)

// FeedbackSection is a labeled block of text attached to a result
type FeedbackSection struct {
	Label string   `json:"label"`
	Lines []string `json:"lines"`
	Diff  bool     `json:"diff,omitempty"` // Lines carry "  ", "- ", "+ " or "? " prefixes
}

// TestResult is the judged outcome of one test case
type TestResult struct {
	ID          string            `json:"id"`
	Program     string            `json:"program"`
	Index       int               `json:"index"`
	Score       float64           `json:"score"`
	Info        string            `json:"info,omitempty"`
	Elapsed     time.Duration     `json:"elapsed"`
	Timeout     time.Duration     `json:"timeout"`
	SoftTimeout time.Duration     `json:"soft_timeout"`
	Sections    []FeedbackSection `json:"sections,omitempty"`
	Scored      bool              `json:"scored"`
	Published   bool              `json:"published"`
}

// Name returns "<program>/<id>"
func (r *TestResult) Name() string {
	program := r.Program
	if program == "" {
		program = "<unknown>"
	}
	return program + "/" + r.ID
}

// SetScore records the verdict of the result; allowed only before publication
func (r *TestResult) SetScore(score float64, info string) error {
	if r.Published {
		return ErrPublished
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: %v", ErrScoreRange, score)
	}
	r.Score = score
	r.Info = info
	r.Scored = true
	return nil
}

// Attach appends a feedback section; allowed only before publication
func (r *TestResult) Attach(section FeedbackSection) error {
	if r.Published {
		return ErrPublished
	}
	r.Sections = append(r.Sections, section)
	return nil
}

// MarkPublished freezes the result
func (r *TestResult) MarkPublished() {
	r.Published = true
}

// IsPassing holds iff the score is full and the run stayed within the hard timeout
func (r *TestResult) IsPassing() bool {
	return r.Score == 1.0 && r.Elapsed <= r.Timeout
}

// IsSlow reports a run that reached the soft timeout
func (r *TestResult) IsSlow() bool {
	return r.SoftTimeout > 0 && r.Elapsed >= r.SoftTimeout
}

// FeedbackLines flattens the feedback sections into text lines
func (r *TestResult) FeedbackLines() []string {
	var lines []string
	for _, s := range r.Sections {
		lines = append(lines, "<"+s.Label+">")
		lines = append(lines, s.Lines...)
		lines = append(lines, "")
	}
	return lines
}
