package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrReportComplete is returned when a result is added to a finished report
var ErrReportComplete = errors.New("report already complete")

// FaultKind tells grader-side failures apart from candidate failures
type FaultKind string

const (
	// FaultNone means the program was graded normally
	FaultNone FaultKind = ""
	// FaultConfig means the bundle or the candidate source could not be set up
	FaultConfig FaultKind = "config"
	// FaultGrader means the grading engine itself failed
	FaultGrader FaultKind = "grader"
)

// Report aggregates every result of one candidate program within one run
type Report struct {
	ProgramID     string        `json:"program_id"`
	Source        string        `json:"source"`
	ExpectedTests *int          `json:"expected_tests"`
	Results       []*TestResult `json:"results"`
	HardErrors    []string      `json:"hard_errors,omitempty"`
	StyleIssues   []string      `json:"style_issues,omitempty"`
	Timeout       time.Duration `json:"timeout"`
	SoftTimeout   time.Duration `json:"soft_timeout"`
	Fault         FaultKind     `json:"fault,omitempty"`
	Completed     bool          `json:"completed"`
	Published     bool          `json:"published"`
}

// NewReport creates a report expecting the given number of results
func NewReport(programID, source string, expected int, timeout, softTimeout time.Duration) *Report {
	return &Report{
		ProgramID:     programID,
		Source:        source,
		ExpectedTests: &expected,
		Timeout:       timeout,
		SoftTimeout:   softTimeout,
	}
}

// NewOpenReport creates a report whose result count is not known ahead of time
func NewOpenReport(programID, source string, timeout, softTimeout time.Duration) *Report {
	return &Report{
		ProgramID:   programID,
		Source:      source,
		Timeout:     timeout,
		SoftTimeout: softTimeout,
	}
}

// NewErrorReport creates a finished report for a program that could not be graded
func NewErrorReport(programID, source string, kind FaultKind, message string) *Report {
	rep := &Report{
		ProgramID: programID,
		Source:    source,
		Fault:     kind,
	}
	_ = rep.AddHardError(message)
	result := rep.NewResult(ErrorResultID)
	_ = result.SetScore(0, message)
	result.Index = 0
	rep.Results = append(rep.Results, result)
	rep.Completed = true
	return rep
}

// NewResult creates a pending, passing result bound to this report's limits
func (r *Report) NewResult(id string) *TestResult {
	return &TestResult{
		ID:          id,
		Program:     r.ProgramID,
		Index:       -1,
		Score:       1.0,
		Timeout:     r.Timeout,
		SoftTimeout: r.SoftTimeout,
	}
}

// Add appends a result in completion order
func (r *Report) Add(result *TestResult) error {
	if r.IsComplete() {
		return ErrReportComplete
	}
	result.Program = r.ProgramID
	result.Index = len(r.Results)
	r.Results = append(r.Results, result)
	return nil
}

// AddHardError records a fatal error message once, keyed by its normalized text
func (r *Report) AddHardError(message string) error {
	if r.IsComplete() || r.Published {
		return ErrReportComplete
	}
	key := NormalizeMessage(message)
	if key == "" {
		return nil
	}
	for _, existing := range r.HardErrors {
		if NormalizeMessage(existing) == key {
			return nil
		}
	}
	r.HardErrors = append(r.HardErrors, strings.TrimRight(message, "\n"))
	return nil
}

// SetStyleIssues records the style checker's findings.
// A report without tests is complete from the start but still takes them.
func (r *Report) SetStyleIssues(issues []string) error {
	if r.Completed || r.Published {
		return ErrReportComplete
	}
	r.StyleIssues = issues
	return nil
}

// Fail marks the report as aborted by a fault; results gathered so far are kept
func (r *Report) Fail(kind FaultKind, message string) error {
	if err := r.AddHardError(message); err != nil {
		return err
	}
	r.Fault = kind
	r.Completed = true
	return nil
}

// SetExpected declares the result count of a report that was opened without one
func (r *Report) SetExpected(n int) error {
	if r.IsComplete() {
		return ErrReportComplete
	}
	if n < len(r.Results) {
		return fmt.Errorf("expected count %d is below the %d results already recorded", n, len(r.Results))
	}
	r.ExpectedTests = &n
	return nil
}

// MarkComplete signals that no more results will arrive
func (r *Report) MarkComplete() {
	r.Completed = true
}

// IsComplete holds when every expected result has arrived or completion was signaled
func (r *Report) IsComplete() bool {
	if r.Completed {
		return true
	}
	return r.ExpectedTests != nil && len(r.Results) >= *r.ExpectedTests
}

// Expected returns the expected result count, or the number of results when it is unknown
func (r *Report) Expected() int {
	if r.ExpectedTests != nil {
		return *r.ExpectedTests
	}
	return len(r.Results)
}

// Grade returns the summed scores divided by the expected count; 0 when the count is 0 or unknown
func (r *Report) Grade() float64 {
	if r.ExpectedTests == nil || *r.ExpectedTests == 0 {
		return 0
	}
	var sum float64
	for _, result := range r.Results {
		sum += result.Score
	}
	return sum / float64(*r.ExpectedTests)
}

// IsPassing holds for a full grade without hard errors
func (r *Report) IsPassing() bool {
	return r.Grade() == 1.0 && len(r.HardErrors) == 0
}

// HasErrors reports hard errors or style issues
func (r *Report) HasErrors() bool {
	return len(r.HardErrors) > 0 || len(r.StyleIssues) > 0
}

// CountPassed returns the number of passing results
func (r *Report) CountPassed() int {
	count := 0
	for _, result := range r.Results {
		if result.IsPassing() {
			count++
		}
	}
	return count
}

// CountTimeouts returns the number of results that reached the hard timeout
func (r *Report) CountTimeouts() int {
	count := 0
	for _, result := range r.Results {
		if result.Timeout > 0 && result.Elapsed >= result.Timeout {
			count++
		}
	}
	return count
}

// CountSoftTimeouts returns the number of results that reached the soft timeout
func (r *Report) CountSoftTimeouts() int {
	count := 0
	for _, result := range r.Results {
		if result.IsSlow() {
			count++
		}
	}
	return count
}

// MarkPublished freezes the report and all of its results
func (r *Report) MarkPublished() {
	r.Published = true
	for _, result := range r.Results {
		result.MarkPublished()
	}
}

// Summary is a one-line description of the report
func (r *Report) Summary() string {
	if r.Fault != FaultNone {
		return fmt.Sprintf("%s: %s error", r.ProgramID, r.Fault)
	}
	return fmt.Sprintf("%s: %d/%d passed (grade %.2f)", r.ProgramID, r.CountPassed(), r.Expected(), r.Grade())
}

// NormalizeMessage collapses whitespace so equivalent error texts compare equal
func NormalizeMessage(message string) string {
	return strings.Join(strings.Fields(message), " ")
}
