package events

import (
	"time"

	"github.com/oklog/ulid/v2"

	"autograder/internal/domain"
)

// Kind identifies the payload carried by an Event
type Kind string

const (
	KindProgress Kind = "progress"
	KindResult   Kind = "result"
	KindReport   Kind = "report"
	KindDone     Kind = "done"
)

// Progress describes how far grading of one program has come
type Progress struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Source  string `json:"source,omitempty"`
	Done    int    `json:"done"`
	Total   int    `json:"total"` // 0 when the number of tests is unknown
}

// Done closes a run
type Done struct {
	Message  string `json:"message,omitempty"`
	Passing  bool   `json:"passing"`
	Archive  string `json:"archive,omitempty"`
	Programs int    `json:"programs"`
}

// Event is a single message on the progress channel
type Event struct {
	Kind     Kind               `json:"kind"`
	RunID    string             `json:"run_id"`
	Program  string             `json:"program,omitempty"`
	Time     time.Time          `json:"time"`
	Progress *Progress          `json:"progress,omitempty"`
	Result   *domain.TestResult `json:"result,omitempty"`
	Report   *domain.Report     `json:"report,omitempty"`
	Done     *Done              `json:"done,omitempty"`
}

// NewRunID returns a fresh, time ordered run identifier
func NewRunID() string {
	return ulid.Make().String()
}

// NewProgressEvent creates a progress event
func NewProgressEvent(runID, program, message string, percent int) Event {
	return Event{
		Kind:     KindProgress,
		RunID:    runID,
		Program:  program,
		Time:     time.Now(),
		Progress: &Progress{Message: message, Percent: percent},
	}
}

// NewResultEvent creates an event carrying one test result
func NewResultEvent(runID string, result *domain.TestResult) Event {
	return Event{
		Kind:    KindResult,
		RunID:   runID,
		Program: result.Program,
		Time:    time.Now(),
		Result:  result,
	}
}

// NewReportEvent creates an event carrying a finished report
func NewReportEvent(runID string, report *domain.Report) Event {
	return Event{
		Kind:    KindReport,
		RunID:   runID,
		Program: report.ProgramID,
		Time:    time.Now(),
		Report:  report,
	}
}

// NewDoneEvent creates the final event of a run
func NewDoneEvent(runID string, done Done) Event {
	return Event{
		Kind:  KindDone,
		RunID: runID,
		Time:  time.Now(),
		Done:  &done,
	}
}

// markPublished freezes the payload so it can no longer be scored
func (e Event) markPublished() {
	if e.Result != nil {
		e.Result.MarkPublished()
	}
	if e.Report != nil {
		e.Report.MarkPublished()
	}
}
