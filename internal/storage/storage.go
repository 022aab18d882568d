package storage

import (
	"time"

	"autograder/internal/config"
	"autograder/internal/domain"
)

// Run is one saved grading run
type Run struct {
	Meta    RunMeta          `json:"meta"`
	Reports []*domain.Report `json:"reports"`
}

// RunMeta summarizes a grading run
type RunMeta struct {
	RunID           string  `json:"run_id"`
	Bundle          string  `json:"bundle"`
	Programs        int     `json:"programs"`
	PassingPrograms int     `json:"passing_programs"`
	FailingPrograms int     `json:"failing_programs"`
	Tests           int     `json:"tests"`
	PassedTests     int     `json:"passed_tests"`
	Duration        string  `json:"duration"`
	DurationSeconds float64 `json:"duration_seconds"`
	Workers         int     `json:"workers"`
	Timestamp       string  `json:"timestamp"`
}

// NewRun builds a run record with its summary
func NewRun(runID, bundle string, reports []*domain.Report, duration time.Duration, workers int) *Run {
	meta := RunMeta{
		RunID:           runID,
		Bundle:          bundle,
		Programs:        len(reports),
		Duration:        duration.String(),
		DurationSeconds: duration.Seconds(),
		Workers:         workers,
		Timestamp:       time.Now().Format(time.RFC3339),
	}
	for _, rep := range reports {
		if rep.IsPassing() {
			meta.PassingPrograms++
		} else {
			meta.FailingPrograms++
		}
		if rep.Fault == domain.FaultNone {
			meta.Tests += rep.Expected()
			meta.PassedTests += rep.CountPassed()
		}
	}
	return &Run{Meta: meta, Reports: reports}
}

// IsPassing reports whether every program of the run passed
func (r *Run) IsPassing() bool {
	return r.Meta.Programs > 0 && r.Meta.FailingPrograms == 0
}

// Storage persists and loads grading runs (e.g. for the results viewer).
type Storage interface {
	Save(run *Run) error
	Load() (*Run, error)
}

// JSONStorage stores the last run in a JSON file under the configured output path.
type JSONStorage struct {
	cfg *config.Config
}

// NewJSONStorage returns a Storage that reads/writes the config's output JSON path.
func NewJSONStorage(cfg *config.Config) *JSONStorage {
	return &JSONStorage{cfg: cfg}
}
