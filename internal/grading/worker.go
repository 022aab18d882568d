package grading

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"autograder/internal/domain"
	"autograder/internal/events"
	"autograder/internal/logging"
)

// ProgramRunner grades a single program
type ProgramRunner interface {
	RunProgram(ctx context.Context, program *domain.Program, yield func(*domain.TestResult) bool) (*domain.Report, error)
}

// WorkerPool grades programs in parallel; tests of one program always run sequentially
type WorkerPool struct {
	runner     ProgramRunner
	processors int
	logger     logging.Logger
}

// NewWorkerPool creates a new WorkerPool
func NewWorkerPool(runner ProgramRunner, processors int, logger logging.Logger) *WorkerPool {
	if processors <= 0 {
		processors = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &WorkerPool{
		runner:     runner,
		processors: processors,
		logger:     logger,
	}
}

// Execute grades every program and publishes progress, result and report events (no fail-fast).
func (wp *WorkerPool) Execute(ctx context.Context, runID string, programs []*domain.Program, pub events.Publisher) ([]*domain.Report, time.Duration, error) {
	return wp.ExecuteWithOptions(ctx, runID, programs, pub, false)
}

// ExecuteWithOptions grades programs with optional fail-fast: once a program
// does not pass, programs that have not started yet are skipped.
// Reports are returned in the order of programs; skipped programs have no report.
func (wp *WorkerPool) ExecuteWithOptions(ctx context.Context, runID string, programs []*domain.Program, pub events.Publisher, failFast bool) ([]*domain.Report, time.Duration, error) {
	if len(programs) == 0 {
		return nil, 0, nil
	}

	// Errors cancel running programs; fail-fast only stops handing out new ones.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	queueCtx, stopQueue := context.WithCancel(runCtx)
	defer stopQueue()

	queue := make(chan int)
	go func() {
		defer close(queue)
		for i := range programs {
			select {
			case <-queueCtx.Done():
				return
			case queue <- i:
			}
		}
	}()

	reports := make([]*domain.Report, len(programs))
	var mu sync.Mutex
	var firstErr error
	var seenFailure bool
	startTime := time.Now()

	workerCount := wp.processors
	if workerCount > len(programs) {
		workerCount = len(programs)
	}

	var wg sync.WaitGroup
	for i := 1; i <= workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range queue {
				mu.Lock()
				skip := failFast && seenFailure
				mu.Unlock()
				if skip {
					continue
				}

				program := programs[idx]
				wp.logger.Debug("grading program", "worker", workerID, "program", program.ID)
				report, err := wp.grade(runCtx, runID, program, pub)

				mu.Lock()
				if report != nil {
					reports[idx] = report
				}
				if err != nil && firstErr == nil {
					firstErr = err
					cancelRun()
				}
				if failFast && report != nil && !report.IsPassing() {
					seenFailure = true
					stopQueue()
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	return reports, time.Since(startTime), firstErr
}

func (wp *WorkerPool) grade(ctx context.Context, runID string, program *domain.Program, pub events.Publisher) (*domain.Report, error) {
	total := len(program.Tests)
	if len(program.Grader) > 0 {
		total = 0
	}

	var pubErr error
	if pubErr = pub.Publish(progressEvent(runID, program, 0, total)); pubErr != nil {
		return nil, pubErr
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report, err := wp.runner.RunProgram(ctx, program, func(result *domain.TestResult) bool {
		done := result.Index + 1
		if pubErr = pub.Publish(progressEvent(runID, program, done, total)); pubErr != nil {
			return false
		}
		if pubErr = pub.Publish(events.NewResultEvent(runID, result)); pubErr != nil {
			return false
		}
		return true
	})
	if pubErr != nil {
		return report, fmt.Errorf("publish events for %s: %w", program.ID, pubErr)
	}
	if err != nil {
		return report, err
	}

	if err := pub.Publish(events.NewReportEvent(runID, report)); err != nil {
		return report, fmt.Errorf("publish report for %s: %w", program.ID, err)
	}
	return report, nil
}

func progressEvent(runID string, program *domain.Program, done, total int) events.Event {
	ev := events.NewProgressEvent(runID, program.ID, progressMessage(program.Source, done, total), percent(done, total))
	ev.Progress.Source = program.Source
	ev.Progress.Done, ev.Progress.Total = done, total
	return ev
}

func progressMessage(source string, done, total int) string {
	if total <= 0 {
		return fmt.Sprintf("[%d] Grading %s", done, source)
	}
	return fmt.Sprintf("[%d/%d] Grading %s", done, total, source)
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
