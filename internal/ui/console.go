package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"autograder/internal/domain"
	"autograder/internal/events"
)

// Console renders a grading run from its event stream and writes the
// feedback file
type Console struct {
	out         io.Writer
	feedback    io.Writer
	interactive bool

	bars    map[string]*ProgressBar
	failed  map[string]int
	reports []*domain.Report
	done    *events.Done
}

// NewConsole creates a console consumer. Progress bars are drawn on out only
// when interactive is set; feedback receives every result's feedback text.
func NewConsole(out, feedback io.Writer, interactive bool) *Console {
	if feedback == nil {
		feedback = io.Discard
	}
	return &Console{
		out:         out,
		feedback:    feedback,
		interactive: interactive,
		bars:        make(map[string]*ProgressBar),
		failed:      make(map[string]int),
	}
}

// Consume handles events until the subscription is closed
func (c *Console) Consume(ctx context.Context, sub *events.Subscription) error {
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Handle(ev)
	}
}

// Handle renders one event
func (c *Console) Handle(ev events.Event) {
	switch ev.Kind {
	case events.KindProgress:
		c.progress(ev)
	case events.KindResult:
		c.result(ev.Result)
	case events.KindReport:
		c.report(ev.Report)
	case events.KindDone:
		c.done = ev.Done
	}
}

// Done returns the closing event of the run, nil until it arrived
func (c *Console) Done() *events.Done {
	return c.done
}

// Reports returns the reports seen so far in arrival order
func (c *Console) Reports() []*domain.Report {
	return c.reports
}

func (c *Console) progress(ev events.Event) {
	if !c.interactive || ev.Progress == nil {
		return
	}
	p := ev.Progress
	bar, ok := c.bars[ev.Program]
	if !ok {
		label := p.Source
		if label == "" {
			label = ev.Program
		}
		bar = NewProgressBar(c.out, label, p.Total)
		c.bars[ev.Program] = bar
	}
	bar.Update(p.Done, c.failed[ev.Program])
}

func (c *Console) result(result *domain.TestResult) {
	if result == nil {
		return
	}
	if !result.IsPassing() {
		c.failed[result.Program]++
		if bar, ok := c.bars[result.Program]; ok {
			bar.Update(result.Index+1, c.failed[result.Program])
		}
	}
	writeFeedback(c.feedback, result)
}

func (c *Console) report(rep *domain.Report) {
	if rep == nil {
		return
	}
	c.reports = append(c.reports, rep)
	if bar, ok := c.bars[rep.ProgramID]; ok {
		bar.Finish()
		delete(c.bars, rep.ProgramID)
	}

	if rep.Fault != domain.FaultNone {
		for _, msg := range rep.HardErrors {
			color.New(color.FgRed).Fprintln(c.out, strings.TrimRight(msg, "\n"))
		}
		for _, result := range rep.Results {
			writeFeedback(c.feedback, result)
		}
		return
	}

	line := fmt.Sprintf("%s: %d/%d tests passed", rep.Source, rep.CountPassed(), rep.Expected())
	if rep.IsPassing() {
		color.New(color.FgGreen).Fprintln(c.out, "✓ "+line)
	} else {
		color.New(color.FgRed).Fprintln(c.out, "✗ "+line)
	}
	for _, issue := range rep.StyleIssues {
		color.New(color.FgYellow).Fprintln(c.out, "  "+issue)
	}
}

// writeFeedback writes a result header followed by its feedback sections
func writeFeedback(w io.Writer, result *domain.TestResult) {
	status := "passed"
	if !result.IsPassing() {
		status = "failed"
		if result.Info != "" {
			status += ": " + result.Info
		}
	}
	fmt.Fprintf(w, "=== %s (%s, %.2fs) ===\n", result.Name(), status, result.Elapsed.Seconds())
	for _, line := range result.FeedbackLines() {
		fmt.Fprintln(w, line)
	}
}
