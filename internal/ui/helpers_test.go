package ui

import (
	"testing"
	"time"

	"github.com/fatih/color"

	"autograder/internal/domain"
)

func init() {
	color.NoColor = true
}

func passingReport(t *testing.T) *domain.Report {
	t.Helper()
	rep := domain.NewReport("test-lab01", "interest.py", 1, time.Second, time.Second)
	result := rep.NewResult("#01")
	result.Elapsed = 10 * time.Millisecond
	if err := rep.Add(result); err != nil {
		t.Fatalf("add: %v", err)
	}
	return rep
}

func failingReport(t *testing.T) *domain.Report {
	t.Helper()
	rep := domain.NewReport("test-lab02", "radioactive.py", 2, time.Second, time.Second)
	ok := rep.NewResult("#01")
	if err := rep.Add(ok); err != nil {
		t.Fatalf("add: %v", err)
	}
	bad := rep.NewResult("#02")
	if err := bad.SetScore(0, "runtime errors or nonstandard exit code"); err != nil {
		t.Fatalf("set score: %v", err)
	}
	if err := bad.Attach(domain.FeedbackSection{Label: domain.LabelConsole, Lines: []string{"  Half-life?", "- 7", "+ 8"}, Diff: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := rep.AddHardError("Traceback (most recent call last):\n  File \"radioactive.py\", line 4, in <module>\n    x = 1 / 0\nZeroDivisionError: division by zero\n"); err != nil {
		t.Fatalf("add hard error: %v", err)
	}
	if err := rep.Add(bad); err != nil {
		t.Fatalf("add: %v", err)
	}
	return rep
}
