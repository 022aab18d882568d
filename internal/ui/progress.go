package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// ProgressBar shows grading progress of one program
type ProgressBar struct {
	bar   *progressbar.ProgressBar
	label string
	total int
}

// NewProgressBar creates a progress bar for a program with total tests.
// A total of zero or less means the count is unknown and a spinner is shown.
func NewProgressBar(w io.Writer, label string, total int) *ProgressBar {
	max := total
	if max <= 0 {
		max = -1
	}
	p := &ProgressBar{label: label, total: total}
	p.bar = progressbar.NewOptions(max,
		progressbar.OptionSetDescription(p.describe(0)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return p
}

// Update sets the number of finished tests and failures
func (p *ProgressBar) Update(done, failed int) {
	_ = p.bar.Set(done)
	p.bar.Describe(p.describe(failed))
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

func (p *ProgressBar) describe(failed int) string {
	desc := color.CyanString("%s ", p.label)
	if failed > 0 {
		desc += color.RedString("(%d tests failed) ", failed)
	}
	return desc
}
