package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"autograder/internal/domain"
	"autograder/internal/events"
	"autograder/internal/storage"
)

// Viewer displays grading results in an interactive TUI
type Viewer interface {
	View(run *storage.Run) error
	Live(ctx context.Context, sub *events.Subscription) error
}

// ResultsViewer browses results and their feedback with tview
type ResultsViewer struct{}

// NewResultsViewer creates a new ResultsViewer
func NewResultsViewer() *ResultsViewer {
	return &ResultsViewer{}
}

// entry is one row of the results list
type entry struct {
	report *domain.Report
	result *domain.TestResult
}

// resultsModel holds the rows shown by the viewer. It is only touched on
// the UI goroutine once the application runs.
type resultsModel struct {
	entries     []entry
	reports     map[string]*domain.Report
	failingOnly bool
	finished    bool
	runID       string
}

func newResultsModel() *resultsModel {
	return &resultsModel{reports: make(map[string]*domain.Report)}
}

// addReport records a finished report. Results already listed are
// re-pointed at it; error reports contribute their error result.
func (m *resultsModel) addReport(rep *domain.Report) {
	m.reports[rep.ProgramID] = rep
	known := make(map[int]bool)
	for i := range m.entries {
		if m.entries[i].result.Program == rep.ProgramID {
			m.entries[i].report = rep
			known[m.entries[i].result.Index] = true
		}
	}
	for _, result := range rep.Results {
		if known[result.Index] && rep.Fault == domain.FaultNone {
			continue
		}
		m.entries = append(m.entries, entry{report: rep, result: result})
	}
}

func (m *resultsModel) addResult(result *domain.TestResult) {
	m.entries = append(m.entries, entry{report: m.reports[result.Program], result: result})
}

// visible returns the rows to list, honouring the failing-only toggle
func (m *resultsModel) visible() []entry {
	if !m.failingOnly {
		return m.entries
	}
	var out []entry
	for _, e := range m.entries {
		if !e.result.IsPassing() {
			out = append(out, e)
		}
	}
	return out
}

func (m *resultsModel) countFailing() int {
	n := 0
	for _, e := range m.entries {
		if !e.result.IsPassing() {
			n++
		}
	}
	return n
}

// View displays a saved run
func (v *ResultsViewer) View(run *storage.Run) error {
	model := newResultsModel()
	model.runID = run.Meta.RunID
	model.finished = true
	for _, rep := range run.Reports {
		model.addReport(rep)
	}
	if len(model.entries) == 0 {
		return errors.New("the saved run has no results")
	}
	return v.run(context.Background(), model, nil)
}

// Live displays results as they arrive on sub
func (v *ResultsViewer) Live(ctx context.Context, sub *events.Subscription) error {
	return v.run(ctx, newResultsModel(), sub)
}

func (v *ResultsViewer) run(ctx context.Context, model *resultsModel, sub *events.Subscription) error {
	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan)

	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)
	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)

	detailsContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(detailsView, 0, 1, false).
		AddItem(tview.NewBox(), 2, 0, false)
	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsContainer, 0, 1, false)
	flex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)
	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(flex, 0, 1, true)

	var rows []entry
	updateDetails := func() {
		index := list.GetCurrentItem()
		if index < 0 || index >= len(rows) {
			statsView.SetText("")
			detailsView.SetText("[gray]waiting for results...[white]")
			return
		}
		statsView.SetText(formatStats(rows[index]))
		detailsView.SetText(formatDetails(rows[index]))
		detailsView.ScrollToBeginning()
	}
	updateHeader := func() {
		state := "running"
		if model.finished {
			state = "finished"
		}
		filter := "all"
		if model.failingOnly {
			filter = "failing only"
		}
		headerView.SetText(fmt.Sprintf(
			" Run %s %s (%d total, %d failing, showing %s) | ↑↓ navigate, → details, ← back, [yellow]F[white] toggle failing, Q quit ",
			tview.Escape(model.runID), state, len(model.entries), model.countFailing(), filter))
	}
	refresh := func() {
		current := list.GetCurrentItem()
		rows = model.visible()
		list.Clear()
		for i, e := range rows {
			list.AddItem(listItemText(i, e), "", 0, nil)
		}
		if current >= 0 && current < len(rows) {
			list.SetCurrentItem(current)
		}
		updateHeader()
		updateDetails()
	}

	list.SetChangedFunc(func(int, string, string, rune) {
		updateDetails()
	})
	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'f', 'F':
				model.failingOnly = !model.failingOnly
				list.SetCurrentItem(0)
				refresh()
				return nil
			case 'q', 'Q':
				app.Stop()
				return nil
			}
		}
		return event
	})
	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	refresh()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	feedErr := make(chan error, 1)
	if sub != nil {
		go func() {
			feedErr <- feed(ctx, app, model, sub, refresh)
		}()
	} else {
		feedErr <- nil
	}
	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	if err := app.SetRoot(mainLayout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	cancel()
	if err := <-feedErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// feed applies events from sub to the model and redraws
func feed(ctx context.Context, app *tview.Application, model *resultsModel, sub *events.Subscription, refresh func()) error {
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			queueUpdate(ctx, app, func() {
				model.finished = true
				refresh()
			})
			return nil
		}
		if err != nil {
			return err
		}

		ok := queueUpdate(ctx, app, func() {
			model.runID = ev.RunID
			switch ev.Kind {
			case events.KindResult:
				model.addResult(ev.Result)
			case events.KindReport:
				model.addReport(ev.Report)
			case events.KindDone:
				model.finished = true
			default:
				return
			}
			refresh()
		})
		if !ok {
			return ctx.Err()
		}
	}
}

// queueUpdate runs f on the UI goroutine unless ctx ends first
func queueUpdate(ctx context.Context, app *tview.Application, f func()) bool {
	done := make(chan struct{})
	go func() {
		app.QueueUpdateDraw(f)
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func listItemText(index int, e entry) string {
	name := tview.Escape(e.result.Name())
	if e.report != nil && e.report.Source != "" {
		name = tview.Escape(e.report.Source + "/" + e.result.ID)
	}
	if e.result.IsPassing() {
		return fmt.Sprintf("[green]✓[white] [yellow]%d.[white] %s", index+1, name)
	}
	return fmt.Sprintf("[red]✗[white] [yellow]%d.[white] %s", index+1, name)
}

// formatStats renders the header line above the details pane
func formatStats(e entry) string {
	program := e.result.Program
	grade := "pending"
	if e.report != nil {
		program = e.report.Source
		grade = fmt.Sprintf("%d/%d passed", e.report.CountPassed(), e.report.Expected())
		if e.report.Fault != domain.FaultNone {
			grade = string(e.report.Fault) + " error"
		}
	}
	return fmt.Sprintf("[cyan]program:[white] [yellow]%s[white]::[yellow]%s[white]  [cyan]report:[white] %s\n",
		tview.Escape(program), tview.Escape(e.result.ID), tview.Escape(grade))
}

// formatDetails renders a result's verdict and feedback using tview color tags
func formatDetails(e entry) string {
	var b strings.Builder
	r := e.result

	if r.IsPassing() {
		fmt.Fprintf(&b, "[green]✓ Test: %s[white]\n\n", tview.Escape(r.Name()))
	} else {
		fmt.Fprintf(&b, "[red]✗ Test: %s[white]\n\n", tview.Escape(r.Name()))
	}
	if r.Info != "" {
		fmt.Fprintf(&b, "[yellow]Info:[white] %s\n", tview.Escape(r.Info))
	}
	if r.Timeout > 0 {
		slow := ""
		if r.IsSlow() {
			slow = " [yellow](slow)[white]"
		}
		fmt.Fprintf(&b, "[yellow]Runtime:[white] %.2fs of %.2fs%s\n", r.Elapsed.Seconds(), r.Timeout.Seconds(), slow)
	}
	b.WriteString("\n")

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "[cyan]<%s>[white]\n", tview.Escape(s.Label))
		for _, line := range s.Lines {
			b.WriteString(colorLine(line, s.Diff))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if e.report != nil {
		if len(e.report.HardErrors) > 0 && r.ID != domain.ErrorResultID {
			b.WriteString("[yellow]Errors in this program:[white]\n")
			for _, msg := range e.report.HardErrors {
				b.WriteString(tview.Escape(strings.TrimRight(msg, "\n")))
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		if len(e.report.StyleIssues) > 0 {
			b.WriteString("[yellow]Style issues:[white]\n")
			for _, issue := range e.report.StyleIssues {
				b.WriteString("  " + tview.Escape(issue) + "\n")
			}
		}
	}
	return b.String()
}

func colorLine(line string, diff bool) string {
	escaped := tview.Escape(line)
	if !diff {
		return escaped
	}
	switch {
	case strings.HasPrefix(line, "- "):
		return "[red]" + escaped + "[white]"
	case strings.HasPrefix(line, "+ "):
		return "[green]" + escaped + "[white]"
	case strings.HasPrefix(line, "? "):
		return "[gray]" + escaped + "[white]"
	}
	return escaped
}
