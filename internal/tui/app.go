// Package tui provides a terminal browser for scout's recorded agent runs
// and the tool server's call log.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/pkg/rpc"
)

// Views.
const (
	viewRuns  = "runs"
	viewCalls = "calls"
)

// Source supplies the records the browser shows.
type Source interface {
	Runs() ([]*agent.RunRecord, error)
	Calls() ([]rpc.CallRecord, error)
	DeleteRun(id string) error
	// Describe names the source in the header.
	Describe() string
}

// App is the main TUI application. It polls its Source and displays runs
// or calls in a navigable table view.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	header      *tview.TextView
	footer      *tview.TextView
	table       *tview.Table
	filterInput *tview.InputField
	detailView  *tview.TextView
	layout      *tview.Flex
	mainFlex    *tview.Flex

	source      Source
	currentView string
	filter      string

	// Cached data from the last successful refresh.
	runs    []*agent.RunRecord
	calls   []rpc.CallRecord
	lastErr error

	// rowIDs maps table rows to record ids for the current view.
	rowIDs map[int]string

	mu sync.Mutex

	describeOpen bool
	filterOpen   bool
}

// NewApp creates a browser over source.
func NewApp(source Source) *App {
	a := &App{
		app:         tview.NewApplication(),
		source:      source,
		currentView: viewRuns,
		rowIDs:      map[int]string{},
	}

	// -- Header --
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Footer --
	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Table --
	a.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSeparator(tview.Borders.Vertical)
	a.table.SetBorderPadding(0, 0, 1, 1)

	// -- Filter input --
	a.filterInput = tview.NewInputField().
		SetLabel(" Filter: ").
		SetFieldWidth(40).
		SetFieldBackgroundColor(tcell.ColorBlack).
		SetLabelColor(tcell.ColorYellow)

	a.filterInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.setFilter(a.filterInput.GetText())
		case tcell.KeyEscape:
			a.filterInput.SetText("")
			a.setFilter("")
		}
		a.hideFilter()
		a.updateHeader()
		a.updateTable()
	})

	// -- Detail view --
	a.detailView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	a.detailView.SetBorder(true).
		SetTitle(" Describe ").
		SetBorderColor(tcell.ColorDodgerBlue)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.table, 0, 1, true)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(contentFlex, 0, 1, true).
		AddItem(a.footer, 1, 0, false)

	a.layout = contentFlex

	a.pages = tview.NewPages().
		AddPage("main", a.mainFlex, true, true)

	a.updateHeader()
	a.updateFooter()
	a.setupKeyBindings()

	a.app.SetRoot(a.pages, true).SetFocus(a.table)

	return a
}

// Run starts the background refresh goroutine and runs the TUI event loop.
func (a *App) Run() error {
	a.refresh()
	a.updateTable()

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				a.refresh()
				a.app.QueueUpdateDraw(a.updateTable)
			}
		}
	}()

	return a.app.Run()
}

// ---------------------------------------------------------------------------
// Key bindings
// ---------------------------------------------------------------------------

func (a *App) setupKeyBindings() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.filterOpen {
			return event
		}

		if a.describeOpen && event.Key() == tcell.KeyEscape {
			a.hideDescribe()
			return nil
		}

		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case '1':
				a.switchView(viewRuns)
				return nil
			case '2':
				a.switchView(viewCalls)
				return nil
			case '/':
				a.showFilter()
				return nil
			case 'q':
				a.app.Stop()
				return nil
			case 'r':
				a.refreshAsync()
				return nil
			case 'd':
				a.confirmDelete()
				return nil
			case 'j':
				row, _ := a.table.GetSelection()
				if row < a.table.GetRowCount()-1 {
					a.table.Select(row+1, 0)
				}
				return nil
			case 'k':
				row, _ := a.table.GetSelection()
				if row > 1 {
					a.table.Select(row-1, 0)
				}
				return nil
			}
		case tcell.KeyEnter:
			a.showDescribe()
			return nil
		case tcell.KeyEscape:
			if a.currentFilter() != "" {
				a.setFilter("")
				a.updateHeader()
				a.updateTable()
			}
			return nil
		}

		return event
	})
}

func (a *App) switchView(view string) {
	a.mu.Lock()
	a.currentView = view
	a.mu.Unlock()

	a.hideDescribe()
	a.updateHeader()
	a.updateFooter()
	a.refreshAsync()
}

// ---------------------------------------------------------------------------
// Data refresh
// ---------------------------------------------------------------------------

func (a *App) refreshAsync() {
	go func() {
		a.refresh()
		a.app.QueueUpdateDraw(a.updateTable)
	}()
}

func (a *App) refresh() {
	switch a.view() {
	case viewRuns:
		runs, err := a.source.Runs()
		a.mu.Lock()
		a.runs = runs
		a.lastErr = err
		a.mu.Unlock()
	case viewCalls:
		calls, err := a.source.Calls()
		a.mu.Lock()
		a.calls = calls
		a.lastErr = err
		a.mu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// Table rendering
// ---------------------------------------------------------------------------

func (a *App) updateTable() {
	a.table.Clear()
	a.rowIDs = map[int]string{}

	a.mu.Lock()
	view := a.currentView
	filter := strings.ToLower(a.filter)
	err := a.lastErr
	a.mu.Unlock()

	if err != nil {
		a.setTableHeaders([]string{"ERROR"})
		a.table.SetCell(1, 0,
			tview.NewTableCell(fmt.Sprintf("Error: %v", err)).
				SetTextColor(tcell.ColorRed))
		return
	}

	switch view {
	case viewRuns:
		a.renderRuns(filter)
	case viewCalls:
		a.renderCalls(filter)
	}

	if a.table.GetRowCount() > 1 {
		a.table.Select(1, 0)
	}
}

func (a *App) setTableHeaders(headers []string) {
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorWhite).
			SetBackgroundColor(tcell.ColorDarkCyan).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1)
		a.table.SetCell(0, col, cell)
	}
}

// matchesFilter returns true if any of the values contain the filter string.
func matchesFilter(filter string, values ...string) bool {
	if filter == "" {
		return true
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), filter) {
			return true
		}
	}
	return false
}

func (a *App) renderRuns(filter string) {
	a.setTableHeaders([]string{"ID", "PROMPT", "OUTCOME", "STEPS", "MODEL", "AGE"})

	a.mu.Lock()
	runs := a.runs
	a.mu.Unlock()

	row := 1
	for _, r := range runs {
		outcome := string(r.Outcome)
		steps := fmt.Sprintf("%d", r.Steps)
		age := formatAge(r.StartedAt)
		prompt := truncate(r.Prompt, 60)

		if !matchesFilter(filter, r.ID, r.Prompt, outcome, r.Model, r.Answer) {
			continue
		}

		a.table.SetCell(row, 0, tview.NewTableCell(shortID(r.ID)).SetExpansion(1))
		a.table.SetCell(row, 1, tview.NewTableCell(prompt).SetExpansion(3))
		a.table.SetCell(row, 2, tview.NewTableCell(outcome).
			SetTextColor(outcomeColor(outcome)).SetExpansion(1))
		a.table.SetCell(row, 3, tview.NewTableCell(steps).SetExpansion(1))
		a.table.SetCell(row, 4, tview.NewTableCell(r.Model).SetExpansion(1))
		a.table.SetCell(row, 5, tview.NewTableCell(age).SetExpansion(1))
		a.rowIDs[row] = r.ID
		row++
	}
}

func (a *App) renderCalls(filter string) {
	a.setTableHeaders([]string{"ID", "METHOD", "INPUT", "STATUS", "DURATION", "AGE"})

	a.mu.Lock()
	calls := a.calls
	a.mu.Unlock()

	row := 1
	for _, c := range calls {
		status := callStatus(c)
		duration := fmt.Sprintf("%dms", c.DurationMs)
		age := formatAge(c.At)

		if !matchesFilter(filter, c.ID, c.Method, c.Input, status, c.ErrorMessage) {
			continue
		}

		a.table.SetCell(row, 0, tview.NewTableCell(shortID(c.ID)).SetExpansion(1))
		a.table.SetCell(row, 1, tview.NewTableCell(c.Method).SetExpansion(1))
		a.table.SetCell(row, 2, tview.NewTableCell(truncate(c.Input, 50)).SetExpansion(2))
		a.table.SetCell(row, 3, tview.NewTableCell(status).
			SetTextColor(outcomeColor(status)).SetExpansion(1))
		a.table.SetCell(row, 4, tview.NewTableCell(duration).SetExpansion(1))
		a.table.SetCell(row, 5, tview.NewTableCell(age).SetExpansion(1))
		a.rowIDs[row] = c.ID
		row++
	}
}

// ---------------------------------------------------------------------------
// Describe (detail panel)
// ---------------------------------------------------------------------------

func (a *App) selectedID() (string, bool) {
	row, _ := a.table.GetSelection()
	id, ok := a.rowIDs[row]
	return id, ok
}

func (a *App) showDescribe() {
	id, ok := a.selectedID()
	if !ok {
		return
	}

	detail := "[red]record no longer available[-]"
	a.mu.Lock()
	switch a.currentView {
	case viewRuns:
		for _, r := range a.runs {
			if r.ID == id {
				detail = formatRunDescribe(r)
			}
		}
	case viewCalls:
		for _, c := range a.calls {
			if c.ID == id {
				detail = formatCallDescribe(c)
			}
		}
	}
	a.mu.Unlock()

	a.detailView.Clear()
	a.detailView.SetText(detail)
	a.detailView.ScrollToBeginning()

	if !a.describeOpen {
		a.layout.AddItem(a.detailView, 0, 2, false)
		a.describeOpen = true
	}
}

func (a *App) hideDescribe() {
	if a.describeOpen {
		a.layout.RemoveItem(a.detailView)
		a.describeOpen = false
		a.app.SetFocus(a.table)
	}
}

func formatRunDescribe(r *agent.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]ID:[-::-]        %s\n", r.ID)
	fmt.Fprintf(&b, "[::b]Model:[-::-]     %s\n", r.Model)
	fmt.Fprintf(&b, "[::b]Outcome:[-::-]   [%s]%s[-]\n", outcomeColorName(string(r.Outcome)), r.Outcome)
	fmt.Fprintf(&b, "[::b]Steps:[-::-]     %d\n", r.Steps)
	fmt.Fprintf(&b, "[::b]Started:[-::-]   %s\n", r.StartedAt.Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "[::b]Duration:[-::-]  %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "[::b]Prompt:[-::-]\n  %s\n", tview.Escape(r.Prompt))
	if r.Answer != "" {
		fmt.Fprintf(&b, "\n[::b]Answer:[-::-]\n%s\n", tview.Escape(r.Answer))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\n[red::b]Error:[-::-]\n[red]%s[-]\n", tview.Escape(r.Error))
	}

	// The system prompt is long and identical across runs.
	b.WriteString("\n[::b]Transcript:[-::-]\n")
	for _, m := range r.Transcript {
		if m.Role == agent.RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "[%s::b]%s[-::-]\n%s\n\n", roleColorName(m.Role), m.Role, tview.Escape(m.Content))
	}
	return b.String()
}

func formatCallDescribe(c rpc.CallRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]ID:[-::-]         %s\n", c.ID)
	fmt.Fprintf(&b, "[::b]Request ID:[-::-] %s\n", c.RequestID)
	fmt.Fprintf(&b, "[::b]Method:[-::-]     %s\n", c.Method)
	fmt.Fprintf(&b, "[::b]Input:[-::-]      %s\n", tview.Escape(c.Input))
	status := callStatus(c)
	fmt.Fprintf(&b, "[::b]Status:[-::-]     [%s]%s[-]\n", outcomeColorName(status), status)
	if !c.OK {
		fmt.Fprintf(&b, "[::b]Code:[-::-]       %d\n", c.ErrorCode)
		fmt.Fprintf(&b, "[::b]Error:[-::-]      [red]%s[-]\n", tview.Escape(c.ErrorMessage))
	}
	fmt.Fprintf(&b, "[::b]Duration:[-::-]   %dms\n", c.DurationMs)
	fmt.Fprintf(&b, "[::b]At:[-::-]         %s\n", c.At.Format(time.RFC3339))
	return b.String()
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func (a *App) currentFilter() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

func (a *App) setFilter(f string) {
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
}

func (a *App) showFilter() {
	if a.filterOpen {
		return
	}
	a.filterOpen = true
	a.filterInput.SetText(a.currentFilter())

	a.mainFlex.RemoveItem(a.footer)
	a.mainFlex.AddItem(a.filterInput, 1, 0, true)
	a.app.SetFocus(a.filterInput)
}

func (a *App) hideFilter() {
	if !a.filterOpen {
		return
	}
	a.filterOpen = false

	a.mainFlex.RemoveItem(a.filterInput)
	a.mainFlex.AddItem(a.footer, 1, 0, false)
	a.app.SetFocus(a.table)
}

// ---------------------------------------------------------------------------
// Delete with confirmation
// ---------------------------------------------------------------------------

// confirmDelete removes the selected run. The call log belongs to the
// server and is read-only here.
func (a *App) confirmDelete() {
	if a.view() != viewRuns {
		a.flashFooter("[yellow]The call log is read-only[-]")
		return
	}
	id, ok := a.selectedID()
	if !ok {
		return
	}

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete run %s?", shortID(id))).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Delete" {
				a.deleteRun(id)
			}
			a.pages.RemovePage("confirm")
			a.app.SetFocus(a.table)
		})
	modal.SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("confirm", modal, true, true)
}

func (a *App) deleteRun(id string) {
	if err := a.source.DeleteRun(id); err != nil {
		a.flashFooter(fmt.Sprintf("[red]Delete failed: %v[-]", err))
		return
	}
	a.hideDescribe()
	a.refreshAsync()
}

// flashFooter shows msg in the footer for a few seconds.
func (a *App) flashFooter(msg string) {
	a.footer.SetText(" " + msg)
	go func() {
		time.Sleep(3 * time.Second)
		a.app.QueueUpdateDraw(a.updateFooter)
	}()
}

// ---------------------------------------------------------------------------
// Header & Footer
// ---------------------------------------------------------------------------

func (a *App) view() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentView
}

func (a *App) updateHeader() {
	views := []struct {
		key  string
		view string
		name string
	}{
		{"1", viewRuns, "Runs"},
		{"2", viewCalls, "Calls"},
	}

	current := a.view()
	var parts []string
	for _, v := range views {
		if v.view == current {
			parts = append(parts, fmt.Sprintf("[::b]<%s>[%s][::-]", v.key, v.name))
		} else {
			parts = append(parts, fmt.Sprintf("<%s>%s", v.key, v.name))
		}
	}

	filterInfo := ""
	if f := a.currentFilter(); f != "" {
		filterInfo = fmt.Sprintf(" | [yellow]filter: %s[-]", tview.Escape(f))
	}

	a.header.SetText(fmt.Sprintf(" [::b]Scout[::-] | %s | %s%s",
		tview.Escape(a.source.Describe()), strings.Join(parts, "  "), filterInfo))
}

func (a *App) updateFooter() {
	del := "  [yellow]<d>[white]Delete"
	if a.view() != viewRuns {
		del = ""
	}
	a.footer.SetText(" [yellow]<enter>[white]Describe" + del + "  [yellow]</>[white]Filter  [yellow]<q>[white]Quit  [yellow]<r>[white]Refresh  [yellow]<esc>[white]Back")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatAge returns a human-readable duration string since the given time.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to max runes on a single line.
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func callStatus(c rpc.CallRecord) string {
	if c.OK {
		return "OK"
	}
	return "Error"
}

// outcomeColor returns the tcell color for a run outcome or call status.
func outcomeColor(outcome string) tcell.Color {
	switch outcome {
	case string(agent.OutcomeAnswered), "OK":
		return tcell.ColorGreen
	case string(agent.OutcomeExhausted), string(agent.OutcomeStalled):
		return tcell.ColorYellow
	case string(agent.OutcomeFailed), "Error":
		return tcell.ColorRed
	case string(agent.OutcomeCancelled):
		return tcell.ColorGray
	default:
		return tcell.ColorWhite
	}
}

// outcomeColorName returns the tview color tag name for an outcome.
func outcomeColorName(outcome string) string {
	switch outcomeColor(outcome) {
	case tcell.ColorGreen:
		return "green"
	case tcell.ColorYellow:
		return "yellow"
	case tcell.ColorRed:
		return "red"
	case tcell.ColorGray:
		return "gray"
	default:
		return "white"
	}
}

func roleColorName(r agent.Role) string {
	if r == agent.RoleAssistant {
		return "dodgerblue"
	}
	return "green"
}
