package tui

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/leapstack-labs/codecheck/internal/export"
	"github.com/leapstack-labs/codecheck/internal/query"
	"github.com/leapstack-labs/codecheck/internal/result"
)

type checkFocus int

const (
	focusLine checkFocus = iota
	focusProduct
	focusFrom
	focusTo
	focusField
	focusResults
	checkFocusCount
)

// checkTab holds the controls of the Check tab. Indexes of -1 mean nothing
// is selected.
type checkTab struct {
	lines    []string
	products []string
	line     int
	product  int
	from     textinput.Model
	to       textinput.Model
	field    query.DateField
	focus    checkFocus
	results  table.Model

	// request is the last submitted request while its result is pending or
	// shown; nil once hidden.
	request *query.Request
}

func newCheckTab(today time.Time) checkTab {
	dateInput := func(value string) textinput.Model {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = "YYYY-MM-DD"
		in.CharLimit = len(query.DateLayout)
		in.Width = len(query.DateLayout) + 1
		in.SetValue(value)
		return in
	}
	return checkTab{
		line:    -1,
		product: -1,
		from:    dateInput(today.Format(query.DateLayout)),
		to:      dateInput(""),
		results: table.New(table.WithHeight(10), table.WithStyles(tableStyles())),
	}
}

func (c *checkTab) lineName() string {
	if c.line < 0 || c.line >= len(c.lines) {
		return ""
	}
	return c.lines[c.line]
}

func (c *checkTab) productName() string {
	if c.product < 0 || c.product >= len(c.products) {
		return ""
	}
	return c.products[c.product]
}

func (c *checkTab) setFocus(f checkFocus) tea.Cmd {
	c.focus = f
	c.from.Blur()
	c.to.Blur()
	c.results.Blur()
	switch f {
	case focusFrom:
		return c.from.Focus()
	case focusTo:
		return c.to.Focus()
	case focusResults:
		c.results.Focus()
	}
	return nil
}

func (c *checkTab) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch c.focus {
	case focusFrom:
		c.from, cmd = c.from.Update(msg)
	case focusTo:
		c.to, cmd = c.to.Update(msg)
	case focusResults:
		c.results, cmd = c.results.Update(msg)
	}
	return cmd
}

// step moves idx by delta through n entries, wrapping around.
func step(idx, delta, n int) int {
	if n == 0 {
		return -1
	}
	if idx < 0 {
		if delta > 0 {
			return 0
		}
		return n - 1
	}
	return (idx + delta + n) % n
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// syncSelectors reloads the selector entries from the state. When the
// state's selection no longer matches what the tab showed, or the selected
// line or product was edited, the result is stale and gets hidden.
func (m *Model) syncSelectors() {
	prevLine, prevProduct := m.check.lineName(), m.check.productName()

	line, product := m.state.Selected()
	m.check.lines = m.state.LineNames()
	m.check.products = m.state.ProductNames()
	m.check.line = indexOf(m.check.lines, line)
	m.check.product = indexOf(m.check.products, product)

	if line != prevLine || product != prevProduct || m.requestChanged() {
		m.invalidate()
	}
}

// requestChanged reports whether the registries no longer resolve the last
// request's line and product to the connection and GTIN it ran with.
func (m *Model) requestChanged() bool {
	req := m.check.request
	if req == nil {
		return false
	}
	line, ok := m.state.Line(req.LineName)
	if !ok || line != req.Line {
		return true
	}
	gtin, ok := m.state.Product(req.ProductName)
	return !ok || gtin != req.CodeFragment
}

func (m *Model) selectLine(idx int) {
	m.check.line = idx
	m.state.SelectLine(m.check.lineName())
	m.invalidate()
}

func (m *Model) selectProduct(idx int) {
	m.check.product = idx
	m.state.SelectProduct(m.check.productName())
	m.invalidate()
}

// invalidate hides the current result.
func (m *Model) invalidate() {
	m.check.request = nil
	m.result.Invalidate()
	m.refreshResults()
}

func (m *Model) refreshResults() {
	view := m.result.View()
	m.check.results.SetRows(nil)
	if !view.ShowTable() {
		m.check.results.SetColumns(nil)
		return
	}

	rows := make([]table.Row, 0, view.Grid.Len())
	for _, r := range view.Grid.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell.Text
		}
		rows = append(rows, row)
	}
	m.check.results.SetColumns(fitColumns(view.Grid.Columns, rows, 40))
	m.check.results.SetRows(rows)
	m.check.results.GotoTop()
}

func (m *Model) checkKey(msg tea.KeyMsg) tea.Cmd {
	c := &m.check
	switch msg.String() {
	case "tab":
		return c.setFocus((c.focus + 1) % checkFocusCount)
	case "shift+tab":
		return c.setFocus((c.focus + checkFocusCount - 1) % checkFocusCount)
	case "ctrl+r":
		return m.runQuery()
	case "ctrl+e":
		return m.promptExport()
	}

	switch c.focus {
	case focusLine, focusProduct, focusField:
		delta := 0
		switch msg.String() {
		case "left", "h", "up", "k":
			delta = -1
		case "right", "l", "down", "j", " ":
			delta = 1
		case "enter":
			return m.runQuery()
		}
		if delta == 0 {
			return nil
		}
		switch c.focus {
		case focusLine:
			m.selectLine(step(c.line, delta, len(c.lines)))
		case focusProduct:
			m.selectProduct(step(c.product, delta, len(c.products)))
		default:
			if c.field == query.InsertedAt {
				c.field = query.ProducedAt
			} else {
				c.field = query.InsertedAt
			}
		}
		return nil

	case focusFrom, focusTo:
		if msg.String() == "enter" {
			return m.runQuery()
		}
	}
	return c.update(msg)
}

func (m *Model) selection() (query.Selection, error) {
	sel := query.Selection{
		Line:    m.check.lineName(),
		Product: m.check.productName(),
		Field:   m.check.field,
	}
	from, err := query.ParseDate(m.check.from.Value())
	if err != nil {
		return sel, err
	}
	if from != nil {
		sel.From = *from
	}
	if sel.To, err = query.ParseDate(m.check.to.Value()); err != nil {
		return sel, err
	}
	return sel, nil
}

func (m *Model) runQuery() tea.Cmd {
	sel, err := m.selection()
	if err != nil {
		m.showAlert(err.Error())
		return nil
	}
	lines, products := m.state.Lookups()
	req, err := query.Build(lines, products, sel)
	if err != nil {
		m.showAlert(err.Error())
		return nil
	}

	m.invalidate()
	m.status = ""
	job := m.exec.Submit(m.ctx, req)
	m.result.Begin(job.ID)
	m.check.request = &req
	m.running = job.ID
	m.modal = modalRunning
	m.logger.Debug("query submitted",
		slog.Uint64("id", job.ID),
		slog.String("trace_id", job.TraceID),
		slog.String("line", req.LineName))
	return tea.Batch(m.spinner.Tick, waitForJob(job))
}

func (m *Model) handleQueryDone(msg queryDoneMsg) {
	if msg.id == m.running {
		m.running = 0
		if m.modal == modalRunning {
			m.modal = modalNone
		}
	}
	if !m.result.Accept(msg.id, msg.out) {
		m.logger.Debug("discarded stale outcome", slog.Uint64("id", msg.id))
		return
	}
	m.refreshResults()
	if view := m.result.View(); view.Alert {
		m.showAlert(view.Message)
	}
}

func (m *Model) promptExport() tea.Cmd {
	view := m.result.View()
	if !view.ShowExport() {
		m.status = "Nothing to export."
		return nil
	}
	grid := view.Grid
	name := fmt.Sprintf("codes_%s.csv", m.now().Format("20060102_150405"))
	return m.askText("Export to CSV file", filepath.Join(m.exportDir, name), func(path string) tea.Cmd {
		if path == "" {
			return nil
		}
		if err := export.WriteFile(path, grid); err != nil {
			m.showError(err)
			return nil
		}
		m.logger.Info("exported", slog.String("path", path), slog.Int("rows", grid.Len()))
		m.status = fmt.Sprintf("Saved %d rows to %s", grid.Len(), path)
		return nil
	})
}

func (m *Model) checkView() string {
	c := &m.check
	var b strings.Builder

	row := func(f checkFocus, label, value string) {
		style := labelStyle
		if c.focus == f {
			style = focusedLabelStyle
		}
		b.WriteString(style.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	choice := func(v, none string) string {
		if v == "" {
			return mutedStyle.Render("‹ " + none + " ›")
		}
		return valueStyle.Render("‹ " + v + " ›")
	}

	row(focusLine, "Line", choice(c.lineName(), "select a line"))
	row(focusProduct, "Product", choice(c.productName(), "select a product"))
	row(focusFrom, "From", c.from.View())
	row(focusTo, "To", c.to.View())
	row(focusField, "Date of", choice(fieldLabel(c.field), ""))
	b.WriteString("\n")

	view := m.result.View()
	if view.ShowTable() {
		b.WriteString(c.results.View())
		b.WriteString("\n")
	}
	if view.ShowCount() {
		b.WriteString(countStyle.Render(view.CountLabel()))
		b.WriteString("\n")
	}
	if view.State != result.Hidden {
		b.WriteString(bannerFor(view.State).Render(view.Status()))
		b.WriteString("\n")
	}
	return b.String()
}

func fieldLabel(f query.DateField) string {
	if f == query.ProducedAt {
		return "production"
	}
	return "insertion"
}
