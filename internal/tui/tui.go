// Package tui is the interactive terminal front end of codecheck.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/codecheck/internal/appstate"
	"github.com/leapstack-labs/codecheck/internal/notifier"
	"github.com/leapstack-labs/codecheck/internal/query"
	"github.com/leapstack-labs/codecheck/internal/result"
)

// Options configures the TUI.
type Options struct {
	State    *appstate.State
	Executor *query.Executor
	// ExportDir is where the export prompt proposes to write CSV files.
	ExportDir string
	Version   string
	Logger    *slog.Logger
	// Now overrides the clock used for default dates and file names.
	Now func() time.Time
}

type tab int

const (
	tabCheck tab = iota
	tabProducts
	tabLines
	tabInfo
	tabCount
)

var tabNames = [tabCount]string{"Check", "Products", "Lines", "Info"}

type modalType int

const (
	modalNone modalType = iota
	modalRunning
	modalAlert
	modalConfirm
	modalPrompt
)

// eventMsg carries a notifier event into the update loop.
type eventMsg struct {
	event notifier.Event
}

// queryDoneMsg carries a finished job's outcome.
type queryDoneMsg struct {
	id  uint64
	out query.Outcome
}

// Model is the root bubbletea model.
type Model struct {
	ctx       context.Context
	state     *appstate.State
	exec      *query.Executor
	result    *result.Renderer
	events    chan notifier.Event
	logger    *slog.Logger
	version   string
	exportDir string
	now       func() time.Time

	tab    tab
	width  int
	height int

	check    checkTab
	products *form
	lines    *form

	// Modal state
	modal       modalType
	alert       string
	confirmText string
	onConfirm   func() tea.Cmd
	prompt      textinput.Model
	promptTitle string
	onPrompt    func(string) tea.Cmd
	spinner     spinner.Model
	running     uint64

	// status is a one-line notice under the active tab.
	status string
}

// New creates the model and subscribes it to state changes.
// Call Close when the program has exited.
func New(ctx context.Context, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	prompt := textinput.New()
	prompt.Prompt = "> "
	prompt.CharLimit = 512
	prompt.Width = 60

	m := &Model{
		ctx:       ctx,
		state:     opts.State,
		exec:      opts.Executor,
		result:    result.NewRenderer(),
		events:    opts.State.Notifier().Subscribe(),
		logger:    logger,
		version:   opts.Version,
		exportDir: opts.ExportDir,
		now:       now,
		check:     newCheckTab(now()),
		products: newForm(
			[]table.Column{{Title: "Product", Width: 28}, {Title: "GTIN", Width: 16}},
			[]string{"Name", "GTIN"},
		),
		lines: newForm(
			[]table.Column{{Title: "Line", Width: 20}, {Title: "Host", Width: 16}, {Title: "Port", Width: 6}, {Title: "Database", Width: 14}},
			[]string{"Name", "Host", "Port", "User", "Password", "Database"},
		),
		prompt:  prompt,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.lines.inputs[linePassword].EchoMode = textinput.EchoPassword
	m.lines.inputs[linePassword].EchoCharacter = '•'

	m.refreshProducts()
	m.refreshLines()
	m.syncSelectors()
	return m
}

// Close unsubscribes the model from state changes.
func (m *Model) Close() {
	m.state.Notifier().Unsubscribe(m.events)
}

// Run starts the TUI and blocks until the operator quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func waitForEvent(ch <-chan notifier.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

func waitForJob(job *query.Job) tea.Cmd {
	return func() tea.Msg {
		return queryDoneMsg{id: job.ID, out: job.Wait()}
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), textinput.Blink)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case eventMsg:
		m.handleEvent(msg.event)
		return m, waitForEvent(m.events)

	case queryDoneMsg:
		m.handleQueryDone(msg)
		return m, nil

	case spinner.TickMsg:
		if m.modal != modalRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	return m, m.updateTab(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlQ {
		return tea.Quit
	}

	switch m.modal {
	case modalRunning:
		// The query cannot be cancelled from the screen; it ends or times out.
		return nil
	case modalAlert:
		switch msg.String() {
		case "enter", "esc", " ":
			m.closeAlert()
		}
		return nil
	case modalConfirm:
		switch strings.ToLower(msg.String()) {
		case "y", "enter":
			m.modal = modalNone
			return m.onConfirm()
		case "n", "esc":
			m.modal = modalNone
		}
		return nil
	case modalPrompt:
		switch msg.String() {
		case "enter":
			m.modal = modalNone
			m.prompt.Blur()
			return m.onPrompt(strings.TrimSpace(m.prompt.Value()))
		case "esc":
			m.modal = modalNone
			m.prompt.Blur()
			return nil
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return cmd
	}

	switch msg.String() {
	case "f1":
		return m.setTab(tabCheck)
	case "f2":
		return m.setTab(tabProducts)
	case "f3":
		return m.setTab(tabLines)
	case "f4":
		return m.setTab(tabInfo)
	case "ctrl+pgdown":
		return m.setTab((m.tab + 1) % tabCount)
	case "ctrl+pgup":
		return m.setTab((m.tab + tabCount - 1) % tabCount)
	}

	switch m.tab {
	case tabCheck:
		return m.checkKey(msg)
	case tabProducts:
		return m.productsKey(msg)
	case tabLines:
		return m.linesKey(msg)
	}
	return nil
}

// updateTab forwards non-key messages, such as cursor blinks, to the active tab.
func (m *Model) updateTab(msg tea.Msg) tea.Cmd {
	switch m.tab {
	case tabCheck:
		return m.check.update(msg)
	case tabProducts:
		return m.products.update(msg)
	case tabLines:
		return m.lines.update(msg)
	}
	return nil
}

func (m *Model) setTab(t tab) tea.Cmd {
	m.tab = t
	m.status = ""
	return nil
}

func (m *Model) handleEvent(ev notifier.Event) {
	m.logger.Debug("state changed", slog.String("event", ev.String()))
	switch ev {
	case notifier.LinesChanged:
		m.refreshLines()
	case notifier.ProductsChanged:
		m.refreshProducts()
	}
	m.syncSelectors()
}

func (m *Model) resize() {
	h := max(m.height-14, 5)
	m.check.results.SetHeight(h)
	m.products.list.SetHeight(h)
	m.lines.list.SetHeight(h)
}

// Modals

func (m *Model) showAlert(text string) {
	m.modal = modalAlert
	m.alert = text
}

func (m *Model) showError(err error) {
	m.logger.Warn("operation failed", slog.String("error", err.Error()))
	m.showAlert(err.Error())
}

func (m *Model) closeAlert() {
	m.modal = modalNone
	m.alert = ""
	m.result.DismissAlert()
}

func (m *Model) ask(text string, onYes func() tea.Cmd) {
	m.modal = modalConfirm
	m.confirmText = text
	m.onConfirm = onYes
}

func (m *Model) askText(title, value string, onEnter func(string) tea.Cmd) tea.Cmd {
	m.modal = modalPrompt
	m.promptTitle = title
	m.onPrompt = onEnter
	m.prompt.SetValue(value)
	m.prompt.CursorEnd()
	return m.prompt.Focus()
}

func (m *Model) modalView() string {
	switch m.modal {
	case modalRunning:
		line, _ := m.state.Selected()
		return modalStyle.Render(fmt.Sprintf("%s Querying %s, please wait", m.spinner.View(), line))
	case modalAlert:
		return alertStyle.Render(m.alert + "\n\n" + mutedStyle.Render("enter: close"))
	case modalConfirm:
		return modalStyle.Render(m.confirmText + "\n\n" + mutedStyle.Render("y: yes  n: no"))
	case modalPrompt:
		return modalStyle.Render(m.promptTitle + "\n\n" + m.prompt.View() + "\n\n" + mutedStyle.Render("enter: ok  esc: cancel"))
	}
	return ""
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.modal != modalNone {
		box := m.modalView()
		if m.width > 0 && m.height > 0 {
			return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
		}
		return box
	}

	var b strings.Builder
	b.WriteString(m.tabBar())
	b.WriteString("\n\n")

	switch m.tab {
	case tabCheck:
		b.WriteString(m.checkView())
	case tabProducts:
		b.WriteString(m.products.view("No products yet. Press ctrl+n to add one."))
	case tabLines:
		b.WriteString(m.lines.view("No lines yet. Press ctrl+n to add one."))
	case tabInfo:
		b.WriteString(m.infoView())
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(valueStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(m.helpText()))
	return b.String()
}

func (m *Model) tabBar() string {
	parts := make([]string, 0, tabCount)
	for i, name := range tabNames {
		label := fmt.Sprintf("F%d %s", i+1, name)
		if tab(i) == m.tab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) helpText() string {
	switch m.tab {
	case tabCheck:
		return "tab: next field  ←/→: change  enter: check  ctrl+e: export csv  ctrl+q: quit"
	case tabProducts:
		return "tab: next field  enter: edit/save  ctrl+n: new  ctrl+x: delete  ctrl+o: import  ctrl+q: quit"
	case tabLines:
		return "tab: next field  enter: edit/save  ctrl+n: new  ctrl+x: delete  ctrl+o: import appsettings  ctrl+q: quit"
	}
	return "F1-F4: switch tab  ctrl+q: quit"
}

func (m *Model) infoView() string {
	var b strings.Builder
	kv := func(k, v string) {
		b.WriteString(labelStyle.Width(14).Render(k))
		b.WriteString(valueStyle.Render(v))
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Selected line"))
	b.WriteString("\n")
	name, _ := m.state.Selected()
	if l, ok := m.state.Line(name); ok {
		kv("Line", name)
		kv("Host", l.Host)
		kv("Port", l.Port)
		kv("Database", l.Database)
		kv("User", l.User)
	} else {
		b.WriteString(mutedStyle.Render("No line selected."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("codecheck"))
	b.WriteString("\n")
	linesPath, productsPath := m.state.Paths()
	kv("Version", m.version)
	kv("Lines file", linesPath)
	kv("Products file", productsPath)
	return b.String()
}
