package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// listFocus is the focus index of a form's list.
const listFocus = -1

// form is a registry list next to an edit form. The first input is
// always the entry name.
type form struct {
	list   table.Model
	labels []string
	inputs []textinput.Model
	focus  int

	// editing is the stored name of the entry loaded into the inputs,
	// empty for a new entry.
	editing string
}

func newForm(columns []table.Column, labels []string) *form {
	f := &form{
		list: table.New(
			table.WithColumns(columns),
			table.WithHeight(12),
			table.WithStyles(tableStyles()),
		),
		labels: labels,
		inputs: make([]textinput.Model, len(labels)),
		focus:  listFocus,
	}
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 256
		in.Width = 32
		f.inputs[i] = in
	}
	f.list.Focus()
	return f
}

func (f *form) setRows(rows []table.Row) {
	f.list.SetRows(rows)
	f.list.SetCursor(f.list.Cursor())
}

// selected returns the name in the list's highlighted row.
func (f *form) selected() string {
	row := f.list.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

func (f *form) setFocus(i int) tea.Cmd {
	f.focus = i
	f.list.Blur()
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	if i == listFocus {
		f.list.Focus()
		return nil
	}
	return f.inputs[i].Focus()
}

// cycle moves the focus by delta through the list and the inputs.
func (f *form) cycle(delta int) tea.Cmd {
	n := len(f.inputs) + 1
	pos := (f.focus + 1 + delta + n) % n
	return f.setFocus(pos - 1)
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

func (f *form) fill(name string, values ...string) {
	f.editing = name
	f.inputs[0].SetValue(name)
	for i, v := range values {
		f.inputs[i+1].SetValue(v)
	}
}

func (f *form) reset() {
	f.editing = ""
	for i := range f.inputs {
		f.inputs[i].SetValue("")
	}
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if f.focus == listFocus {
		f.list, cmd = f.list.Update(msg)
		return cmd
	}
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) view(emptyText string) string {
	var left string
	if len(f.list.Rows()) == 0 {
		left = mutedStyle.Render(emptyText)
	} else {
		left = f.list.View()
	}

	var b strings.Builder
	heading := "New entry"
	if f.editing != "" {
		heading = "Editing " + f.editing
	}
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n")
	for i, label := range f.labels {
		style := labelStyle
		if f.focus == i {
			style = focusedLabelStyle
		}
		b.WriteString(style.Render(label))
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "    ", b.String())
}

// fitColumns sizes one column per title to its widest value.
func fitColumns(titles []string, rows []table.Row, maxWidth int) []table.Column {
	cols := make([]table.Column, len(titles))
	for i, t := range titles {
		w := lipgloss.Width(t)
		for _, row := range rows {
			if i < len(row) {
				w = max(w, lipgloss.Width(row[i]))
			}
		}
		cols[i] = table.Column{Title: t, Width: min(w, maxWidth)}
	}
	return cols
}
