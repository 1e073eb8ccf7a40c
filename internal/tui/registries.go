package tui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/leapstack-labs/codecheck/internal/appstate"
	"github.com/leapstack-labs/codecheck/internal/registry"
)

// Line form inputs.
const (
	lineName = iota
	lineHost
	linePort
	lineUser
	linePassword
	lineDatabase
)

func (m *Model) refreshProducts() {
	names := m.state.ProductNames()
	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		gtin, _ := m.state.Product(name)
		rows = append(rows, table.Row{name, gtin})
	}
	m.products.setRows(rows)
}

func (m *Model) refreshLines() {
	names := m.state.LineNames()
	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		l, _ := m.state.Line(name)
		rows = append(rows, table.Row{name, l.Host, l.Port, l.Database})
	}
	m.lines.setRows(rows)
}

// formKey handles the keys shared by both registry tabs. It reports
// whether the key was consumed.
func (m *Model) formKey(f *form, msg tea.KeyMsg, load func(name string), save, remove, importFile func() tea.Cmd) (tea.Cmd, bool) {
	switch msg.String() {
	case "tab":
		return f.cycle(1), true
	case "shift+tab":
		return f.cycle(-1), true
	case "ctrl+n":
		f.reset()
		return f.setFocus(0), true
	case "ctrl+s":
		return save(), true
	case "ctrl+x":
		return remove(), true
	case "ctrl+o":
		return importFile(), true
	case "enter":
		if f.focus == listFocus {
			name := f.selected()
			if name == "" {
				return nil, true
			}
			load(name)
			return f.setFocus(0), true
		}
		return save(), true
	}
	return nil, false
}

// target is the entry a delete applies to: the highlighted row when the
// list has focus, otherwise the entry being edited.
func (f *form) target() string {
	if f.focus == listFocus {
		return f.selected()
	}
	return f.editing
}

// Products

func (m *Model) productsKey(msg tea.KeyMsg) tea.Cmd {
	f := m.products
	cmd, ok := m.formKey(f, msg, m.loadProduct, m.saveProduct, m.deleteProduct, m.importProducts)
	if ok {
		return cmd
	}
	return f.update(msg)
}

func (m *Model) loadProduct(name string) {
	gtin, ok := m.state.Product(name)
	if !ok {
		return
	}
	m.products.fill(name, gtin)
}

func (m *Model) saveProduct() tea.Cmd {
	f := m.products
	p := registry.Product{Name: f.value(0), GTIN: f.value(1)}
	save := func() tea.Cmd {
		if err := m.state.SaveProduct(f.editing, p); err != nil {
			m.showError(err)
			return nil
		}
		f.fill(p.Name, p.GTIN)
		m.status = fmt.Sprintf("Saved product %q.", p.Name)
		return nil
	}

	if _, exists := m.state.Product(p.Name); exists && p.Name != f.editing {
		m.ask(fmt.Sprintf("Product %q exists. Overwrite it?", p.Name), save)
		return nil
	}
	return save()
}

func (m *Model) deleteProduct() tea.Cmd {
	f := m.products
	name := f.target()
	if name == "" {
		return nil
	}
	m.ask(fmt.Sprintf("Delete product %q?", name), func() tea.Cmd {
		if err := m.state.DeleteProduct(name); err != nil {
			m.showError(err)
			return nil
		}
		if f.editing == name {
			f.reset()
		}
		m.status = fmt.Sprintf("Deleted product %q.", name)
		return nil
	})
	return nil
}

func (m *Model) importProducts() tea.Cmd {
	return m.askText("Import products from JSON file", "", func(path string) tea.Cmd {
		if path == "" {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			m.showError(err)
			return nil
		}
		defer func() { _ = file.Close() }()

		n, err := m.state.ImportProducts(file)
		if err != nil {
			m.showError(err)
			return nil
		}
		m.status = fmt.Sprintf("Imported %d products.", n)
		return nil
	})
}

// Lines

func (m *Model) linesKey(msg tea.KeyMsg) tea.Cmd {
	f := m.lines
	cmd, ok := m.formKey(f, msg, m.loadLine, m.saveLine, m.deleteLine, m.importLine)
	if ok {
		return cmd
	}
	return f.update(msg)
}

func (m *Model) loadLine(name string) {
	l, ok := m.state.Line(name)
	if !ok {
		return
	}
	m.lines.fill(name, l.Host, l.Port, l.User, l.Password, l.Database)
}

func (m *Model) saveLine() tea.Cmd {
	f := m.lines
	name := f.value(lineName)
	line := registry.Line{
		Host:     f.value(lineHost),
		Port:     f.value(linePort),
		User:     f.value(lineUser),
		Password: f.inputs[linePassword].Value(),
		Database: f.value(lineDatabase),
	}
	save := func() tea.Cmd {
		if err := m.state.SaveLine(f.editing, name, line); err != nil {
			m.showError(err)
			return nil
		}
		f.editing = name
		m.status = fmt.Sprintf("Saved line %q.", name)
		return nil
	}

	if _, exists := m.state.Line(name); exists && name != f.editing {
		m.ask(fmt.Sprintf("Line %q exists. Overwrite it?", name), save)
		return nil
	}
	return save()
}

func (m *Model) deleteLine() tea.Cmd {
	f := m.lines
	name := f.target()
	if name == "" {
		return nil
	}
	m.ask(fmt.Sprintf("Delete line %q?", name), func() tea.Cmd {
		if err := m.state.DeleteLine(name); err != nil {
			m.showError(err)
			return nil
		}
		if f.editing == name {
			f.reset()
		}
		m.status = fmt.Sprintf("Deleted line %q.", name)
		return nil
	})
	return nil
}

// importLine reads an appsettings file into a line named after the form's
// name field.
func (m *Model) importLine() tea.Cmd {
	name := m.lines.value(lineName)
	if name == "" {
		m.showAlert("Enter a name for the imported line first.")
		return nil
	}
	return m.askText(fmt.Sprintf("Import line %q from appsettings file", name), "", func(path string) tea.Cmd {
		if path == "" {
			return nil
		}
		err := m.importLineFile(name, path, false)
		if errors.Is(err, appstate.ErrExists) {
			m.ask(fmt.Sprintf("Line %q exists. Overwrite it?", name), func() tea.Cmd {
				if err := m.importLineFile(name, path, true); err != nil {
					m.showError(err)
				}
				return nil
			})
			return nil
		}
		if err != nil {
			m.showError(err)
		}
		return nil
	})
}

func (m *Model) importLineFile(name, path string, overwrite bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := m.state.ImportLine(name, file, overwrite); err != nil {
		return err
	}
	m.loadLine(name)
	m.status = fmt.Sprintf("Imported line %q.", name)
	return nil
}
