package tui

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/codecheck/internal/appstate"
	"github.com/leapstack-labs/codecheck/internal/dbconn"
	"github.com/leapstack-labs/codecheck/internal/notifier"
	"github.com/leapstack-labs/codecheck/internal/query"
	"github.com/leapstack-labs/codecheck/internal/registry"
	"github.com/leapstack-labs/codecheck/internal/result"
	"github.com/leapstack-labs/codecheck/internal/testutil"
)

var testLine = registry.Line{Host: "10.0.0.5", Port: "5432", User: "op", Password: "secret", Database: "mes"}

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
}

func newState(t *testing.T) *appstate.State {
	t.Helper()
	dir := t.TempDir()
	st, err := appstate.Open(filepath.Join(dir, "profiles.json"), filepath.Join(dir, "products.json"), testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, st.SaveLine("", "Line 1", testLine))
	require.NoError(t, st.SaveLine("", "Line 2", testLine))
	require.NoError(t, st.SaveProduct("", registry.Product{Name: "Milk 1L", GTIN: "04600000000000"}))
	return st
}

func newModel(t *testing.T, st *appstate.State, opener dbconn.Opener) *Model {
	t.Helper()
	if opener == nil {
		opener = dbconn.OpenerFunc(func(context.Context, registry.Line) (*sql.DB, error) {
			return nil, errors.New("connection refused")
		})
	}
	m := New(context.Background(), Options{
		State:     st,
		Executor:  query.NewExecutor(opener, time.Minute, nil),
		ExportDir: t.TempDir(),
		Version:   "1.0.0",
		Logger:    testutil.NewTestLogger(t),
		Now:       fixedNow,
	})
	t.Cleanup(m.Close)
	return m
}

func keyType(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m *Model, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = m.Update(msg)
	}
	return cmd
}

// collect runs cmd and every command batched under it.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, collect(c)...)
	}
	return out
}

// finishQuery delivers the outcome of the submitted job to the model.
func finishQuery(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for _, msg := range collect(cmd) {
		if done, ok := msg.(queryDoneMsg); ok {
			press(m, done)
			return
		}
	}
	t.Fatal("no query outcome was produced")
}

func selectAll(st *appstate.State) {
	st.SelectLine("Line 1")
	st.SelectProduct("Milk 1L")
}

func TestModel_Check_Populated(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	mock.ExpectQuery("SELECT * FROM codes WHERE code LIKE $1 AND dtime_ins::date >= $2").
		WithArgs("%04600000000000%", "2024-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).
			AddRow(int64(1), "0104600000000000215abc").
			AddRow(int64(2), "0104600000000000215abd"))
	mock.ExpectClose()

	st := newState(t)
	selectAll(st)
	m := newModel(t, st, dbconn.OpenerFunc(func(context.Context, registry.Line) (*sql.DB, error) {
		return db, nil
	}))

	cmd := press(m, keyType(tea.KeyCtrlR))
	assert.Equal(t, modalRunning, m.modal)
	assert.Contains(t, m.View(), "Querying Line 1")

	finishQuery(t, m, cmd)

	assert.Equal(t, modalNone, m.modal)
	view := m.result.View()
	assert.Equal(t, result.Populated, view.State)
	assert.Len(t, m.check.results.Rows(), 2)
	out := m.View()
	assert.Contains(t, out, "Rows found: 2")
	assert.Contains(t, out, result.StatusOK)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModel_Check_Failure(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	finishQuery(t, m, press(m, keyType(tea.KeyCtrlR)))

	assert.Equal(t, modalAlert, m.modal)
	assert.Contains(t, m.View(), "connection refused")

	press(m, keyType(tea.KeyEnter))
	assert.Equal(t, modalNone, m.modal)
	assert.Equal(t, result.Error, m.result.View().State)
	assert.Contains(t, m.View(), result.StatusError)
	assert.NotContains(t, m.View(), "Rows found")
}

func TestModel_Check_Validation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Model, st *appstate.State)
		want  string
	}{
		{
			name:  "no line",
			setup: func(_ *Model, st *appstate.State) { st.SelectProduct("Milk 1L") },
			want:  "select a line",
		},
		{
			name:  "no product",
			setup: func(_ *Model, st *appstate.State) { st.SelectLine("Line 1") },
			want:  "select a product",
		},
		{
			name: "bad date",
			setup: func(m *Model, st *appstate.State) {
				selectAll(st)
				m.check.to.SetValue("31.01.2024")
			},
			want: "invalid date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newState(t)
			m := newModel(t, st, nil)
			tt.setup(m, st)
			m.syncSelectors()

			cmd := press(m, keyType(tea.KeyCtrlR))

			assert.Nil(t, cmd)
			assert.Equal(t, modalAlert, m.modal)
			assert.Contains(t, m.alert, tt.want)
		})
	}
}

func TestModel_StaleOutcomeDiscarded(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyCtrlR))
	id := m.running

	press(m, queryDoneMsg{id: id + 100, out: query.Success{Columns: []string{"code"}, Rows: [][]any{{"x"}}}})
	assert.Equal(t, modalRunning, m.modal)
	assert.Equal(t, result.Hidden, m.result.View().State)

	press(m, queryDoneMsg{id: id, out: query.Empty{}})
	assert.Equal(t, modalNone, m.modal)
	assert.Equal(t, result.Empty, m.result.View().State)
	assert.Contains(t, m.View(), "Rows found: 0")
	assert.Contains(t, m.View(), result.StatusNoRecords)
}

func TestModel_KeysIgnoredWhileRunning(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyCtrlR))
	press(m, keyType(tea.KeyF2), keyType(tea.KeyEsc), keyType(tea.KeyRight))

	assert.Equal(t, modalRunning, m.modal)
	assert.Equal(t, tabCheck, m.tab)
	line, _ := st.Selected()
	assert.Equal(t, "Line 1", line)
}

func TestModel_SelectionChangeHidesResult(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyCtrlR))
	press(m, queryDoneMsg{id: m.running, out: query.Success{Columns: []string{"code"}, Rows: [][]any{{"x"}}}})
	require.Equal(t, result.Populated, m.result.View().State)

	// Focus starts on the line selector.
	press(m, keyType(tea.KeyRight))

	line, _ := st.Selected()
	assert.Equal(t, "Line 2", line)
	assert.Equal(t, result.Hidden, m.result.View().State)
	assert.Empty(t, m.check.results.Rows())
	assert.NotContains(t, m.View(), result.StatusOK)
}

func TestModel_ExternalChangesRefreshSelectors(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyCtrlR))
	press(m, queryDoneMsg{id: m.running, out: query.Empty{}})
	require.Equal(t, result.Empty, m.result.View().State)

	require.NoError(t, st.SaveProduct("", registry.Product{Name: "Apple juice", GTIN: "04600000000001"}))
	press(m, eventMsg{event: notifier.ProductsChanged})
	assert.Equal(t, []string{"Apple juice", "Milk 1L"}, m.check.products)
	assert.Len(t, m.products.list.Rows(), 2)
	assert.Equal(t, "Milk 1L", m.check.productName())
	assert.Equal(t, result.Empty, m.result.View().State)

	require.NoError(t, st.DeleteProduct("Milk 1L"))
	press(m, eventMsg{event: notifier.ProductsChanged}, eventMsg{event: notifier.SelectionChanged})
	assert.Equal(t, "", m.check.productName())
	assert.Equal(t, result.Hidden, m.result.View().State)
}

func TestModel_EditedSelectionHidesResult(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(st *appstate.State) error
		event  notifier.Event
		hidden bool
	}{
		{
			name: "gtin of selected product",
			edit: func(st *appstate.State) error {
				return st.SaveProduct("Milk 1L", registry.Product{Name: "Milk 1L", GTIN: "09999999999999"})
			},
			event:  notifier.ProductsChanged,
			hidden: true,
		},
		{
			name: "host of selected line",
			edit: func(st *appstate.State) error {
				l := testLine
				l.Host = "10.9.9.9"
				return st.SaveLine("Line 1", "Line 1", l)
			},
			event:  notifier.LinesChanged,
			hidden: true,
		},
		{
			name: "database of selected line",
			edit: func(st *appstate.State) error {
				l := testLine
				l.Database = "mes_archive"
				return st.SaveLine("Line 1", "Line 1", l)
			},
			event:  notifier.LinesChanged,
			hidden: true,
		},
		{
			name: "other line",
			edit: func(st *appstate.State) error {
				l := testLine
				l.Host = "10.9.9.9"
				return st.SaveLine("Line 2", "Line 2", l)
			},
			event: notifier.LinesChanged,
		},
		{
			name: "same values saved again",
			edit: func(st *appstate.State) error {
				return st.SaveProduct("Milk 1L", registry.Product{Name: "Milk 1L", GTIN: "04600000000000"})
			},
			event: notifier.ProductsChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newState(t)
			selectAll(st)
			m := newModel(t, st, nil)

			press(m, keyType(tea.KeyCtrlR))
			press(m, queryDoneMsg{id: m.running, out: query.Success{Columns: []string{"code"}, Rows: [][]any{{"x"}}}})
			require.Equal(t, result.Populated, m.result.View().State)

			require.NoError(t, tt.edit(st))
			press(m, eventMsg{event: tt.event})

			if tt.hidden {
				assert.Equal(t, result.Hidden, m.result.View().State)
				assert.Empty(t, m.check.results.Rows())
				press(m, keyType(tea.KeyCtrlE))
				assert.Equal(t, "Nothing to export.", m.status)
				return
			}
			assert.Equal(t, result.Populated, m.result.View().State)
		})
	}
}

func TestModel_EditWhileRunningDiscardsOutcome(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyCtrlR))
	id := m.running

	require.NoError(t, st.SaveProduct("Milk 1L", registry.Product{Name: "Milk 1L", GTIN: "09999999999999"}))
	press(m, eventMsg{event: notifier.ProductsChanged})
	press(m, queryDoneMsg{id: id, out: query.Success{Columns: []string{"code"}, Rows: [][]any{{"x"}}}})

	assert.Equal(t, modalNone, m.modal)
	assert.Equal(t, result.Hidden, m.result.View().State)
}

func TestModel_Export(t *testing.T) {
	st := newState(t)
	selectAll(st)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyCtrlR))
	press(m, queryDoneMsg{id: m.running, out: query.Success{
		Columns: []string{"id", "code"},
		Rows:    [][]any{{int64(1), "0104600000000000215a,b"}},
	}})

	press(m, keyType(tea.KeyCtrlE))
	require.Equal(t, modalPrompt, m.modal)
	path := m.prompt.Value()
	assert.Equal(t, filepath.Join(m.exportDir, "codes_20240101_093000.csv"), path)

	press(m, keyType(tea.KeyEnter))
	assert.Equal(t, modalNone, m.modal)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"id\",\"code\"\r\n1,\"0104600000000000215a,b\"\r\n", string(data))
	assert.Contains(t, m.status, "Saved 1 rows")
}

func TestModel_Export_NothingToExport(t *testing.T) {
	m := newModel(t, newState(t), nil)
	press(m, keyType(tea.KeyCtrlE))
	assert.Equal(t, modalNone, m.modal)
	assert.Equal(t, "Nothing to export.", m.status)
}

func TestModel_Products_AddAndRename(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyF2), keyType(tea.KeyCtrlN), runes("Kefir 1L"), keyType(tea.KeyTab), runes("04600000000002"), keyType(tea.KeyCtrlS))

	gtin, ok := st.Product("Kefir 1L")
	require.True(t, ok)
	assert.Equal(t, "04600000000002", gtin)
	assert.Equal(t, "Kefir 1L", m.products.editing)

	// Rename the entry being edited.
	press(m, keyType(tea.KeyShiftTab))
	m.products.inputs[0].SetValue("Kefir 1 L")
	press(m, keyType(tea.KeyEnter))

	_, ok = st.Product("Kefir 1L")
	assert.False(t, ok)
	_, ok = st.Product("Kefir 1 L")
	assert.True(t, ok)
}

func TestModel_Products_OverwriteAsks(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyF2), keyType(tea.KeyCtrlN), runes("Milk 1L"), keyType(tea.KeyTab), runes("999"), keyType(tea.KeyCtrlS))
	require.Equal(t, modalConfirm, m.modal)

	press(m, runes("n"))
	gtin, _ := st.Product("Milk 1L")
	assert.Equal(t, "04600000000000", gtin)

	press(m, keyType(tea.KeyCtrlS), runes("y"))
	gtin, _ = st.Product("Milk 1L")
	assert.Equal(t, "999", gtin)
}

func TestModel_Products_InvalidShowsAlert(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyF2), keyType(tea.KeyCtrlN), runes("No GTIN"), keyType(tea.KeyCtrlS))

	assert.Equal(t, modalAlert, m.modal)
	_, ok := st.Product("No GTIN")
	assert.False(t, ok)
}

func TestModel_Lines_DeleteConfirm(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyF3), keyType(tea.KeyCtrlX))
	require.Equal(t, modalConfirm, m.modal)
	assert.Contains(t, m.View(), `Delete line "Line 1"?`)

	press(m, keyType(tea.KeyEsc))
	assert.Equal(t, modalNone, m.modal)
	_, ok := st.Line("Line 1")
	assert.True(t, ok)

	press(m, keyType(tea.KeyCtrlX), runes("y"))
	_, ok = st.Line("Line 1")
	assert.False(t, ok)
	assert.Equal(t, []string{"Line 2"}, st.LineNames())
}

func TestModel_Lines_EditKeepsPasswordMasked(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyF3), keyType(tea.KeyEnter))
	assert.Equal(t, "Line 1", m.lines.editing)
	assert.Equal(t, "secret", m.lines.inputs[linePassword].Value())
	assert.NotContains(t, m.View(), "secret")

	m.lines.inputs[lineHost].SetValue("10.0.0.9")
	press(m, keyType(tea.KeyCtrlS))

	l, _ := st.Line("Line 1")
	assert.Equal(t, "10.0.0.9", l.Host)
	assert.Equal(t, "secret", l.Password)
}

func TestModel_Lines_ImportAppSettings(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)
	path := testutil.WriteFile(t, t.TempDir(), "appsettings.json", `{
  "DataBase": {"PostgreSql": {"Server": "10.1.1.1", "Port": 5433, "User": "mes", "Password": "pw", "DataBase": "codes"}}
}`)

	press(m, keyType(tea.KeyF3), keyType(tea.KeyCtrlO))
	assert.Equal(t, modalAlert, m.modal, "a name is required first")
	press(m, keyType(tea.KeyEnter))

	press(m, keyType(tea.KeyCtrlN), runes("Line 3"), keyType(tea.KeyCtrlO))
	require.Equal(t, modalPrompt, m.modal)
	m.prompt.SetValue(path)
	press(m, keyType(tea.KeyEnter))

	l, ok := st.Line("Line 3")
	require.True(t, ok)
	assert.Equal(t, registry.Line{Host: "10.1.1.1", Port: "5433", User: "mes", Password: "pw", Database: "codes"}, l)
	assert.Equal(t, "Line 3", m.lines.editing)
}

func TestModel_Info(t *testing.T) {
	st := newState(t)
	m := newModel(t, st, nil)

	press(m, keyType(tea.KeyF4))
	assert.Contains(t, m.View(), "No line selected.")

	st.SelectLine("Line 1")
	out := m.View()
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "1.0.0")
	assert.NotContains(t, out, "secret")
}

func TestModel_Quit(t *testing.T) {
	m := newModel(t, newState(t), nil)
	cmd := press(m, keyType(tea.KeyCtrlQ))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_TabBar(t *testing.T) {
	m := newModel(t, newState(t), nil)
	out := m.View()
	for _, name := range tabNames {
		assert.True(t, strings.Contains(out, name), "tab %s", name)
	}
}

func TestStep(t *testing.T) {
	tests := []struct {
		idx, delta, n, want int
	}{
		{idx: -1, delta: 1, n: 3, want: 0},
		{idx: -1, delta: -1, n: 3, want: 2},
		{idx: 2, delta: 1, n: 3, want: 0},
		{idx: 0, delta: -1, n: 3, want: 2},
		{idx: 0, delta: 1, n: 0, want: -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, step(tt.idx, tt.delta, tt.n), "step(%d, %d, %d)", tt.idx, tt.delta, tt.n)
	}
}
