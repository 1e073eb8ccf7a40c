// Package result turns query outcomes into what the operator sees: a hidden
// view, an error banner, a zero-count banner or a populated grid.
package result

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/codecheck/internal/query"
)

// NullText is how a NULL cell reads in the interactive grid.
// The CSV export writes the same cell as an empty field.
const NullText = "None"

// State is the visible state of the result area.
type State int

const (
	Hidden State = iota
	Error
	Empty
	Populated
)

func (s State) String() string {
	switch s {
	case Error:
		return "error"
	case Empty:
		return "empty"
	case Populated:
		return "populated"
	default:
		return "hidden"
	}
}

// Status banner texts.
const (
	StatusOK        = "OK"
	StatusNoRecords = "NO RECORDS"
	StatusError     = "ERROR"
)

// Cell is one grid value with its display text.
type Cell struct {
	Value any
	Text  string
}

// Null reports whether the underlying value is NULL.
func (c Cell) Null() bool {
	return c.Value == nil
}

// Grid is a rendered result set.
type Grid struct {
	Columns []string
	Rows    [][]Cell
}

// NewGrid builds a grid from raw column names and rows.
func NewGrid(columns []string, rows [][]any) Grid {
	g := Grid{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]Cell, len(rows)),
	}
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = Cell{Value: v, Text: DisplayText(v)}
		}
		g.Rows[i] = cells
	}
	return g
}

// Len returns the number of data rows.
func (g Grid) Len() int {
	return len(g.Rows)
}

// ViewState is derived entirely from the latest accepted outcome.
type ViewState struct {
	State   State
	Message string
	Count   int
	Grid    Grid
	// Alert asks the surface for a blocking dialog in addition to the banner.
	Alert bool
}

// ShowTable reports whether the grid is visible.
func (v ViewState) ShowTable() bool { return v.State == Populated }

// ShowExport reports whether export is offered.
func (v ViewState) ShowExport() bool { return v.State == Populated }

// ShowCount reports whether the row count label is visible.
func (v ViewState) ShowCount() bool { return v.State == Empty || v.State == Populated }

// CountLabel is the row count text.
func (v ViewState) CountLabel() string {
	return fmt.Sprintf("Rows found: %d", v.Count)
}

// Status is the banner text; empty while hidden.
func (v ViewState) Status() string {
	switch v.State {
	case Error:
		return StatusError
	case Empty:
		return StatusNoRecords
	case Populated:
		return StatusOK
	default:
		return ""
	}
}

// Render maps an outcome to its view state.
func Render(out query.Outcome) ViewState {
	switch o := out.(type) {
	case query.Failure:
		return ViewState{State: Error, Message: o.Message, Alert: true}
	case query.Success:
		if len(o.Rows) == 0 {
			return ViewState{State: Empty}
		}
		grid := NewGrid(o.Columns, o.Rows)
		return ViewState{State: Populated, Count: grid.Len(), Grid: grid}
	case query.Empty:
		return ViewState{State: Empty}
	default:
		return ViewState{State: Hidden}
	}
}

// DisplayText is the canonical display string of a database value.
func DisplayText(v any) string {
	switch x := v.(type) {
	case nil:
		return NullText
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		if x.Location() == time.UTC {
			// date columns arrive as midnight UTC.
			if h, m, sec := x.Clock(); h == 0 && m == 0 && sec == 0 && x.Nanosecond() == 0 {
				return x.Format("2006-01-02")
			}
			return x.Format("2006-01-02 15:04:05.999999")
		}
		return x.Format("2006-01-02 15:04:05.999999-07:00")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
