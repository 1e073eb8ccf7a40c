// Package export writes a rendered result grid to CSV.
//
// The header and the code, grcode and sscc columns are always quoted.
// Every other field is written verbatim, commas included.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"github.com/leapstack-labs/codecheck/internal/result"
)

const lineEnd = "\r\n"

// ErrNothingToExport is returned for a grid without columns or rows.
var ErrNothingToExport = errors.New("nothing to export")

// IOError reports a destination that could not be written.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

var folder = cases.Fold()

// quotedColumns are matched after case folding with underscores removed.
var quotedColumns = map[string]struct{}{
	"code":   {},
	"grcode": {},
	"sscc":   {},
}

// IsQuotedColumn reports whether values of the named column are always quoted.
func IsQuotedColumn(name string) bool {
	key := strings.ReplaceAll(folder.String(name), "_", "")
	_, ok := quotedColumns[key]
	return ok
}

// Write serializes grid to w.
func Write(w io.Writer, grid result.Grid) error {
	if len(grid.Columns) == 0 || grid.Len() == 0 {
		return ErrNothingToExport
	}

	quoted := make([]bool, len(grid.Columns))
	header := make([]string, len(grid.Columns))
	for i, col := range grid.Columns {
		quoted[i] = IsQuotedColumn(col)
		header[i] = quote(col)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(header, ",") + lineEnd); err != nil {
		return err
	}

	fields := make([]string, len(grid.Columns))
	for _, row := range grid.Rows {
		for i := range grid.Columns {
			text := ""
			if i < len(row) {
				text = fieldText(row[i])
			}
			if quoted[i] {
				text = quote(text)
			}
			fields[i] = text
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + lineEnd); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes grid to path, replacing any existing file.
// Nothing is created when the grid is empty.
func WriteFile(path string, grid result.Grid) (err error) {
	if len(grid.Columns) == 0 || grid.Len() == 0 {
		return ErrNothingToExport
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &IOError{Path: path, Err: cerr}
		}
	}()

	if err := Write(f, grid); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// fieldText maps NULL and the "None" placeholder to an empty field.
func fieldText(c result.Cell) string {
	if c.Null() || c.Text == result.NullText {
		return ""
	}
	return c.Text
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
