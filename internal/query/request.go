// Package query builds and executes the codes lookup for one line.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/codecheck/internal/registry"
)

// DateLayout is the calendar date format used for bounds and flags.
const DateLayout = "2006-01-02"

// DateField selects which timestamp column the date range filters on.
type DateField int

const (
	// InsertedAt filters on the row insertion time (dtime_ins).
	InsertedAt DateField = iota
	// ProducedAt filters on the production date (production_date).
	ProducedAt
)

// Column returns the codes table column for the field.
func (f DateField) Column() string {
	if f == ProducedAt {
		return "production_date"
	}
	return "dtime_ins"
}

func (f DateField) String() string {
	if f == ProducedAt {
		return "produced"
	}
	return "inserted"
}

// ParseDateField accepts the short names and the column names.
func ParseDateField(s string) (DateField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inserted", "inserted_at", "dtime_ins":
		return InsertedAt, nil
	case "produced", "produced_at", "production_date":
		return ProducedAt, nil
	default:
		return InsertedAt, fmt.Errorf("unknown date field %q (want inserted or produced)", s)
	}
}

// ParseDate parses a YYYY-MM-DD date. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}

// ValidationError reports a selection that cannot form a request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Selection is what the operator picked on screen or on the command line.
type Selection struct {
	Line    string
	Product string
	From    time.Time
	To      *time.Time
	Field   DateField
}

// LineLookup resolves line names; *registry.Lines implements it.
type LineLookup interface {
	Get(name string) (registry.Line, bool)
}

// ProductLookup resolves product names to GTINs; *registry.Products implements it.
type ProductLookup interface {
	Get(name string) (string, bool)
}

// Request is a fully specified lookup. It owns a copy of the connection
// parameters so later registry edits cannot affect a query in flight.
type Request struct {
	LineName     string
	Line         registry.Line
	ProductName  string
	CodeFragment string
	Field        DateField
	From         time.Time
	To           *time.Time
}

// Build resolves sel against the registries.
func Build(lines LineLookup, products ProductLookup, sel Selection) (Request, error) {
	line, ok := lines.Get(sel.Line)
	if sel.Line == "" || !ok {
		return Request{}, &ValidationError{Field: "line", Message: "select a line"}
	}
	gtin, ok := products.Get(sel.Product)
	if sel.Product == "" || !ok {
		return Request{}, &ValidationError{Field: "product", Message: "select a product"}
	}
	if sel.From.IsZero() {
		return Request{}, &ValidationError{Field: "from", Message: "select a start date"}
	}

	req := Request{
		LineName:     sel.Line,
		Line:         line,
		ProductName:  sel.Product,
		CodeFragment: gtin,
		Field:        sel.Field,
		From:         sel.From,
	}
	if sel.To != nil {
		to := *sel.To
		req.To = &to
	}
	return req, nil
}

// Statement returns the parameterized SQL and its arguments. The upper date
// bound is omitted entirely when To is nil.
func (r Request) Statement() (string, []any) {
	col := r.Field.Column()

	var b strings.Builder
	b.WriteString("SELECT * FROM codes WHERE code LIKE $1 AND ")
	b.WriteString(col)
	b.WriteString("::date >= $2")
	args := []any{r.likePattern(), r.From.Format(DateLayout)}

	if r.To != nil {
		b.WriteString(" AND ")
		b.WriteString(col)
		b.WriteString("::date <= $3")
		args = append(args, r.To.Format(DateLayout))
	}
	return b.String(), args
}

// Predicate renders the WHERE clause with literal values, for logs and dry runs.
func (r Request) Predicate() string {
	col := r.Field.Column()
	p := fmt.Sprintf("code LIKE %s AND %s::date >= %s",
		quoteLiteral(r.likePattern()), col, quoteLiteral(r.From.Format(DateLayout)))
	if r.To != nil {
		p += fmt.Sprintf(" AND %s::date <= %s", col, quoteLiteral(r.To.Format(DateLayout)))
	}
	return p
}

// likePattern wraps the fragment for a containment match.
func (r Request) likePattern() string {
	return "%" + r.CodeFragment + "%"
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
