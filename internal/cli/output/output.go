// Package output renders command results as styled text, markdown or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Styles used in text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
}

func newStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: lr.NewStyle().Bold(true).Underline(true),
		Header2: lr.NewStyle().Bold(true),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lr.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		Warning: lr.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		Error:   lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Info:    lr.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Renderer writes command output in the configured mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   Mode
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, IsTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	lr := lipgloss.NewRenderer(out)
	if isTTY {
		lr.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		styles: newStyles(lr),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves ModeAuto: text on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the text-mode styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostics writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Println writes a line to standard output.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Printf writes formatted text to standard output.
func (r *Renderer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a level 1 or 2 heading.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, text))
		return
	}
	style := r.styles.Header2
	if level <= 1 {
		style = r.styles.Header1
	}
	r.Println(style.Render(text))
}

// Success writes a confirmation line.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(msg))
}

// Warning writes a warning to the diagnostics stream.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("Warning: ")+msg)
}

// Error writes an error line to the diagnostics stream.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("Error: ")+msg)
}

// KeyValue writes a "Key: value" line.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatKeyValue(key, value))
		return
	}
	r.Printf("%s %s\n", r.styles.Muted.Render(key+":"), value)
}

// Table writes rows under headers, as a box table in text mode and a
// markdown table otherwise.
func (r *Renderer) Table(headers []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		r.Println("")
		return
	}
	t.Render()
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatHeader returns a markdown heading.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a markdown bullet with a bold key.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s**: %s", key, value)
}
