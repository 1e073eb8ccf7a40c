package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/cli/output"
	"github.com/leapstack-labs/codecheck/internal/export"
	"github.com/leapstack-labs/codecheck/internal/query"
	"github.com/leapstack-labs/codecheck/internal/result"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Line    string
	Product string
	From    string
	To      string
	Field   string
	CSV     string
	DryRun  bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Look up codes of a product on a line",
		Long: `Query the codes table of a line for codes containing the product's GTIN,
inserted (or produced) on or after --from and, when given, on or before --to.

Both dates are inclusive and use the YYYY-MM-DD format.`,
		Example: `  # Codes of a product since the start of the year
  codecheck check --line "Line 1" --product "Milk 1L" --from 2024-01-01

  # A closed range by production date, exported to CSV
  codecheck check -l "Line 1" -p "Milk 1L" --from 2024-01-01 --to 2024-01-31 \
    --field produced --csv codes.csv

  # Show the predicate without connecting
  codecheck check -l "Line 1" -p "Milk 1L" --from 2024-01-01 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Line, "line", "l", "", "Line to query")
	cmd.Flags().StringVarP(&opts.Product, "product", "p", "", "Product whose GTIN is searched")
	cmd.Flags().StringVar(&opts.From, "from", "", "First day, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Last day, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Field, "field", "inserted", "Date column to filter on (inserted|produced)")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "Export the result to this CSV file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the query without running it")

	_ = cmd.RegisterFlagCompletionFunc("line", completeLines)
	_ = cmd.RegisterFlagCompletionFunc("product", completeProducts)
	_ = cmd.RegisterFlagCompletionFunc("field", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"inserted", "produced"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	req, err := buildRequest(cc, opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		return printDryRun(cc.Renderer, req)
	}

	out := cc.Executor().Run(cmd.Context(), req)

	rr := result.NewRenderer()
	rr.Begin(1)
	rr.Accept(1, out)
	view := rr.View()

	if err := printView(cc.Renderer, req, view); err != nil {
		return err
	}

	if view.State == result.Error {
		return fmt.Errorf("query failed: %s", view.Message)
	}

	if opts.CSV != "" {
		if !view.ShowExport() {
			cc.Renderer.Warning("no rows to export")
			return nil
		}
		if err := export.WriteFile(opts.CSV, view.Grid); err != nil {
			return err
		}
		cc.Logger.Info("exported", slog.String("path", opts.CSV), slog.Int("rows", view.Count))
		if cc.Renderer.EffectiveMode() != output.ModeJSON {
			cc.Renderer.Success(fmt.Sprintf("Exported %d rows to %s", view.Count, opts.CSV))
		}
	}
	return nil
}

func buildRequest(cc *CommandContext, opts *CheckOptions) (query.Request, error) {
	field, err := query.ParseDateField(opts.Field)
	if err != nil {
		return query.Request{}, err
	}

	sel := query.Selection{Line: opts.Line, Product: opts.Product, Field: field}
	from, err := query.ParseDate(opts.From)
	if err != nil {
		return query.Request{}, err
	}
	if from != nil {
		sel.From = *from
	}
	if sel.To, err = query.ParseDate(opts.To); err != nil {
		return query.Request{}, err
	}

	lines, products := cc.State.Lookups()
	return query.Build(lines, products, sel)
}

func printDryRun(r *output.Renderer, req query.Request) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"line":      req.LineName,
			"host":      req.Line.Host,
			"port":      req.Line.Port,
			"database":  req.Line.Database,
			"product":   req.ProductName,
			"predicate": req.Predicate(),
		})
	}
	r.KeyValue("Line", fmt.Sprintf("%s (%s:%s/%s)", req.LineName, req.Line.Host, req.Line.Port, req.Line.Database))
	r.KeyValue("Product", req.ProductName)
	r.KeyValue("Where", req.Predicate())
	return nil
}

// checkOutput is the JSON shape of a check result.
type checkOutput struct {
	Line    string           `json:"line"`
	Product string           `json:"product"`
	Status  string           `json:"status"`
	Count   int              `json:"count"`
	Error   string           `json:"error,omitempty"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
}

func printView(r *output.Renderer, req query.Request, view result.ViewState) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := checkOutput{
			Line:    req.LineName,
			Product: req.ProductName,
			Status:  view.Status(),
			Count:   view.Count,
			Error:   view.Message,
		}
		if view.ShowTable() {
			out.Columns = view.Grid.Columns
			out.Rows = make([]map[string]any, 0, view.Grid.Len())
			for _, row := range view.Grid.Rows {
				m := make(map[string]any, len(row))
				for i, cell := range row {
					m[view.Grid.Columns[i]] = jsonValue(cell)
				}
				out.Rows = append(out.Rows, m)
			}
		}
		return r.JSON(out)
	}

	if view.ShowTable() {
		rows := make([][]string, 0, view.Grid.Len())
		for _, row := range view.Grid.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = cell.Text
			}
			rows = append(rows, cells)
		}
		r.Table(view.Grid.Columns, rows)
	}
	if view.ShowCount() {
		r.Println(view.CountLabel())
	}
	r.Println(statusStyle(r, view.State).Render(view.Status()))
	return nil
}

func jsonValue(c result.Cell) any {
	switch v := c.Value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case string, bool, int64, int32, float64:
		return v
	default:
		return c.Text
	}
}

// completeLines suggests line names from the registry.
func completeLines(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cc.State.LineNames(), cobra.ShellCompDirectiveNoFileComp
}

// completeProducts suggests product names from the registry.
func completeProducts(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cc.State.ProductNames(), cobra.ShellCompDirectiveNoFileComp
}

func statusStyle(r *output.Renderer, s result.State) lipgloss.Style {
	styles := r.Styles()
	switch s {
	case result.Populated:
		return styles.Success
	case result.Empty:
		return styles.Warning
	case result.Error:
		return styles.Error
	default:
		return styles.Muted
	}
}
