package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/appstate"
	"github.com/leapstack-labs/codecheck/internal/cli/output"
	"github.com/leapstack-labs/codecheck/internal/registry"
)

// NewLinesCommand creates the lines command group.
func NewLinesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lines",
		Aliases: []string{"line"},
		Short:   "Manage line connection profiles",
		Long: `Manage the named PostgreSQL connection profiles ("lines") stored in the
lines file (default: profiles.json).`,
	}

	cmd.AddCommand(newLinesListCommand())
	cmd.AddCommand(newLinesShowCommand())
	cmd.AddCommand(newLinesAddCommand())
	cmd.AddCommand(newLinesRmCommand())
	cmd.AddCommand(newLinesImportCommand())
	cmd.AddCommand(newLinesPingCommand())
	return cmd
}

// lineInfo is the JSON shape of a line. The password is never printed.
type lineInfo struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Database string `json:"database"`
}

func newLineInfo(name string, l registry.Line) lineInfo {
	return lineInfo{Name: name, Host: l.Host, Port: l.Port, User: l.User, Database: l.Database}
}

func newLinesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			r := cc.Renderer
			names := cc.State.LineNames()

			if r.EffectiveMode() == output.ModeJSON {
				infos := make([]lineInfo, 0, len(names))
				for _, name := range names {
					l, _ := cc.State.Line(name)
					infos = append(infos, newLineInfo(name, l))
				}
				return r.JSON(infos)
			}

			if len(names) == 0 {
				r.Println("No lines. Add one with 'codecheck lines add <name>'.")
				return nil
			}
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				l, _ := cc.State.Line(name)
				rows = append(rows, []string{name, l.Host, l.Port, l.Database, l.User})
			}
			r.Table([]string{"Line", "Host", "Port", "Database", "User"}, rows)
			return nil
		},
	}
}

func newLinesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <name>",
		Short:             "Show line details",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeLineArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			l, ok := cc.State.Line(args[0])
			if !ok {
				return fmt.Errorf("line %q: %w", args[0], registry.ErrNotFound)
			}
			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(newLineInfo(args[0], l))
			}
			r.Header(2, args[0])
			r.KeyValue("Host", l.Host)
			r.KeyValue("Port", l.Port)
			r.KeyValue("Database", l.Database)
			r.KeyValue("User", l.User)
			return nil
		},
	}
}

// LineAddOptions holds options for lines add.
type LineAddOptions struct {
	registry.Line
	Rename string
	Yes    bool
}

func newLinesAddCommand() *cobra.Command {
	opts := &LineAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a line",
		Long: `Add or update a line. Fields not given as flags are prompted for;
the password prompt does not echo.`,
		Example: `  codecheck lines add "Line 1" --host 10.0.0.5 --port 5432 --user op --dbname mes
  codecheck lines add "Line A" --rename "Line 1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinesAdd(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "Database host")
	cmd.Flags().StringVar(&opts.Port, "port", "", "Database port")
	cmd.Flags().StringVar(&opts.User, "user", "", "Database user")
	cmd.Flags().StringVar(&opts.Password, "password", "", "Database password (prompted when omitted)")
	cmd.Flags().StringVar(&opts.Database, "dbname", "", "Database name")
	cmd.Flags().StringVar(&opts.Rename, "rename", "", "Existing line to rename to <name>")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Overwrite an existing line without asking")
	_ = cmd.RegisterFlagCompletionFunc("rename", completeLines)

	return cmd
}

func runLinesAdd(cmd *cobra.Command, name string, opts *LineAddOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	line := opts.Line
	// Start from the stored values when editing.
	base := opts.Rename
	if base == "" {
		base = name
	}
	existing, exists := cc.State.Line(base)
	if opts.Rename != "" && !exists {
		return fmt.Errorf("line %q: %w", opts.Rename, registry.ErrNotFound)
	}
	if exists {
		line = mergeLine(existing, line)
	}

	if line.Validate() != nil {
		p, err := newPrompter(cmd)
		if err != nil {
			return err
		}
		line, err = promptLine(p, line)
		_ = p.Close()
		if err != nil {
			return err
		}
	}

	if opts.Rename == "" && exists {
		if err := confirm(cmd, opts.Yes, fmt.Sprintf("Line %q exists. Overwrite?", name)); err != nil {
			return err
		}
	}

	if err := cc.State.SaveLine(opts.Rename, name, line); err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("Saved line %q", name))
	return nil
}

// mergeLine fills the empty fields of l from base.
func mergeLine(base, l registry.Line) registry.Line {
	if l.Host == "" {
		l.Host = base.Host
	}
	if l.Port == "" {
		l.Port = base.Port
	}
	if l.User == "" {
		l.User = base.User
	}
	if l.Password == "" {
		l.Password = base.Password
	}
	if l.Database == "" {
		l.Database = base.Database
	}
	return l
}

// promptLine asks for every empty field of l.
func promptLine(p Prompter, l registry.Line) (registry.Line, error) {
	var err error
	ask := func(label string, v *string, def string) {
		if err != nil || *v != "" {
			return
		}
		*v, err = p.Ask(label, def)
	}
	ask("Host", &l.Host, "")
	ask("Port", &l.Port, "5432")
	ask("User", &l.User, "")
	if err == nil && l.Password == "" {
		l.Password, err = p.AskSecret("Password")
	}
	ask("Database", &l.Database, "")
	if err != nil {
		return l, err
	}
	return l, l.Validate()
}

func newLinesRmCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:               "rm <name>",
		Aliases:           []string{"delete", "remove"},
		Short:             "Delete a line",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeLineArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if _, ok := cc.State.Line(args[0]); !ok {
				return fmt.Errorf("line %q: %w", args[0], registry.ErrNotFound)
			}
			if err := confirm(cmd, yes, fmt.Sprintf("Delete line %q?", args[0])); err != nil {
				return err
			}
			if err := cc.State.DeleteLine(args[0]); err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Deleted line %q", args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

func newLinesImportCommand() *cobra.Command {
	var (
		name string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "import <appsettings.json>",
		Short: "Import a line from an appsettings file",
		Long: `Create a line from the DataBase.PostgreSql section of an appsettings
JSON file (Server, Port, User, Password, DataBase).`,
		Example: `  codecheck lines import /mnt/line1/appsettings.json --name "Line 1"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			if name == "" {
				p, err := newPrompter(cmd)
				if err != nil {
					return err
				}
				name, err = p.Ask("Line name", "")
				_ = p.Close()
				if err != nil {
					return err
				}
			}

			importFile := func(overwrite bool) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				_, err = cc.State.ImportLine(name, f, overwrite)
				return err
			}

			err = importFile(yes)
			if errors.Is(err, appstate.ErrExists) {
				if err := confirm(cmd, false, fmt.Sprintf("Line %q exists. Overwrite?", name)); err != nil {
					return err
				}
				err = importFile(true)
			}
			if err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Imported line %q", name))
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Name of the new line (prompted when omitted)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Overwrite an existing line without asking")
	return cmd
}

func newLinesPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "ping <name>",
		Short:             "Check that a line's database is reachable",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeLineArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			l, ok := cc.State.Line(args[0])
			if !ok {
				return fmt.Errorf("line %q: %w", args[0], registry.ErrNotFound)
			}
			db, err := cc.Opener().Open(cmd.Context(), l)
			if err != nil {
				return fmt.Errorf("line %q is not reachable: %w", args[0], err)
			}
			_ = db.Close()
			cc.Renderer.Success(fmt.Sprintf("Line %q is reachable", args[0]))
			return nil
		},
	}
}

func completeLineArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeLines(cmd, args, toComplete)
}
