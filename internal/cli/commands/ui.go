package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/tui"
)

// UIOptions holds options for the ui command.
type UIOptions struct {
	Watch bool
}

// NewUICommand creates the ui command.
func NewUICommand(version string) *cobra.Command {
	opts := &UIOptions{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the interactive terminal UI",
		Long: `Start the interactive terminal UI. Running codecheck without a command
does the same.

The UI provides:
- Check: pick a line, a product and dates, run the lookup and export to CSV
- Products: add, rename, delete and import products
- Lines: add, edit, delete and import connection profiles
- Info: details of the selected line`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunUI(cmd, version, opts)
		},
	}

	AddUIFlags(cmd, opts)
	return cmd
}

// AddUIFlags registers the ui flags on cmd.
func AddUIFlags(cmd *cobra.Command, opts *UIOptions) {
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Reload the registries when their files change")
}

// RunUI opens the registries and runs the terminal UI until the operator quits.
func RunUI(cmd *cobra.Command, version string, opts *UIOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	watch := cc.Cfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if watch {
		go func() {
			if err := cc.State.Watch(ctx); err != nil {
				cc.Logger.Warn("registry watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	exportDir := cc.Cfg.ExportDir
	if exportDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			exportDir = cwd
		}
	}

	cc.Logger.Info("starting ui", slog.Bool("watch", watch), slog.String("export_dir", exportDir))
	return tui.Run(ctx, tui.Options{
		State:     cc.State,
		Executor:  cc.Executor(),
		ExportDir: exportDir,
		Version:   version,
		Logger:    cc.Logger,
	})
}
