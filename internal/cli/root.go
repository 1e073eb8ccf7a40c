// Package cli provides the command-line interface for codecheck.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/cli/commands"
	"github.com/leapstack-labs/codecheck/internal/cli/config"
)

var (
	cfgFile  string
	closeLog = func() error { return nil }
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	uiOpts := &commands.UIOptions{}

	rootCmd := &cobra.Command{
		Use:   "codecheck",
		Short: "codecheck - serialization code lookup for production lines",
		Long: `codecheck looks up the serialization codes a production line recorded for
a product (by GTIN) within a date range, and manages the registries of lines
(database connection profiles) and products.

Run without a command to start the interactive terminal UI.`,
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// The TUI owns the terminal, so it only logs to log_file.
			logOut := cmd.ErrOrStderr()
			if isInteractive(cmd) {
				logOut = nil
			}
			logger, closer, err := config.NewLogger(cfg, logOut)
			if err != nil {
				return err
			}
			closeLog = closer

			ctx := context.WithValue(cmd.Context(), config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if cfg.Verbose && !isInteractive(cmd) {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", configFile)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return commands.RunUI(cmd, Version, uiOpts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
` + fmt.Sprintf("commit %s, built %s\n", GitCommit, BuildDate))

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./codecheck.yaml)")
	rootCmd.PersistentFlags().String("lines", "", "Path to the lines file (default: profiles.json)")
	rootCmd.PersistentFlags().String("products", "", "Path to the products file (default: products.json)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Query timeout, 0 for none (default: 60s)")
	rootCmd.PersistentFlags().String("sslmode", "", "PostgreSQL sslmode (default: disable)")
	rootCmd.PersistentFlags().String("log-file", "", "Append logs to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")
	commands.AddUIFlags(rootCmd, uiOpts)

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("sslmode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewLinesCommand())
	rootCmd.AddCommand(commands.NewProductsCommand())
	rootCmd.AddCommand(commands.NewUICommand(Version))
	rootCmd.AddCommand(commands.NewUpdateCommand(Version))
	rootCmd.AddCommand(commands.NewSwapCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// isInteractive reports whether cmd starts the terminal UI.
func isInteractive(cmd *cobra.Command) bool {
	return cmd == cmd.Root() || cmd.Name() == "ui"
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	_ = closeLog()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for codecheck.

To load completions:

Bash:
  $ source <(codecheck completion bash)

  # To load completions for each session, execute once:
  $ codecheck completion bash > /etc/bash_completion.d/codecheck

Zsh:
  $ codecheck completion zsh > "${fpath[1]}/_codecheck"

Fish:
  $ codecheck completion fish > ~/.config/fish/completions/codecheck.fish

PowerShell:
  PS> codecheck completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
