package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/appstate"
	"github.com/leapstack-labs/codecheck/internal/cli/config"
	"github.com/leapstack-labs/codecheck/internal/cli/output"
	"github.com/leapstack-labs/codecheck/internal/dbconn"
	"github.com/leapstack-labs/codecheck/internal/query"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	State    *appstate.State
}

// NewCommandContext creates a CommandContext with both registries loaded.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc := NewCommandContextWithoutState(cmd)

	st, err := appstate.Open(cc.Cfg.LinesFile, cc.Cfg.ProductsFile, cc.Logger)
	if err != nil {
		return nil, err
	}
	cc.State = st
	return cc, nil
}

// NewCommandContextWithoutState creates a CommandContext without the registries.
// Useful for commands that don't touch lines or products.
func NewCommandContextWithoutState(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Opener returns a database opener configured from the connection settings.
func (c *CommandContext) Opener() *dbconn.PgxOpener {
	return dbconn.NewPgxOpener(dbconn.Options{
		SSLMode:        c.Cfg.SSLMode,
		ConnectTimeout: c.Cfg.ConnectTimeout,
	}, c.Logger)
}

// Executor returns a query executor bounded by query_timeout.
func (c *CommandContext) Executor() *query.Executor {
	return query.NewExecutor(c.Opener(), c.Cfg.QueryTimeout, c.Logger)
}

// Helper functions shared across commands

// getConfig returns the current configuration, or the defaults when the
// root command did not load one (shell completion).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}
