package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/codecheck/internal/updater"
)

// NewSwapCommand creates the hidden command the update helper runs.
func NewSwapCommand() *cobra.Command {
	opts := updater.SwapOptions{}

	cmd := &cobra.Command{
		Use:    "swap",
		Short:  "Replace an executable with a downloaded one",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Logger = NewCommandContextWithoutState(cmd).Logger
			return updater.Swap(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "Executable to replace")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Downloaded executable")
	cmd.Flags().BoolVar(&opts.Relaunch, "relaunch", false, "Start the target afterwards")
	cmd.Flags().IntVar(&opts.Attempts, "attempts", updater.DefaultAttempts, "Tries to remove the target")
	cmd.Flags().DurationVar(&opts.Delay, "delay", updater.DefaultDelay, "Wait between tries")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}
