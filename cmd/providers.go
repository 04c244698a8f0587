package cmd

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"nomark/internal/provider"
	"nomark/internal/ui"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the provider fallback order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		ui.List(out, cfg.Providers)

		disabled := lo.Without(provider.Names(), cfg.Providers...)
		if len(disabled) > 0 {
			ui.Muted(out, "disabled: %v", disabled)
		}
	},
}
