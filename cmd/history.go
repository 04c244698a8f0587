package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nomark/internal/config"
	"nomark/internal/history"
	"nomark/internal/httputil"
	"nomark/internal/ui"
)

var (
	flagHistoryLimit  int
	flagHistoryClear  bool
	flagHistoryRemove string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past fetches",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&flagHistoryClear, "clear", false, "Delete all entries")
	historyCmd.Flags().StringVar(&flagHistoryRemove, "remove", "", "Delete the entry for a post ID")
	historyCmd.MarkFlagsMutuallyExclusive("clear", "remove")
}

func historyRun(cmd *cobra.Command, args []string) error {
	path, err := config.HistoryPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case flagHistoryClear:
		if err := store.Clear(ctx); err != nil {
			return err
		}
		ui.Success(out, "history cleared")
		return nil
	case flagHistoryRemove != "":
		if err := httputil.ValidateNumericID(flagHistoryRemove); err != nil {
			return err
		}
		if err := store.Remove(ctx, flagHistoryRemove); err != nil {
			return err
		}
		ui.Success(out, "removed %s", flagHistoryRemove)
		return nil
	}

	entries, err := store.Load(ctx, flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(entries) == 0 {
		ui.Muted(out, "No history entries found.")
		return nil
	}

	ui.List(out, history.FormatForDisplay(entries, time.Now()))
	if !cfg.History {
		ui.Muted(os.Stderr, "history recording is disabled in the config")
	}
	return nil
}
