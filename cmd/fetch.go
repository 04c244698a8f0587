package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"nomark/internal/config"
	"nomark/internal/download"
	"nomark/internal/history"
	xlog "nomark/internal/log"
	"nomark/internal/media"
	"nomark/internal/pipeline"
	"nomark/internal/ui"
)

// stdoutTarget as the output flag writes the video to stdout.
const stdoutTarget = "-"

var flagOutput string

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download one video to disk or stdout",
	Example: `  nomark fetch https://www.tiktok.com/@someuser/video/7123456789012345678
  nomark fetch https://vm.tiktok.com/ZMabc123/ -o ~/Videos
  nomark fetch https://vm.tiktok.com/ZMabc123/ -o - > clip.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: fetchRun,
}

func init() {
	addFetchFlags(fetchCmd)
}

func addFetchFlags(c *cobra.Command) {
	c.Flags().StringVarP(&flagOutput, "output", "o", "", `Output directory, or "-" for stdout (default: download_dir)`)
}

func fetchRun(cmd *cobra.Command, args []string) error {
	toStdout := flagOutput == stdoutTarget
	if toStdout && ui.IsTerminal(os.Stdout) {
		return fmt.Errorf("refusing to write video data to a terminal; redirect stdout or use -o DIR")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, resolver, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	var (
		ref    media.VideoReference
		result media.ProviderResult
	)
	err = ui.Spin(ctx, os.Stderr, "fetching "+args[0], func(ctx context.Context) error {
		var err error
		if ref, err = extractor.Extract(ctx, args[0]); err != nil {
			return err
		}
		result, err = resolver.ResolveReference(ctx, ref)
		return err
	})
	if err != nil {
		reportFailure(err)
		return err
	}

	if toStdout {
		if _, err := os.Stdout.Write(result.Body); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
		recordHistory(ctx, ref, result, stdoutTarget)
		return nil
	}

	dir := flagOutput
	if dir == "" {
		if dir, err = cfg.ExpandDownloadDir(); err != nil {
			return fmt.Errorf("resolving download dir: %w", err)
		}
	}
	path, err := download.Save(afero.NewOsFs(), result, dir)
	if err != nil {
		return err
	}

	ui.Success(os.Stderr, "%s (%s via %s)", path, humanize.Bytes(uint64(len(result.Body))), result.Provider)
	recordHistory(ctx, ref, result, path)
	return nil
}

// reportFailure prints one line per failed provider.
func reportFailure(err error) {
	var failed *pipeline.AllProvidersFailedError
	if !errors.As(err, &failed) {
		return
	}
	ui.Error(os.Stderr, "no provider could download this video")
	for _, f := range failed.Failures {
		ui.Muted(os.Stderr, "  %s", f.Error())
	}
}

// recordHistory saves the fetch. History is best effort and never fails the
// command.
func recordHistory(ctx context.Context, ref media.VideoReference, result media.ProviderResult, path string) {
	if !cfg.History {
		return
	}
	logger := xlog.WithComponent("history")

	dbPath, err := config.HistoryPath()
	if err != nil {
		logger.Warn().Err(err).Msg("history path unavailable")
		return
	}
	store, err := history.Open(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("opening history failed")
		return
	}
	defer store.Close()

	entry := media.HistoryEntry{
		ContentID: ref.ContentID,
		Handle:    ref.AuthorHandle,
		URL:       ref.RawURL,
		Provider:  result.Provider,
		Path:      path,
		Size:      int64(len(result.Body)),
	}
	if err := store.Save(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("saving history failed")
	}
}
