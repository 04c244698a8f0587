package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nomark/internal/config"
	xlog "nomark/internal/log"
	"nomark/internal/server"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP download service",
	Long: `Serve GET /download?url=<post URL> behind an X-API-Key header.
The key comes from api_key in the config file or NOMARK_API_KEY.`,
	Args: cobra.NoArgs,
	RunE: serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default: listen from config, :8000)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("no API key configured: set api_key or NOMARK_API_KEY")
	}

	_, resolver, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Listen:         cfg.Listen,
		APIKey:         cfg.APIKey,
		RatePerMinute:  cfg.Limits.RatePerMinute,
		TrustedProxies: cfg.TrustedProxies,
		WriteTimeout:   writeTimeout(cfg),
	}, resolver)
	if err != nil {
		return err
	}

	logger := xlog.WithComponent("serve")
	logger.Info().
		Strs("providers", resolver.Providers()).
		Str("version", Version).
		Msg("starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info().Msg("stopped")
	return nil
}

// writeTimeout leaves room for every provider to run to its deadline after
// the short link is resolved.
func writeTimeout(c *config.Config) time.Duration {
	return time.Duration(len(c.Providers))*c.Timeouts.Provider.Duration + c.Timeouts.Redirect.Duration + 30*time.Second
}
