package cmd

import (
	"fmt"

	"nomark/internal/config"
	"nomark/internal/extract"
	"nomark/internal/httputil"
	"nomark/internal/pipeline"
	"nomark/internal/provider"
)

// newPipeline assembles the extractor and provider chain from configuration.
// Every component shares one transport; cookie state stays per adapter call.
func newPipeline(c *config.Config) (*extract.Extractor, *pipeline.Resolver, error) {
	transport := httputil.NewTransport(httputil.TransportOptions{
		Impersonate:  c.ImpersonateTLS,
		AllowPrivate: c.AllowPrivateNetworks,
	})

	extractor := extract.New(httputil.NewClient(transport, 0), c.Timeouts.Redirect.Duration)

	adapters, err := provider.NewAdapters(c.Providers,
		provider.WithTransport(transport),
		provider.WithTimeout(c.Timeouts.Provider.Duration),
		provider.WithMaxBytes(c.Limits.MaxVideoBytes),
		provider.WithRateLimit(c.Limits.OutboundPerSecond),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("building providers: %w", err)
	}

	resolver, err := pipeline.New(extractor, adapters...)
	if err != nil {
		return nil, nil, err
	}
	return extractor, resolver, nil
}
