// Package metrics holds the Prometheus collectors for the extraction pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomark",
		Name:      "provider_attempts_total",
		Help:      "Provider fetch attempts",
	}, []string{"provider"})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomark",
		Name:      "provider_failures_total",
		Help:      "Provider fetch failures by handshake stage",
	}, []string{"provider", "stage"})

	providerSuccesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomark",
		Name:      "provider_successes_total",
		Help:      "Provider fetches that produced a video",
	}, []string{"provider"})

	contentTypeAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomark",
		Name:      "provider_content_type_anomalies_total",
		Help:      "Media responses whose Content-Type was neither video nor binary",
	}, []string{"provider"})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomark",
		Name:      "provider_duration_seconds",
		Help:      "Time spent in one provider handshake",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"provider", "outcome"})

	videoBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomark",
		Name:      "video_size_bytes",
		Help:      "Size of downloaded videos",
		Buckets:   prometheus.ExponentialBuckets(256<<10, 2, 10),
	}, []string{"provider"})

	resolveOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomark",
		Name:      "resolve_total",
		Help:      "Pipeline outcomes (ok, all_failed, rejected)",
	}, []string{"outcome"})
)

// RecordAttempt counts a provider attempt.
func RecordAttempt(provider string) {
	providerAttempts.WithLabelValues(provider).Inc()
}

// RecordFailure counts a failed attempt and its duration.
func RecordFailure(provider, stage string, elapsed time.Duration) {
	providerFailures.WithLabelValues(provider, stage).Inc()
	providerDuration.WithLabelValues(provider, "failure").Observe(elapsed.Seconds())
}

// RecordSuccess counts a successful attempt, its duration and the video size.
func RecordSuccess(provider string, size int, elapsed time.Duration) {
	providerSuccesses.WithLabelValues(provider).Inc()
	providerDuration.WithLabelValues(provider, "success").Observe(elapsed.Seconds())
	videoBytes.WithLabelValues(provider).Observe(float64(size))
}

// RecordContentTypeAnomaly counts a suspicious media Content-Type.
func RecordContentTypeAnomaly(provider string) {
	contentTypeAnomalies.WithLabelValues(provider).Inc()
}

// RecordResolve counts a pipeline outcome.
func RecordResolve(outcome string) {
	resolveOutcomes.WithLabelValues(outcome).Inc()
}
