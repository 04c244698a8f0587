package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFailureByStage(t *testing.T) {
	before := testutil.ToFloat64(providerFailures.WithLabelValues("metrics-test", "token-extraction"))

	RecordAttempt("metrics-test")
	RecordFailure("metrics-test", "token-extraction", 50*time.Millisecond)

	after := testutil.ToFloat64(providerFailures.WithLabelValues("metrics-test", "token-extraction"))
	if after-before != 1 {
		t.Errorf("failures delta = %v, want 1", after-before)
	}
}

func TestExposure(t *testing.T) {
	RecordSuccess("metrics-exposure", 1024, time.Second)
	RecordContentTypeAnomaly("metrics-exposure")
	RecordResolve("ok")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"nomark_provider_successes_total",
		"nomark_provider_content_type_anomalies_total",
		"nomark_video_size_bytes",
		"nomark_resolve_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
