package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveExtraction(t *testing.T) {
	before := testutil.ToFloat64(extractionsTotal.WithLabelValues("launchpad", "brace_scan", OutcomeSuccess))
	ObserveExtraction("launchpad", "brace_scan", nil)
	after := testutil.ToFloat64(extractionsTotal.WithLabelValues("launchpad", "brace_scan", OutcomeSuccess))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}

	ObserveExtraction("launchpad", "", errors.New("no json"))
	if got := testutil.ToFloat64(extractionsTotal.WithLabelValues("launchpad", "none", OutcomeFailure)); got < 1 {
		t.Fatalf("expected failure to be recorded under strategy none, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTPRequest("/chat", "POST", 200, 120*time.Millisecond)
	ObserveLLMCall("openai", nil, time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{"chainpilot_http_requests_total", "chainpilot_llm_request_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}
