package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveLLMRequest("gpt", "/v1/responses", "200", time.Second, 10, 5)
	m.ObserveCollaborator("tts", "synthesize", "ok", time.Second)
	m.IncCoachingFallback("timeout")
	m.IncVoiceEvent("no_audio")
	m.ApiInflightInc()
	m.ApiInflightDec()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status=%d", rec.Code)
	}
}

func TestCollaboratorCounters(t *testing.T) {
	m := New()
	m.ObserveCollaborator("tts", "synthesize", "ok", 120*time.Millisecond)
	m.ObserveCollaborator("tts", "synthesize", "empty", 0)
	m.ObserveCollaborator("tts", "synthesize", "ok", 80*time.Millisecond)
	m.IncCoachingFallback("")

	if got := testutil.ToFloat64(m.collaboratorCalls.WithLabelValues("tts", "synthesize", "ok")); got != 2 {
		t.Fatalf("ok calls=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.collaboratorCalls.WithLabelValues("tts", "synthesize", "empty")); got != 1 {
		t.Fatalf("empty calls=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.coachingFallbacks.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("fallbacks=%v want 1", got)
	}
}

func TestLLMTokens(t *testing.T) {
	m := New()
	m.ObserveLLMRequest("", "/v1/responses", "200", time.Second, 100, 40)
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("unknown", "input")); got != 100 {
		t.Fatalf("input tokens=%v", got)
	}
	if got := testutil.ToFloat64(m.llmRequests.WithLabelValues("unknown", "/v1/responses", "200")); got != 1 {
		t.Fatalf("requests=%v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveAPI("POST", "/api/interview/answer", "200", 30*time.Millisecond)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `uc_api_requests_total{method="POST",route="/api/interview/answer",status="200"} 1`) {
		t.Fatalf("metrics body missing api counter:\n%s", body)
	}
}
