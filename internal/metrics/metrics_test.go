package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestObserveCounters(t *testing.T) {
	ObserveQuestion("data-query", "answered")
	ObserveToolCall("get_sick_leave", "failed")
	ObserveIngestion("embed")

	body := scrape(t)
	for _, want := range []string{
		`hrassist_questions_total{intent="data-query",outcome="answered"}`,
		`hrassist_tool_calls_total{outcome="failed",tool="get_sick_leave"}`,
		`hrassist_documents_ingested_total{outcome="embed"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestObserveModelCall(t *testing.T) {
	ObserveModelCall("chat", time.Now(), nil)
	ObserveModelCall("embed", time.Now(), errors.New("down"))

	body := scrape(t)
	for _, want := range []string{
		`hrassist_model_request_duration_seconds_count{kind="chat",status="ok"}`,
		`hrassist_model_request_duration_seconds_count{kind="embed",status="error"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
