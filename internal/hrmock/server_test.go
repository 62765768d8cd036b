package hrmock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := New(DefaultDataset())
	s.now = func() time.Time { return time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return resp.StatusCode, body
}

func TestEndpoints(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path  string
		field string
		want  any
	}{
		{"/api/vacation/EMP001", "remaining_vacation_days", float64(12)},
		{"/api/vacation/EMP002", "remaining_vacation_days", float64(17)},
		{"/api/vacation/EMP002", "carried_over_days", float64(5)},
		{"/api/sick-leave/EMP001", "sick_days_remaining", float64(26)},
		{"/api/sick-leave/EMP002", "sick_days_used", float64(2)},
		{"/api/employee/EMP001", "position", "Senior Full-Stack Developer"},
		{"/api/employee/EMP002", "location", "Munich, DE"},
		{"/api/payslip/EMP001", "net_salary", float64(4200)},
		{"/api/payslip/EMP002", "gross_salary", float64(5500)},
		{"/api/payslip/EMP001", "currency", "EUR"},
		{"/api/vacation/EMP001", "as_of_date", "2026-02-10"},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.field, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+tt.path)
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			if body[tt.field] != tt.want {
				t.Errorf("%s = %v, want %v", tt.field, body[tt.field], tt.want)
			}
		})
	}
}

func TestUpcomingLeave(t *testing.T) {
	srv := newTestServer(t)

	_, body := getJSON(t, srv.URL+"/api/upcoming-leave/EMP001")
	entries, ok := body["upcoming_leave"].([]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("upcoming_leave = %v", body["upcoming_leave"])
	}
	first := entries[0].(map[string]any)
	if first["start"] != "2026-03-15" || first["status"] != "approved" {
		t.Errorf("first entry = %v", first)
	}

	_, body = getJSON(t, srv.URL+"/api/upcoming-leave/EMP002")
	if entries, ok := body["upcoming_leave"].([]any); !ok || len(entries) != 0 {
		t.Errorf("EMP002 upcoming_leave = %v, want empty list", body["upcoming_leave"])
	}
}

func TestPayslipDeductions(t *testing.T) {
	srv := newTestServer(t)
	_, body := getJSON(t, srv.URL+"/api/payslip/EMP002")
	d, ok := body["deductions"].(map[string]any)
	if !ok {
		t.Fatalf("deductions = %v", body["deductions"])
	}
	if d["income_tax"] != float64(1200) || d["pension_contribution"] != float64(165) {
		t.Errorf("deductions = %v", d)
	}
}

func TestUnknownEmployee(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/vacation/EMP999", "/api/employee/EMP999", "/api/payslip/EMP999"} {
		status, body := getJSON(t, srv.URL+path)
		if status != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, status)
		}
		if body["detail"] != "Employee EMP999 not found" {
			t.Errorf("%s: detail = %v", path, body["detail"])
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, body := getJSON(t, srv.URL+"/api/health")
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", status, body)
	}
}
