// Package hrmock is a stand-in for an HR system of record. It serves leave,
// profile and payslip data for a fixed set of employees over the same REST
// paths the tool catalog calls.
package hrmock

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves a Dataset.
type Server struct {
	data Dataset
	now  func() time.Time
}

// New creates a Server for data.
func New(data Dataset) *Server {
	return &Server{data: data, now: time.Now}
}

// Handler returns the HTTP routes of the mock service.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/vacation/{employee_id}", s.handleVacation)
	r.Get("/api/sick-leave/{employee_id}", s.handleSickLeave)
	r.Get("/api/upcoming-leave/{employee_id}", s.handleUpcomingLeave)
	r.Get("/api/employee/{employee_id}", s.handleEmployee)
	r.Get("/api/payslip/{employee_id}", s.handlePayslip)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "mock-hr-api"})
}

func (s *Server) asOf() string { return s.now().Format("2006-01-02") }

func (s *Server) leave(w http.ResponseWriter, r *http.Request) (string, Leave, bool) {
	id := chi.URLParam(r, "employee_id")
	l, ok := s.data.Leave[id]
	if !ok {
		notFound(w, id)
	}
	return id, l, ok
}

func (s *Server) handleVacation(w http.ResponseWriter, r *http.Request) {
	id, l, ok := s.leave(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee_id":             id,
		"employee_name":           l.EmployeeName,
		"year":                    l.Year,
		"total_vacation_days":     l.TotalVacationDays,
		"used_vacation_days":      l.UsedVacationDays,
		"remaining_vacation_days": l.RemainingVacationDays,
		"carried_over_days":       l.CarriedOverDays,
		"as_of_date":              s.asOf(),
	})
}

func (s *Server) handleSickLeave(w http.ResponseWriter, r *http.Request) {
	id, l, ok := s.leave(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee_id":         id,
		"employee_name":       l.EmployeeName,
		"year":                l.Year,
		"sick_days_total":     l.SickDaysTotal,
		"sick_days_used":      l.SickDaysUsed,
		"sick_days_remaining": l.SickDaysRemaining,
		"as_of_date":          s.asOf(),
	})
}

func (s *Server) handleUpcomingLeave(w http.ResponseWriter, r *http.Request) {
	id, l, ok := s.leave(w, r)
	if !ok {
		return
	}
	upcoming := l.UpcomingLeave
	if upcoming == nil {
		upcoming = []LeaveEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee_id":    id,
		"employee_name":  l.EmployeeName,
		"upcoming_leave": upcoming,
		"as_of_date":     s.asOf(),
	})
}

func (s *Server) handleEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "employee_id")
	p, ok := s.data.Profiles[id]
	if !ok {
		notFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePayslip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "employee_id")
	p, ok := s.data.Payslips[id]
	if !ok {
		notFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee_id":   id,
		"employee_name": p.EmployeeName,
		"gross_salary":  p.GrossSalary,
		"net_salary":    p.NetSalary,
		"currency":      p.Currency,
		"pay_frequency": p.PayFrequency,
		"last_pay_date": p.LastPayDate,
		"next_pay_date": p.NextPayDate,
		"deductions":    p.Deductions,
		"ytd_gross":     p.YTDGross,
		"ytd_net":       p.YTDNet,
		"as_of_date":    s.asOf(),
	})
}

func notFound(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": fmt.Sprintf("Employee %s not found", id)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing mock HR response", "error", err)
	}
}
