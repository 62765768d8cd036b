package tools

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	return NewRegistry(cat, "")
}

func TestLoadCatalog_Default(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)

	names := make([]string, 0, len(cat.Tools))
	for _, tool := range cat.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"get_vacation_days",
		"get_sick_leave",
		"get_upcoming_leave",
		"get_employee_profile",
		"get_payslip_info",
		"search_documents",
	}, names)
	assert.Equal(t, "EMP001", cat.DefaultEmployee)
	assert.Contains(t, cat.Employees, Employee{Name: "Klahm Sebestian", ID: "EMP002"})
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
default_employee: E1
tools:
  - name: get_overtime
    kind: http
    path: /api/overtime/{employee_id}
    description: Overtime hours.
    parameters:
      - name: employee_id
        type: employee
      - name: month
        type: integer
        default: "1"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Tools, 1)

	r := NewRegistry(cat, "")
	call, err := r.Validate(Call{Name: "get_overtime", Args: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"employee_id": "E1", "month": int64(1)}, call.Args)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":           "tools: [",
		"bad name":           "tools:\n  - name: get-x\n    kind: http\n    path: /x",
		"duplicate":          "tools:\n  - {name: a, kind: http, path: /a}\n  - {name: a, kind: http, path: /b}",
		"unknown kind":       "tools:\n  - {name: a, kind: grpc}",
		"relative path":      "tools:\n  - {name: a, kind: http, path: api/a}",
		"orphan path param":  "tools:\n  - {name: a, kind: http, path: '/a/{id}'}",
		"bad param type":     "tools:\n  - name: a\n    kind: http\n    path: /a\n    parameters:\n      - {name: x, type: date}",
		"retrieval no query": "tools:\n  - {name: a, kind: retrieval}",
		"employee no id":     "employees:\n  - {name: Someone}\ntools: []",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestValidate_DefaultsAndAliases(t *testing.T) {
	r := defaultRegistry(t)

	call, err := r.Validate(Call{Name: "get_vacation_days", Args: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "EMP001", call.Args["employee_id"])

	call, err = r.Validate(Call{Name: "get_payslip_info", Args: map[string]any{"employee_id": "  klahm   sebestian "}})
	require.NoError(t, err)
	assert.Equal(t, "EMP002", call.Args["employee_id"])

	call, err = r.Validate(Call{Name: "get_sick_leave", Args: map[string]any{"employee_id": "EMP042"}})
	require.NoError(t, err)
	assert.Equal(t, "EMP042", call.Args["employee_id"])
}

func TestValidate_DefaultEmployeeOverride(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	r := NewRegistry(cat, "EMP002")

	call, err := r.Validate(Call{Name: "get_employee_profile", Args: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "EMP002", call.Args["employee_id"])
	assert.Equal(t, "EMP002", r.DefaultEmployee())
}

func TestValidate_Rejects(t *testing.T) {
	r := defaultRegistry(t)

	tests := []struct {
		name string
		call Call
	}{
		{"unknown tool", Call{Name: "delete_employee", Args: map[string]any{}}},
		{"unknown param", Call{Name: "get_vacation_days", Args: map[string]any{"year": int64(2026)}}},
		{"wrong type", Call{Name: "get_vacation_days", Args: map[string]any{"employee_id": int64(1)}}},
		{"empty employee", Call{Name: "get_vacation_days", Args: map[string]any{"employee_id": " "}}},
		{"missing required", Call{Name: "search_documents", Args: map[string]any{}}},
		{"empty required string", Call{Name: "search_documents", Args: map[string]any{"query": ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(tt.call)
			var invalid *InvalidToolCallError
			require.True(t, errors.As(err, &invalid), "err = %v", err)
			assert.Equal(t, tt.call.Name, invalid.Tool)
		})
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	r := defaultRegistry(t)
	args := map[string]any{"employee_id": "Om Doshi"}

	_, err := r.Validate(Call{Name: "get_vacation_days", Args: args})
	require.NoError(t, err)
	assert.Equal(t, "Om Doshi", args["employee_id"])
}

func TestValidate_NumberAcceptsInteger(t *testing.T) {
	cat, err := ParseCatalog([]byte(`
tools:
  - name: convert
    kind: http
    path: /convert
    parameters:
      - {name: amount, type: number, required: true}
      - {name: exact, type: boolean}
`))
	require.NoError(t, err)
	r := NewRegistry(cat, "")

	call, err := r.Validate(Call{Name: "convert", Args: map[string]any{"amount": int64(3), "exact": true}})
	require.NoError(t, err)
	assert.Equal(t, 3.0, call.Args["amount"])

	_, err = r.Validate(Call{Name: "convert", Args: map[string]any{"amount": "3"}})
	assert.Error(t, err)
}
