package tools

import (
	"fmt"
	"strings"
)

// InvalidToolCallError means a call does not satisfy its tool's schema. It
// is reported back to the model; nothing is executed.
type InvalidToolCallError struct {
	Tool   string
	Reason string
}

func (e *InvalidToolCallError) Error() string {
	return fmt.Sprintf("invalid call to %s: %s", e.Tool, e.Reason)
}

// Registry is the read-only set of tools available to the model.
type Registry struct {
	tools           []Definition
	byName          map[string]Definition
	employees       []Employee
	byEmployeeName  map[string]string
	defaultEmployee string
}

// NewRegistry builds a Registry from a validated catalog. A non-empty
// defaultEmployee overrides the catalog's default.
func NewRegistry(c *Catalog, defaultEmployee string) *Registry {
	r := &Registry{
		tools:           c.Tools,
		byName:          make(map[string]Definition, len(c.Tools)),
		employees:       c.Employees,
		byEmployeeName:  make(map[string]string, len(c.Employees)),
		defaultEmployee: c.DefaultEmployee,
	}
	if defaultEmployee != "" {
		r.defaultEmployee = defaultEmployee
	}
	for _, t := range c.Tools {
		r.byName[t.Name] = t
	}
	for _, e := range c.Employees {
		r.byEmployeeName[normalizeName(e.Name)] = e.ID
	}
	return r
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Definitions returns the tools in catalog order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.tools...)
}

// Employees returns the known name to ID mappings.
func (r *Registry) Employees() []Employee {
	return append([]Employee(nil), r.employees...)
}

// DefaultEmployee is the employee "my ..." questions refer to.
func (r *Registry) DefaultEmployee() string { return r.defaultEmployee }

// Validate checks call against its tool's schema and returns a copy with
// defaults filled in and employee names resolved to IDs.
func (r *Registry) Validate(call Call) (Call, error) {
	def, ok := r.byName[call.Name]
	if !ok {
		return Call{}, &InvalidToolCallError{Tool: call.Name, Reason: "unknown tool"}
	}

	out := Call{Name: call.Name, Line: call.Line, Args: make(map[string]any, len(def.Parameters))}
	for key := range call.Args {
		if _, ok := def.Param(key); !ok {
			return Call{}, &InvalidToolCallError{Tool: call.Name, Reason: fmt.Sprintf("unknown parameter %q", key)}
		}
	}

	for _, p := range def.Parameters {
		v, present := call.Args[p.Name]
		if !present {
			switch {
			case p.Type == TypeEmployee && p.Default == "" && !p.Required:
				if r.defaultEmployee != "" {
					out.Args[p.Name] = r.defaultEmployee
				}
			case p.Default != "":
				dv, err := coerceDefault(p)
				if err != nil {
					return Call{}, &InvalidToolCallError{Tool: call.Name, Reason: err.Error()}
				}
				out.Args[p.Name] = dv
			case p.Required:
				return Call{}, &InvalidToolCallError{Tool: call.Name, Reason: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			continue
		}

		cv, err := r.check(p, v)
		if err != nil {
			return Call{}, &InvalidToolCallError{Tool: call.Name, Reason: err.Error()}
		}
		out.Args[p.Name] = cv
	}
	return out, nil
}

func (r *Registry) check(p Parameter, v any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string", p.Name)
		}
		if p.Required && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("parameter %q must not be empty", p.Name)
		}
		return s, nil
	case TypeEmployee:
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("parameter %q must be a non-empty employee ID", p.Name)
		}
		return r.resolveEmployee(s), nil
	case TypeInteger:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be an integer", p.Name)
		}
		return n, nil
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("parameter %q must be a number", p.Name)
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be true or false", p.Name)
		}
		return b, nil
	}
	return nil, fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
}

// resolveEmployee maps a known employee name to its ID. IDs and unknown
// values pass through unchanged.
func (r *Registry) resolveEmployee(v string) string {
	if id, ok := r.byEmployeeName[normalizeName(v)]; ok {
		return id
	}
	return strings.TrimSpace(v)
}

func coerceDefault(p Parameter) (any, error) {
	if p.Type == TypeString || p.Type == TypeEmployee {
		return p.Default, nil
	}
	// Defaults use the directive value syntax.
	call, ok := ParseLine(fmt.Sprintf("%s x(v=%s)", DirectivePrefix, p.Default))
	if !ok {
		return nil, fmt.Errorf("default for %q is not a valid %s", p.Name, p.Type)
	}
	v := call.Args["v"]
	switch p.Type {
	case TypeInteger:
		if _, ok := v.(int64); ok {
			return v, nil
		}
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case TypeBoolean:
		if _, ok := v.(bool); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("default for %q is not a valid %s", p.Name, p.Type)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
