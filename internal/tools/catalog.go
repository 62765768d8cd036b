// Package tools holds the static tool catalog, the parser for tool-call
// directives in model output, and the dispatcher that executes calls
// against the HR data service.
package tools

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Kind says how a tool is executed.
type Kind string

const (
	// KindHTTP tools are GET requests against the data service.
	KindHTTP Kind = "http"
	// KindRetrieval tools are answered from the document index.
	KindRetrieval Kind = "retrieval"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	// TypeEmployee is a string holding an employee ID. Known employee names
	// are mapped to their ID and an omitted value means the default employee.
	TypeEmployee ParamType = "employee"
)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string    `yaml:"name"`
	Type        ParamType `yaml:"type"`
	Required    bool      `yaml:"required"`
	Default     string    `yaml:"default"`
	Description string    `yaml:"description"`
}

// Definition is a callable tool.
type Definition struct {
	Name        string      `yaml:"name"`
	Kind        Kind        `yaml:"kind"`
	Path        string      `yaml:"path"`
	Description string      `yaml:"description"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Param returns the parameter called name.
func (d Definition) Param(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Employee maps a person's name to their employee ID.
type Employee struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// Catalog is the YAML document listing the tools and known employees.
type Catalog struct {
	DefaultEmployee string       `yaml:"default_employee"`
	Employees       []Employee   `yaml:"employees"`
	Tools           []Definition `yaml:"tools"`
}

var (
	identPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// LoadCatalog reads the catalog at path, or the built-in catalog when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading tool catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing tool catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid tool catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if !identPattern.MatchString(t.Name) {
			return fmt.Errorf("tool name %q is not an identifier", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tool %q", t.Name)
		}
		seen[t.Name] = true

		params := make(map[string]bool, len(t.Parameters))
		for _, p := range t.Parameters {
			if !identPattern.MatchString(p.Name) {
				return fmt.Errorf("tool %s: parameter name %q is not an identifier", t.Name, p.Name)
			}
			if params[p.Name] {
				return fmt.Errorf("tool %s: duplicate parameter %q", t.Name, p.Name)
			}
			params[p.Name] = true
			switch p.Type {
			case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeEmployee:
			default:
				return fmt.Errorf("tool %s: parameter %s has unknown type %q", t.Name, p.Name, p.Type)
			}
		}

		switch t.Kind {
		case KindHTTP:
			if !strings.HasPrefix(t.Path, "/") {
				return fmt.Errorf("tool %s: path must start with /", t.Name)
			}
			for _, m := range placeholderPattern.FindAllStringSubmatch(t.Path, -1) {
				if !params[m[1]] {
					return fmt.Errorf("tool %s: path placeholder {%s} has no parameter", t.Name, m[1])
				}
			}
		case KindRetrieval:
			if _, ok := t.Param("query"); !ok {
				return fmt.Errorf("tool %s: retrieval tools need a query parameter", t.Name)
			}
		default:
			return fmt.Errorf("tool %s: unknown kind %q", t.Name, t.Kind)
		}
	}
	for _, e := range c.Employees {
		if e.Name == "" || e.ID == "" {
			return fmt.Errorf("employee entry needs both name and id")
		}
	}
	return nil
}
