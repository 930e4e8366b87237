// Package filter compiles per-property request filters into aggregation
// pipeline stages.
//
// A request runs every configured Filter in order against one Pipeline and
// one Context. Filters that read the legacy property bag look at
// Context.Filters; parameter filters look at Context.Parameter. Invalid user
// input never fails a request: the filter simply contributes nothing.
// Configuration mistakes are reported as *ConfigError.
package filter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/naming"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
)

var (
	// ErrNotResolvable is returned by Resolve for paths the catalog cannot map.
	ErrNotResolvable = errors.New("property path not resolvable")
	// ErrUnknownStrategy reports a search strategy name outside the known set.
	ErrUnknownStrategy = errors.New("unknown search strategy")
	// ErrMissingFilter reports a combinator configured without inner filters.
	ErrMissingFilter = errors.New("wrapped filter is required")
)

// ConfigError is a deployment mistake detected while applying a filter.
type ConfigError struct {
	Filter string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Filter, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(filter string, err error) error {
	return &ConfigError{Filter: filter, Err: err}
}

// Operation identifies the resource operation being compiled.
type Operation struct {
	Resource string
	Name     string
}

// Filter contributes stages to a pipeline.
type Filter interface {
	Apply(p *pipeline.Pipeline, entity string, op *Operation, fc *Context) error
}

// CatalogAware filters receive the schema catalog before first use.
type CatalogAware interface {
	SetCatalog(c catalog.Catalog)
}

// LoggerAware filters receive the logger used for rejected input.
type LoggerAware interface {
	SetLogger(l *slog.Logger)
}

// NameConverterAware filters denormalize external property names.
type NameConverterAware interface {
	SetNameConverter(c naming.Converter)
}

// Validator filters can check their configuration up front.
type Validator interface {
	Validate() error
}

// Composite filters wrap other filters.
type Composite interface {
	Inner() []Filter
}

// ParameterDescriber documents the query parameters bound to a parameter.
type ParameterDescriber interface {
	DescribeParameters(param Parameter) []ParameterDescriptor
}

// SchemaDescriber documents the JSON schema of a parameter value.
type SchemaDescriber interface {
	DescribeSchema(param Parameter) *jsonschema.Schema
}

// PropertyDescriber documents the query parameters a property-bag filter
// reads for an entity.
type PropertyDescriber interface {
	Describe(entity string) []ParameterDescriptor
}

// ParameterDescriptor documents one query parameter.
type ParameterDescriptor struct {
	Name        string   `json:"name"`
	Property    string   `json:"property,omitempty"`
	In          string   `json:"in"`
	Type        string   `json:"type"`
	IsArray     bool     `json:"is_array,omitempty"`
	Style       string   `json:"style,omitempty"`
	Explode     bool     `json:"explode,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Parameter is one resolved request parameter bound to a filter.
type Parameter struct {
	Key        string
	Property   string
	Properties []string
	Value      any
	Extra      map[string]any
}

// WithKey returns a copy with a different key.
func (p Parameter) WithKey(key string) Parameter {
	p.Key = key
	return p
}

// WithValue returns a copy carrying value.
func (p Parameter) WithValue(value any) Parameter {
	p.Value = value
	return p
}

// WithProperty returns a copy bound to a single property.
func (p Parameter) WithProperty(property string) Parameter {
	p.Property = property
	return p
}

// WithExtra returns a copy with an extra property set. The receiver's map is
// not modified.
func (p Parameter) WithExtra(key string, value any) Parameter {
	extra := make(map[string]any, len(p.Extra)+1)
	for k, v := range p.Extra {
		extra[k] = v
	}
	extra[key] = value
	p.Extra = extra
	return p
}

// TargetProperty returns Property, or Key when no property was bound.
func (p Parameter) TargetProperty() string {
	if p.Property != "" {
		return p.Property
	}
	return p.Key
}

// ComparisonMethod returns the operator requested through the
// "comparisonMethod" extra property, defaulting to $eq.
func (p Parameter) ComparisonMethod() (pipeline.Op, bool) {
	raw, ok := p.Extra["comparisonMethod"]
	if !ok {
		return pipeline.OpEq, true
	}
	name, _ := raw.(string)
	switch name {
	case "", "eq":
		return pipeline.OpEq, true
	case "ne":
		return pipeline.OpNe, true
	case "gt":
		return pipeline.OpGt, true
	case "gte":
		return pipeline.OpGte, true
	case "lt":
		return pipeline.OpLt, true
	case "lte":
		return pipeline.OpLte, true
	}
	return "", false
}
