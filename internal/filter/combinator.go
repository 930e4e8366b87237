package filter

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// OrFilter runs every wrapped filter and joins their predicates with $or
// into a single $match. All filters always run.
type OrFilter struct {
	filters []Filter
}

// NewOrFilter wraps filters.
func NewOrFilter(filters ...Filter) *OrFilter {
	return &OrFilter{filters: filters}
}

func (f *OrFilter) Inner() []Filter { return f.filters }

func (f *OrFilter) Validate() error {
	if len(f.filters) == 0 {
		return configError("or", ErrMissingFilter)
	}
	for _, inner := range f.filters {
		if inner == nil {
			return configError("or", ErrMissingFilter)
		}
	}
	return nil
}

func (f *OrFilter) Apply(p *pipeline.Pipeline, entity string, op *Operation, fc *Context) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return fc.Broadcast(p, func() error {
		for _, inner := range f.filters {
			if err := inner.Apply(p, entity, op, fc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *OrFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	var out []ParameterDescriptor
	seen := map[string]bool{}
	for _, inner := range f.filters {
		d, ok := inner.(ParameterDescriber)
		if !ok {
			continue
		}
		for _, desc := range d.DescribeParameters(param) {
			if !seen[desc.Name] {
				seen[desc.Name] = true
				out = append(out, desc)
			}
		}
	}
	return out
}

// ComparisonFilter turns an equality filter into gt/gte/lt/lte variants:
// "?pages[gt]=3&pages[lte]=9" applies the wrapped filter once per operator
// with a sub-parameter "pages[gt]" carrying the comparison method.
type ComparisonFilter struct {
	filter Filter
}

// NewComparisonFilter decorates filter.
func NewComparisonFilter(filter Filter) *ComparisonFilter {
	return &ComparisonFilter{filter: filter}
}

func (f *ComparisonFilter) Inner() []Filter {
	if f.filter == nil {
		return nil
	}
	return []Filter{f.filter}
}

func (f *ComparisonFilter) Validate() error {
	if f.filter == nil {
		return configError("comparison", ErrMissingFilter)
	}
	return nil
}

func (f *ComparisonFilter) Apply(p *pipeline.Pipeline, entity string, op *Operation, fc *Context) error {
	if err := f.Validate(); err != nil {
		return err
	}
	param := fc.Parameter
	if param == nil || !query.IsBag(param.Value) {
		return nil
	}
	for _, c := range comparisonOps {
		raw, ok := query.Lookup(param.Value, c.Name)
		if !ok {
			continue
		}
		if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		if _, ok := scalarString(raw); !ok {
			continue
		}
		sub := param.WithProperty(param.TargetProperty()).
			WithKey(fmt.Sprintf("%s[%s]", param.Key, c.Name)).
			WithValue(raw).
			WithExtra("comparisonMethod", c.Name)
		if err := fc.WithParameter(&sub, func() error {
			return f.filter.Apply(p, entity, op, fc)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (f *ComparisonFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	out := make([]ParameterDescriptor, 0, len(comparisonOps))
	for _, c := range comparisonOps {
		out = append(out, ParameterDescriptor{
			Name:     fmt.Sprintf("%s[%s]", param.Key, c.Name),
			Property: param.TargetProperty(),
			In:       "query",
			Type:     "string",
		})
	}
	return out
}

func (f *ComparisonFilter) DescribeSchema(param Parameter) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	for _, c := range comparisonOps {
		var inner *jsonschema.Schema
		if d, ok := f.filter.(SchemaDescriber); ok {
			inner = d.DescribeSchema(param)
		}
		// Each operator takes a single value.
		if inner == nil || len(inner.AnyOf) > 0 {
			inner = scalarSchema()
		}
		props.Set(c.Name, inner)
	}
	return &jsonschema.Schema{Type: "object", Properties: props}
}

// FreeTextQueryFilter applies the wrapped filter to each of several
// properties and ORs the results: "?q=foo" over name and description.
type FreeTextQueryFilter struct {
	filter     Filter
	properties []string
}

// NewFreeTextQueryFilter decorates filter. Without properties the
// parameter's own property list is used.
func NewFreeTextQueryFilter(filter Filter, properties []string) *FreeTextQueryFilter {
	return &FreeTextQueryFilter{filter: filter, properties: properties}
}

func (f *FreeTextQueryFilter) Inner() []Filter {
	if f.filter == nil {
		return nil
	}
	return []Filter{f.filter}
}

func (f *FreeTextQueryFilter) Validate() error {
	if f.filter == nil {
		return configError("free_text", ErrMissingFilter)
	}
	return nil
}

func (f *FreeTextQueryFilter) Apply(p *pipeline.Pipeline, entity string, op *Operation, fc *Context) error {
	if err := f.Validate(); err != nil {
		return err
	}
	param := fc.Parameter
	if param == nil {
		return nil
	}
	properties := f.properties
	if len(properties) == 0 {
		properties = param.Properties
	}
	if len(properties) == 0 {
		return nil
	}
	return fc.Broadcast(p, func() error {
		for _, property := range properties {
			sub := param.WithProperty(property)
			if err := fc.WithParameter(&sub, func() error {
				return f.filter.Apply(p, entity, op, fc)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *FreeTextQueryFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	return describeParameter(param, "string", false)
}

func (f *FreeTextQueryFilter) DescribeSchema(param Parameter) *jsonschema.Schema {
	if d, ok := f.filter.(SchemaDescriber); ok {
		return d.DescribeSchema(param)
	}
	return &jsonschema.Schema{Type: "string"}
}
