package filter

import (
	"regexp"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
)

// scalarSchema accepts a string, number or boolean.
func scalarSchema() *jsonschema.Schema {
	return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{
		{Type: "string"},
		{Type: "number"},
		{Type: "boolean"},
	}}
}

// scalarOrListSchema accepts a scalar or a list of scalars.
func scalarOrListSchema() *jsonschema.Schema {
	return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{
		{Type: "string"},
		{Type: "number"},
		{Type: "boolean"},
		{Type: "array", Items: scalarSchema()},
	}}
}

func stringOrListSchema() *jsonschema.Schema {
	return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{
		{Type: "string"},
		{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
	}}
}

func describeParameter(param Parameter, typ string, isArray bool) []ParameterDescriptor {
	d := ParameterDescriptor{Name: param.Key, Property: param.TargetProperty(), In: "query", Type: typ}
	if !isArray {
		return []ParameterDescriptor{d}
	}
	list := d
	list.Name += "[]"
	list.IsArray = true
	list.Style = "form"
	list.Explode = true
	return []ParameterDescriptor{d, list}
}

// ExactFilter matches the bound property against the parameter value. A
// list becomes a set-membership match; the "comparisonMethod" extra
// property selects another operator for a single value.
type ExactFilter struct {
	base
	// Now anchors relative date keywords. Defaults to time.Now.
	Now func() time.Time
}

// NewExactFilter returns an exact filter.
func NewExactFilter() *ExactFilter {
	return &ExactFilter{}
}

func (f *ExactFilter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *ExactFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	param := fc.Parameter
	if param == nil {
		return nil
	}
	property := f.denormalize(param.TargetProperty())
	pp, ok := f.resolve(entity, property)
	if !ok {
		return nil
	}
	method, ok := param.ComparisonMethod()
	if !ok {
		f.reject("exact", property, param.Extra["comparisonMethod"], "unknown comparison method")
		return nil
	}
	list, ok := scalarOrList(param.Value)
	if !ok {
		f.reject("exact", property, param.Value, "expected a scalar or a list")
		return nil
	}

	values := make([]any, 0, len(list))
	now := f.now()
	for _, raw := range list {
		var v any
		if pp.IsAssociation() {
			s, ok := scalarString(raw)
			if !ok {
				return nil
			}
			v = identifierValue(extractIdentifier(s, f.catalog.ResourcePath(pp.LeafAssociation.Target)))
		} else if v, ok = coerce(pp.Leaf, raw, now); !ok {
			f.reject("exact", property, raw, "value does not match property type")
			return nil
		}
		values = append(values, v)
	}

	var expr pipeline.Expr
	switch {
	case len(values) == 1:
		expr = pipeline.Compare(pp.MatchField, method, values[0])
	case method == pipeline.OpEq:
		expr = pipeline.In(pp.MatchField, values...)
	default:
		f.reject("exact", property, param.Value, "comparison methods take a single value")
		return nil
	}
	fc.AddJoins(p, pp.Joins)
	fc.AddPredicate(p, expr)
	return nil
}

func (f *ExactFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	return describeParameter(param, "string", true)
}

func (f *ExactFilter) DescribeSchema(Parameter) *jsonschema.Schema {
	return scalarOrListSchema()
}

// PartialSearchFilter matches case-insensitive substrings of the bound
// property.
type PartialSearchFilter struct {
	base
}

// NewPartialSearchFilter returns a partial search filter.
func NewPartialSearchFilter() *PartialSearchFilter {
	return &PartialSearchFilter{}
}

func (f *PartialSearchFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	param := fc.Parameter
	if param == nil {
		return nil
	}
	property := f.denormalize(param.TargetProperty())
	pp, ok := f.resolve(entity, property)
	if !ok || pp.IsAssociation() {
		return nil
	}
	values, ok := searchValues(param.Value)
	if !ok {
		f.reject("partial", property, param.Value, "values must be strings")
		return nil
	}
	terms := make([]any, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		terms = append(terms, pipeline.Regex{Pattern: regexp.QuoteMeta(v), Options: "i"})
	}
	if len(terms) == 0 {
		return nil
	}
	fc.AddJoins(p, pp.Joins)
	fc.AddPredicate(p, pipeline.In(pp.MatchField, terms...))
	return nil
}

func (f *PartialSearchFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	return describeParameter(param, "string", true)
}

func (f *PartialSearchFilter) DescribeSchema(Parameter) *jsonschema.Schema {
	return stringOrListSchema()
}

// IriFilter matches an owning-side association against resource
// identifiers given as IRIs ("/authors/42") or raw identifiers.
type IriFilter struct {
	base
}

// NewIriFilter returns an IRI filter.
func NewIriFilter() *IriFilter {
	return &IriFilter{}
}

func (f *IriFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	param := fc.Parameter
	if param == nil {
		return nil
	}
	property := f.denormalize(param.TargetProperty())
	pp, ok := f.resolve(entity, property)
	if !ok || !pp.IsAssociation() || !pp.LeafAssociation.OwningSide() {
		return nil
	}
	values, ok := searchValues(param.Value)
	if !ok {
		f.reject("iri", property, param.Value, "values must be strings")
		return nil
	}
	resourcePath := f.catalog.ResourcePath(pp.LeafAssociation.Target)
	terms := make([]any, len(values))
	for i, v := range values {
		terms[i] = identifierValue(extractIdentifier(v, resourcePath))
	}
	fc.AddJoins(p, pp.Joins)
	fc.AddPredicate(p, membership(pp.MatchField, terms))
	return nil
}

func (f *IriFilter) DescribeParameters(param Parameter) []ParameterDescriptor {
	return describeParameter(param, "string", true)
}

func (f *IriFilter) DescribeSchema(Parameter) *jsonschema.Schema {
	return stringOrListSchema()
}
