package filter

import (
	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// BooleanFilter matches boolean properties: "?published=true".
type BooleanFilter struct {
	base
}

// NewBooleanFilter returns a boolean filter over properties.
func NewBooleanFilter(properties map[string]string) *BooleanFilter {
	return &BooleanFilter{base: newBase(properties)}
}

func (f *BooleanFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	entries, _ := query.Entries(fc.Filters)
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) {
			continue
		}
		pp, ok := f.resolve(entity, property)
		if !ok || pp.IsAssociation() || pp.Leaf.Type != catalog.TypeBool {
			continue
		}
		v, ok := ParseBool(e.Value)
		if !ok {
			f.reject("boolean", property, e.Value, `expected one of "true", "false", "1", "0"`)
			continue
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, pipeline.Eq(pp.MatchField, v))
	}
	return nil
}

func (f *BooleanFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, func(pp PropertyPath) bool { return pp.Leaf.Type == catalog.TypeBool }) {
		out = append(out, ParameterDescriptor{Name: f.normalize(property), Property: property, In: "query", Type: "boolean"})
	}
	return out
}

// NumericFilter matches numeric properties against one or more values:
// "?pages=100" or "?pages[]=100&pages[]=200".
type NumericFilter struct {
	base
}

// NewNumericFilter returns a numeric filter over properties.
func NewNumericFilter(properties map[string]string) *NumericFilter {
	return &NumericFilter{base: newBase(properties)}
}

func (f *NumericFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	entries, _ := query.Entries(fc.Filters)
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) {
			continue
		}
		pp, ok := f.resolve(entity, property)
		if !ok || pp.IsAssociation() || !pp.Leaf.Type.IsNumeric() {
			continue
		}
		list, ok := scalarOrList(e.Value)
		if !ok {
			f.reject("numeric", property, e.Value, "expected a number or a list of numbers")
			continue
		}
		values := make([]any, 0, len(list))
		for _, raw := range list {
			n, ok := parseNumeric(pp.Leaf.Type, raw)
			if !ok {
				values = nil
				break
			}
			values = append(values, n)
		}
		if len(values) == 0 {
			f.reject("numeric", property, e.Value, "expected "+string(pp.Leaf.Type)+" values")
			continue
		}
		var expr pipeline.Expr
		if len(values) == 1 {
			expr = pipeline.Eq(pp.MatchField, values[0])
		} else {
			expr = pipeline.In(pp.MatchField, values...)
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, expr)
	}
	return nil
}

func (f *NumericFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, func(pp PropertyPath) bool { return pp.Leaf.Type.IsNumeric() }) {
		typ := "number"
		if pp, _ := f.resolve(entity, property); pp.Leaf.Type == catalog.TypeInt {
			typ = "integer"
		}
		name := f.normalize(property)
		out = append(out,
			ParameterDescriptor{Name: name, Property: property, In: "query", Type: typ},
			ParameterDescriptor{Name: name + "[]", Property: property, In: "query", Type: typ, IsArray: true, Style: "form", Explode: true},
		)
	}
	return out
}

// ExistsFilter matches on the presence of nullable properties:
// "?exists[publishedAt]=false".
type ExistsFilter struct {
	base
	// ParameterName is the query key holding the property bag.
	ParameterName string
}

// DefaultExistsParameter is the default query key of ExistsFilter.
const DefaultExistsParameter = "exists"

// NewExistsFilter returns an exists filter over properties.
func NewExistsFilter(properties map[string]string) *ExistsFilter {
	return &ExistsFilter{base: newBase(properties), ParameterName: DefaultExistsParameter}
}

func (f *ExistsFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	bag, ok := query.Lookup(fc.Filters, f.ParameterName)
	if !ok {
		return nil
	}
	entries, ok := query.Entries(bag)
	if !ok {
		return nil
	}
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) {
			continue
		}
		pp, ok := f.resolve(entity, property)
		if !ok || !f.catalog.IsNullable(pp.Entity, pp.Field) {
			continue
		}
		exists, ok := parseExists(e.Value)
		if !ok {
			f.reject("exists", property, e.Value, `expected one of "true", "false", "1", "0"`)
			continue
		}
		var expr pipeline.Expr
		if exists {
			expr = pipeline.NotNull(pp.MatchField)
		} else {
			expr = pipeline.IsNull(pp.MatchField)
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, expr)
	}
	return nil
}

func (f *ExistsFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, func(pp PropertyPath) bool {
		return f.catalog.IsNullable(pp.Entity, pp.Field)
	}) {
		out = append(out, ParameterDescriptor{
			Name:     f.ParameterName + "[" + f.normalize(property) + "]",
			Property: property,
			In:       "query",
			Type:     "boolean",
		})
	}
	return out
}
