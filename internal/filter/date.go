package filter

import (
	"fmt"
	"time"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// DateFilter bounds date properties:
// "?publishedAt[after]=2024-01-01&publishedAt[strictly_before]=2025-01-01".
// The per-property configuration value is the null mode.
type DateFilter struct {
	base
	// Now anchors relative date keywords. Defaults to time.Now.
	Now func() time.Time
}

// NewDateFilter returns a date filter over properties.
func NewDateFilter(properties map[string]string) *DateFilter {
	return &DateFilter{base: newBase(properties)}
}

// Validate checks every configured null mode.
func (f *DateFilter) Validate() error {
	for property, mode := range f.properties {
		if _, err := ParseNullMode(mode); err != nil {
			return configError("date", fmt.Errorf("property %q: %w", property, err))
		}
	}
	return nil
}

func (f *DateFilter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *DateFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	entries, _ := query.Entries(fc.Filters)
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) || !query.IsBag(e.Value) {
			continue
		}
		mode, err := ParseNullMode(f.config(property))
		if err != nil {
			return configError("date", fmt.Errorf("property %q: %w", property, err))
		}
		pp, ok := f.resolve(entity, property)
		if !ok || pp.IsAssociation() || pp.Leaf.Type != catalog.TypeDate {
			continue
		}

		now := f.now()
		var terms []pipeline.Expr
		for _, d := range dateOps {
			raw, ok := query.Lookup(e.Value, d.Name)
			if !ok {
				continue
			}
			s, ok := raw.(string)
			if !ok {
				f.reject("date", property, raw, d.Name+" expects a single date")
				continue
			}
			t, err := ParseDate(s, now)
			if err != nil {
				f.reject("date", property, s, err.Error())
				continue
			}
			cmp := pipeline.Compare(pp.MatchField, d.Op, pipeline.Date(t))
			if mode.includes(d.Op) {
				cmp = pipeline.Or(cmp, pipeline.IsNull(pp.MatchField))
			}
			terms = append(terms, cmp)
		}
		if len(terms) == 0 {
			continue
		}
		if mode == ExcludeNull {
			terms = append([]pipeline.Expr{pipeline.NotNull(pp.MatchField)}, terms...)
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, pipeline.And(terms...))
	}
	return nil
}

func (f *DateFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, func(pp PropertyPath) bool { return pp.Leaf.Type == catalog.TypeDate }) {
		name := f.normalize(property)
		for _, d := range dateOps {
			out = append(out, ParameterDescriptor{
				Name:     name + "[" + d.Name + "]",
				Property: property,
				In:       "query",
				Type:     "string",
			})
		}
	}
	return out
}
