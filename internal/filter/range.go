package filter

import (
	"bytes"
	"strings"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// RangeFilter compares numeric properties:
// "?price[between]=5..10&price[gt]=3".
type RangeFilter struct {
	base
}

// NewRangeFilter returns a range filter over properties.
func NewRangeFilter(properties map[string]string) *RangeFilter {
	return &RangeFilter{base: newBase(properties)}
}

func (f *RangeFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	entries, _ := query.Entries(fc.Filters)
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) || !query.IsBag(e.Value) {
			continue
		}
		pp, ok := f.resolve(entity, property)
		if !ok || pp.IsAssociation() || !pp.Leaf.Type.IsNumeric() {
			continue
		}
		expr := rangeExpr(e.Value, pp.MatchField, func(op, raw string) (any, bool) {
			n, ok := parseNumber(raw)
			if !ok {
				f.reject("range", property, raw, "bound of "+op+" is not numeric")
			}
			return n, ok
		}, func(lo, hi any) int {
			// Reversed numeric bounds still compile; they just match nothing.
			if toFloat(lo) == toFloat(hi) {
				return 0
			}
			return -1
		}, func(reason string) { f.reject("range", property, e.Value, reason) })
		if expr == nil {
			continue
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, expr)
	}
	return nil
}

// rangeExpr builds the conjunction of the between/gt/gte/lt/lte operators
// present in bag. parse converts one bound; cmp orders two parsed bounds.
func rangeExpr(bag any, field string, parse func(op, raw string) (any, bool), cmp func(lo, hi any) int, reject func(reason string)) pipeline.Expr {
	var terms []pipeline.Expr
	if raw, ok := query.Lookup(bag, opBetween); ok {
		if s, ok := scalarString(raw); ok {
			if lo, hi, ok := splitRange(s); ok {
				l, lok := parse(opBetween, lo)
				h, hok := parse(opBetween, hi)
				if lok && hok {
					switch c := cmp(l, h); {
					case c == 0:
						terms = append(terms, pipeline.Eq(field, l))
					case c > 0:
						reject("between bounds are reversed")
					default:
						terms = append(terms, pipeline.And(
							pipeline.Compare(field, pipeline.OpGte, l),
							pipeline.Compare(field, pipeline.OpLte, h),
						))
					}
				}
			} else {
				reject("between expects min..max")
			}
		}
	}
	for _, c := range comparisonOps {
		raw, ok := query.Lookup(bag, c.Name)
		if !ok {
			continue
		}
		s, ok := scalarString(raw)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		v, ok := parse(c.Name, s)
		if !ok {
			continue
		}
		terms = append(terms, pipeline.Compare(field, c.Op, v))
	}
	return pipeline.And(terms...)
}

func rangeDescriptors(name, property string) []ParameterDescriptor {
	out := []ParameterDescriptor{{
		Name: name + "[" + opBetween + "]", Property: property, In: "query", Type: "string",
	}}
	for _, c := range comparisonOps {
		out = append(out, ParameterDescriptor{
			Name: name + "[" + c.Name + "]", Property: property, In: "query", Type: "string",
		})
	}
	return out
}

func (f *RangeFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, func(pp PropertyPath) bool { return pp.Leaf.Type.IsNumeric() }) {
		out = append(out, rangeDescriptors(f.normalize(property), property)...)
	}
	return out
}

// UUIDRangeFilter compares time-ordered UUIDs (versions 6 and 7), whose byte
// order follows their creation time.
type UUIDRangeFilter struct {
	base
}

// NewUUIDRangeFilter returns a UUID range filter over properties.
func NewUUIDRangeFilter(properties map[string]string) *UUIDRangeFilter {
	return &UUIDRangeFilter{base: newBase(properties)}
}

func (f *UUIDRangeFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	entries, _ := query.Entries(fc.Filters)
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) || !query.IsBag(e.Value) {
			continue
		}
		pp, ok := f.resolve(entity, property)
		if !ok || pp.IsAssociation() || pp.Leaf.Type != catalog.TypeUUID {
			continue
		}
		expr := rangeExpr(e.Value, pp.MatchField, func(op, raw string) (any, bool) {
			u, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil || (u.Version() != 6 && u.Version() != 7) {
				f.reject("uuid_range", property, raw, "bound of "+op+" is not a version 6 or 7 UUID")
				return nil, false
			}
			return pipeline.UUID(u), true
		}, func(lo, hi any) int {
			a, b := lo.(pipeline.UUID), hi.(pipeline.UUID)
			return bytes.Compare(a[:], b[:])
		}, func(reason string) { f.reject("uuid_range", property, e.Value, reason) })
		if expr == nil {
			continue
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, expr)
	}
	return nil
}

func (f *UUIDRangeFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, func(pp PropertyPath) bool { return pp.Leaf.Type == catalog.TypeUUID }) {
		out = append(out, rangeDescriptors(f.normalize(property), property)...)
	}
	return out
}
