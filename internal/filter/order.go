package filter

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// DefaultOrderParameter is the default query key of OrderFilter.
const DefaultOrderParameter = "order"

// OrderFilter sorts by the properties in "?order[title]=desc&order[id]=".
// The per-property configuration value is the default direction used when
// the request leaves the direction empty.
type OrderFilter struct {
	base
	// ParameterName is the query key holding the property bag.
	ParameterName string
	// NullsComparison ranks null values; empty leaves them to the store.
	NullsComparison NullsComparison
}

// NewOrderFilter returns an order filter over properties.
func NewOrderFilter(properties map[string]string) *OrderFilter {
	return &OrderFilter{base: newBase(properties), ParameterName: DefaultOrderParameter}
}

// Validate checks configured default directions.
func (f *OrderFilter) Validate() error {
	for property, dir := range f.properties {
		if dir == "" {
			continue
		}
		if _, err := pipeline.ParseDirection(dir); err != nil {
			return configError("order", fmt.Errorf("property %q: %w", property, err))
		}
	}
	return nil
}

func (f *OrderFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	bag, ok := query.Lookup(fc.Filters, f.ParameterName)
	if !ok {
		return nil
	}
	entries, ok := query.Entries(bag)
	if !ok {
		return nil
	}
	var keys []SortKey
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) {
			continue
		}
		pp, ok := f.resolve(entity, property)
		if !ok {
			continue
		}
		raw, _ := e.Value.(string)
		if strings.TrimSpace(raw) == "" {
			raw = f.config(property)
		}
		if raw == "" {
			continue
		}
		dir, err := pipeline.ParseDirection(raw)
		if err != nil {
			f.reject("order", property, e.Value, err.Error())
			continue
		}
		fc.AddJoins(p, pp.Joins)
		if f.NullsComparison != "" {
			rank := "_" + strings.ReplaceAll(pp.MatchField, ".", "_") + "_null_rank"
			fc.AddComputedField(p, rank, pipeline.M{
				"$cond": pipeline.A{
					pipeline.M{"$eq": pipeline.A{"$" + pp.MatchField, nil}},
					0,
					1,
				},
			})
			keys = append(keys, SortKey{Field: rank, Direction: f.NullsComparison.rankDirection(dir)})
		}
		keys = append(keys, SortKey{Field: pp.MatchField, Direction: dir})
	}
	fc.MergeSort(p, keys...)
	return nil
}

func (f *OrderFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, nil) {
		out = append(out, ParameterDescriptor{
			Name:     f.ParameterName + "[" + f.normalize(property) + "]",
			Property: property,
			In:       "query",
			Type:     "string",
			Enum:     []string{"asc", "desc"},
		})
	}
	return out
}
