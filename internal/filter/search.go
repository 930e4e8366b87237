package filter

import (
	"fmt"
	"sort"
	"time"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// SearchFilter matches properties against one or more values using a
// per-property strategy, e.g. {"title": "ipartial", "author": "exact"}.
type SearchFilter struct {
	base
	// Now anchors relative date keywords. Defaults to time.Now.
	Now func() time.Time
}

// NewSearchFilter returns a search filter over properties.
func NewSearchFilter(properties map[string]string) *SearchFilter {
	return &SearchFilter{base: newBase(properties)}
}

// Validate checks every configured strategy name.
func (f *SearchFilter) Validate() error {
	for property, name := range f.properties {
		if _, err := ParseStrategy(name); err != nil {
			return configError("search", fmt.Errorf("property %q: %w", property, err))
		}
	}
	return nil
}

func (f *SearchFilter) Apply(p *pipeline.Pipeline, entity string, _ *Operation, fc *Context) error {
	entries, _ := query.Entries(fc.Filters)
	for _, e := range entries {
		property := f.denormalize(e.Key)
		if !f.enabled(property) {
			continue
		}
		strategy, err := ParseStrategy(f.config(property))
		if err != nil {
			return configError("search", fmt.Errorf("property %q: %w", property, err))
		}
		pp, ok := f.resolve(entity, property)
		if !ok {
			continue
		}
		values, ok := searchValues(e.Value)
		if !ok {
			f.reject("search", property, e.Value, "values must be strings or integers")
			continue
		}
		expr, ok := f.predicate(pp, strategy, values)
		if !ok {
			f.reject("search", property, e.Value, "value does not match property type")
			continue
		}
		if expr == nil {
			continue
		}
		fc.AddJoins(p, pp.Joins)
		fc.AddPredicate(p, expr)
	}
	return nil
}

// searchValues flattens the request value. List elements must be strings or
// integers.
func searchValues(raw any) ([]string, bool) {
	list, ok := scalarOrList(raw)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case int, int64:
			s, _ := scalarString(x)
			out = append(out, s)
		case float64:
			if x != float64(int64(x)) {
				return nil, false
			}
			s, _ := scalarString(int64(x))
			out = append(out, s)
		default:
			return nil, false
		}
	}
	return out, true
}

func (f *SearchFilter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// predicate builds the expression for one property. A nil expression with
// ok set means the property cannot be searched and is skipped silently.
func (f *SearchFilter) predicate(pp PropertyPath, strategy Strategy, values []string) (pipeline.Expr, bool) {
	if pp.IsAssociation() {
		a := pp.LeafAssociation
		if !a.OwningSide() {
			return nil, true
		}
		resourcePath := f.catalog.ResourcePath(a.Target)
		terms := make([]any, len(values))
		for i, v := range values {
			terms[i] = identifierValue(extractIdentifier(v, resourcePath))
		}
		return membership(pp.MatchField, terms), true
	}

	switch pp.Leaf.Type {
	case catalog.TypeID:
		resourcePath := f.catalog.ResourcePath(pp.Entity)
		terms := make([]any, len(values))
		for i, v := range values {
			terms[i] = identifierValue(extractIdentifier(v, resourcePath))
		}
		return membership(pp.MatchField, terms), true
	case catalog.TypeString, catalog.TypeHash, catalog.TypeCollection:
		terms := make([]any, len(values))
		for i, v := range values {
			terms[i] = strategy.Term(v)
		}
		return membership(pp.MatchField, terms), true
	}

	// Other types compare by value after conversion.
	now := f.now()
	terms := make([]any, 0, len(values))
	for _, v := range values {
		t, ok := coerce(pp.Leaf, v, now)
		if !ok {
			return nil, false
		}
		terms = append(terms, t)
	}
	return membership(pp.MatchField, terms), true
}

func (f *SearchFilter) Describe(entity string) []ParameterDescriptor {
	var out []ParameterDescriptor
	for _, property := range f.described(entity, nil) {
		strategy, _ := ParseStrategy(f.config(property))
		name := f.normalize(property)
		desc := fmt.Sprintf("%s match on %s", strategy, property)
		out = append(out,
			ParameterDescriptor{Name: name, Property: property, In: "query", Type: "string", Description: desc},
			ParameterDescriptor{Name: name + "[]", Property: property, In: "query", Type: "string", IsArray: true, Style: "form", Explode: true, Description: desc},
		)
	}
	return out
}

// sortedKeys returns the keys of a configuration map in order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
