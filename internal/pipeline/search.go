package pipeline

import "fmt"

// Occurrence selects the compound clause list a search operator joins.
type Occurrence string

const (
	Must    Occurrence = "must"
	Should  Occurrence = "should"
	MustNot Occurrence = "mustNot"
	Filter  Occurrence = "filter"
)

// ParseOccurrence validates an occurrence name. An empty name means Must.
func ParseOccurrence(s string) (Occurrence, error) {
	switch Occurrence(s) {
	case "":
		return Must, nil
	case Must, Should, MustNot, Filter:
		return Occurrence(s), nil
	}
	return "", fmt.Errorf("unknown search occurrence %q", s)
}

// Compound is a full-text compound operator.
type Compound struct {
	clauses map[Occurrence][]M
}

// Add appends a clause to the list for occ.
func (c *Compound) Add(occ Occurrence, clause M) {
	if c.clauses == nil {
		c.clauses = make(map[Occurrence][]M)
	}
	c.clauses[occ] = append(c.clauses[occ], clause)
}

// Clauses returns the clauses for occ.
func (c *Compound) Clauses(occ Occurrence) []M {
	return c.clauses[occ]
}

// Len returns the total number of clauses.
func (c *Compound) Len() int {
	n := 0
	for _, cl := range c.clauses {
		n += len(cl)
	}
	return n
}

// Document renders the non-empty clause lists.
func (c *Compound) Document() M {
	doc := M{}
	for _, occ := range []Occurrence{Must, Should, MustNot, Filter} {
		if cl := c.clauses[occ]; len(cl) > 0 {
			list := make(A, len(cl))
			for i, x := range cl {
				list[i] = x
			}
			doc[string(occ)] = list
		}
	}
	return doc
}

func (c *Compound) merge(other *Compound) *Compound {
	out := &Compound{}
	for _, occ := range []Occurrence{Must, Should, MustNot, Filter} {
		for _, x := range c.Clauses(occ) {
			out.Add(occ, x)
		}
		for _, x := range other.Clauses(occ) {
			out.Add(occ, x)
		}
	}
	return out
}

// FacetDefinition describes one facet bucket specification.
type FacetDefinition struct {
	Type       string `mapstructure:"type" json:"type"`
	Path       string `mapstructure:"path" json:"path"`
	NumBuckets int    `mapstructure:"num_buckets" json:"numBuckets,omitempty"`
	Boundaries []any  `mapstructure:"boundaries" json:"boundaries,omitempty"`
	Default    string `mapstructure:"default" json:"default,omitempty"`
}

// Search is the full-text search stage. It is always the first stage of a
// pipeline.
type Search struct {
	Index    string
	compound Compound
	facet    *Compound
	facets   map[string]FacetDefinition
}

// NewSearch returns an empty search stage on the given index.
func NewSearch(index string) *Search {
	return &Search{Index: index}
}

func (s *Search) Operator() string { return "$search" }

// AddClause appends a clause. When facet is true the clause goes to the facet
// operator instead of the top-level compound.
func (s *Search) AddClause(occ Occurrence, clause M, facet bool) {
	if facet {
		if s.facet == nil {
			s.facet = &Compound{}
		}
		s.facet.Add(occ, clause)
		return
	}
	s.compound.Add(occ, clause)
}

// AddFacets registers facet definitions. Later definitions for the same name
// replace earlier ones.
func (s *Search) AddFacets(defs map[string]FacetDefinition) {
	if len(defs) == 0 {
		return
	}
	if s.facets == nil {
		s.facets = make(map[string]FacetDefinition, len(defs))
	}
	for name, def := range defs {
		s.facets[name] = def
	}
	if s.facet == nil {
		s.facet = &Compound{}
	}
}

// Compound returns the top-level compound operator.
func (s *Search) Compound() *Compound {
	return &s.compound
}

// FacetOperator returns the facet-scoped compound operator, or nil.
func (s *Search) FacetOperator() *Compound {
	return s.facet
}

// Body renders either a compound operator or, once facets are configured, a
// facet collector. The facet collector cannot sit beside a top-level operator,
// so top-level clauses are folded into the facet operator in that case.
func (s *Search) Body() any {
	body := M{"index": s.Index}
	if s.facet == nil {
		body["compound"] = s.compound.Document()
		return body
	}
	facets := M{}
	for name, def := range s.facets {
		facets[name] = def
	}
	body["facet"] = M{
		"operator": M{"compound": s.compound.merge(s.facet).Document()},
		"facets":   facets,
	}
	return body
}
