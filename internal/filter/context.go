package filter

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// SortKey is one field of the accumulated sort order.
type SortKey struct {
	Field     string
	Direction pipeline.Direction
}

// Context is the request-scoped accumulator shared by every filter applied
// to one pipeline. It must not be shared between compilations.
type Context struct {
	// Filters is the decoded request query.
	Filters *query.Values
	// Parameter is the parameter currently being applied, if any.
	Parameter *Parameter

	sort      *orderedmap.OrderedMap[string, pipeline.Direction]
	sortStage *pipeline.Sort
	computed  map[string]bool
	search    *pipeline.Search
	match     *pipeline.Builder
	joins     map[string]bool
}

// NewContext returns an empty accumulator over the given query values.
// A nil bag is treated as empty.
func NewContext(filters *query.Values) *Context {
	if filters == nil {
		filters = query.New()
	}
	return &Context{
		Filters:  filters,
		sort:     orderedmap.New[string, pipeline.Direction](),
		computed: make(map[string]bool),
		joins:    make(map[string]bool),
	}
}

// AddJoins appends a $lookup/$unwind pair for every join whose alias has not
// been emitted yet.
func (c *Context) AddJoins(p *pipeline.Pipeline, joins []Join) {
	for _, j := range joins {
		if c.joins[j.Alias] {
			continue
		}
		c.joins[j.Alias] = true
		p.Append(
			&pipeline.Lookup{
				From:         j.From,
				LocalField:   j.LocalField,
				ForeignField: j.ForeignField,
				As:           j.Alias,
			},
			&pipeline.Unwind{Path: j.Alias, PreserveNullAndEmptyArrays: true},
		)
	}
}

// HasJoin reports whether the alias was already emitted.
func (c *Context) HasJoin(alias string) bool {
	return c.joins[alias]
}

// MergeSort unions keys into the accumulated order: new fields append,
// existing fields keep their position and take the new direction. The
// previous $sort stage is replaced by one at the end of the pipeline
// reflecting the whole order.
func (c *Context) MergeSort(p *pipeline.Pipeline, keys ...SortKey) {
	if len(keys) == 0 {
		return
	}
	for _, k := range keys {
		c.sort.Set(k.Field, k.Direction)
	}
	if c.sortStage != nil {
		p.Remove(c.sortStage)
	}
	stage := pipeline.NewSort()
	for pair := c.sort.Oldest(); pair != nil; pair = pair.Next() {
		stage.Fields.Set(pair.Key, pair.Value)
	}
	c.sortStage = stage
	p.Append(stage)
}

// SortOrder returns the accumulated sort order.
func (c *Context) SortOrder() []SortKey {
	out := make([]SortKey, 0, c.sort.Len())
	for pair := c.sort.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, SortKey{Field: pair.Key, Direction: pair.Value})
	}
	return out
}

// AddComputedField appends an $addFields stage for name unless one was
// already emitted. It reports whether a stage was added.
func (c *Context) AddComputedField(p *pipeline.Pipeline, name string, expr any) bool {
	if c.computed[name] {
		return false
	}
	c.computed[name] = true
	p.Append(&pipeline.AddFields{Fields: pipeline.M{name: expr}})
	return true
}

// AddPredicate adds e to the active broadcast builder, or appends it as a
// $match stage when no builder is active. Nil predicates are ignored.
func (c *Context) AddPredicate(p *pipeline.Pipeline, e pipeline.Expr) {
	if e == nil {
		return
	}
	if c.match != nil {
		c.match.Add(e)
		return
	}
	p.Append(&pipeline.Match{Expr: e})
}

// Broadcast runs fn with a fresh $or builder installed so that every
// predicate fn contributes ends up in one disjunction. The previous builder
// is restored afterwards and the disjunction is committed to it, or to the
// pipeline as a single $match when there is none.
func (c *Context) Broadcast(p *pipeline.Pipeline, fn func() error) error {
	prev := c.match
	b := pipeline.NewOrBuilder()
	c.match = b
	err := fn()
	c.match = prev
	if err != nil {
		return err
	}
	c.AddPredicate(p, b.Expr())
	return nil
}

// SearchBuilder returns the shared $search stage, creating it on the given
// index and placing it first in the pipeline on first use.
func (c *Context) SearchBuilder(p *pipeline.Pipeline, index string) *pipeline.Search {
	if c.search == nil {
		c.search = pipeline.NewSearch(index)
		p.Prepend(c.search)
	}
	return c.search
}

// WithParameter runs fn with Parameter set to param and restores the
// previous parameter afterwards.
func (c *Context) WithParameter(param *Parameter, fn func() error) error {
	prev := c.Parameter
	c.Parameter = param
	defer func() { c.Parameter = prev }()
	return fn()
}
