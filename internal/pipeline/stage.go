package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Stage is one step of a pipeline. Stages are pointers and are compared by
// identity when removed from a pipeline.
type Stage interface {
	// Operator returns the stage operator, e.g. "$match".
	Operator() string
	// Body returns the JSON-encodable stage specification.
	Body() any
}

// Lookup joins a related collection into the current document under As.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

func (l *Lookup) Operator() string { return "$lookup" }

func (l *Lookup) Body() any {
	return M{
		"from":         l.From,
		"localField":   l.LocalField,
		"foreignField": l.ForeignField,
		"as":           l.As,
	}
}

// Unwind flattens the array produced by a Lookup.
type Unwind struct {
	Path                       string
	PreserveNullAndEmptyArrays bool
}

func (u *Unwind) Operator() string { return "$unwind" }

func (u *Unwind) Body() any {
	return M{
		"path":                       "$" + u.Path,
		"preserveNullAndEmptyArrays": u.PreserveNullAndEmptyArrays,
	}
}

// Match filters documents with a predicate.
type Match struct {
	Expr Expr
}

func (m *Match) Operator() string { return "$match" }

func (m *Match) Body() any {
	if m.Expr == nil {
		return M{}
	}
	return m.Expr.Document()
}

// Direction is a sort direction.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// String returns "asc" or "desc".
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection parses "asc" or "desc", ignoring case and surrounding space.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	}
	return 0, fmt.Errorf("invalid sort direction %q", s)
}

// Sort orders documents by its fields in insertion order.
type Sort struct {
	Fields *orderedmap.OrderedMap[string, Direction]
}

// NewSort returns an empty sort stage.
func NewSort() *Sort {
	return &Sort{Fields: orderedmap.New[string, Direction]()}
}

func (s *Sort) Operator() string { return "$sort" }

// Body returns the fields as an ordered map so that key order survives
// JSON encoding.
func (s *Sort) Body() any {
	return s.Fields
}

// Keys returns the sort fields in order.
func (s *Sort) Keys() []string {
	keys := make([]string, 0, s.Fields.Len())
	for pair := s.Fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// AddFields derives new fields from expressions.
type AddFields struct {
	Fields M
}

func (a *AddFields) Operator() string { return "$addFields" }

func (a *AddFields) Body() any { return a.Fields }

// Document renders a stage as {operator: body}.
func Document(s Stage) M {
	return M{s.Operator(): s.Body()}
}

// Pipeline is an ordered sequence of stages. It is owned by a single
// compilation and is not safe for concurrent use.
type Pipeline struct {
	stages []Stage
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Append adds stages at the end.
func (p *Pipeline) Append(stages ...Stage) {
	p.stages = append(p.stages, stages...)
}

// Prepend adds a stage at the front.
func (p *Pipeline) Prepend(s Stage) {
	p.stages = append([]Stage{s}, p.stages...)
}

// Remove deletes the given stage and reports whether it was present.
func (p *Pipeline) Remove(s Stage) bool {
	for i, st := range p.stages {
		if st == s {
			p.stages = append(p.stages[:i], p.stages[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Stages returns a copy of the stage list.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Documents renders every stage.
func (p *Pipeline) Documents() []M {
	docs := make([]M, len(p.stages))
	for i, s := range p.stages {
		docs[i] = Document(s)
	}
	return docs
}

// MarshalJSON renders the pipeline as a JSON array of stage documents.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Documents())
}
