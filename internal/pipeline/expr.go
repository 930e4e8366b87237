// Package pipeline models aggregation pipeline stages and match predicates.
//
// Documents are rendered in the shape of MongoDB Extended JSON v2, so a
// marshalled pipeline can be handed to any driver that accepts relaxed
// extended JSON.
package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// M is an unordered document.
type M = map[string]any

// A is an array value.
type A = []any

// Op is a field-level query operator.
type Op string

const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpIn     Op = "$in"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpExists Op = "$exists"
)

// IsValid reports whether the operator is a known value.
func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpIn, OpGt, OpGte, OpLt, OpLte, OpExists:
		return true
	}
	return false
}

// Expr is a node of a match predicate.
type Expr interface {
	Document() M
}

// Comparison is a predicate on a single field.
type Comparison struct {
	Field string
	Op    Op
	Value any
}

// Document renders {field: {op: value}}.
func (c Comparison) Document() M {
	return M{c.Field: M{string(c.Op): c.Value}}
}

// Logical joins child predicates with $and or $or.
type Logical struct {
	Op    string
	Terms []Expr
}

// Document renders {op: [terms...]}.
func (l Logical) Document() M {
	terms := make(A, len(l.Terms))
	for i, t := range l.Terms {
		terms[i] = t.Document()
	}
	return M{l.Op: terms}
}

// Compare builds a comparison predicate.
func Compare(field string, op Op, value any) Expr {
	return Comparison{Field: field, Op: op, Value: value}
}

// Eq builds an equality predicate.
func Eq(field string, value any) Expr {
	return Comparison{Field: field, Op: OpEq, Value: value}
}

// In builds a set-membership predicate. A single value still renders as $in
// so that regex values keep their pattern semantics.
func In(field string, values ...any) Expr {
	return Comparison{Field: field, Op: OpIn, Value: A(values)}
}

// IsNull matches documents where field is null or missing.
func IsNull(field string) Expr {
	return Comparison{Field: field, Op: OpEq, Value: nil}
}

// NotNull matches documents where field holds a non-null value.
func NotNull(field string) Expr {
	return Comparison{Field: field, Op: OpNe, Value: nil}
}

// And combines terms; nil terms are skipped and a single term is returned as is.
func And(terms ...Expr) Expr {
	return logical("$and", terms)
}

// Or combines terms; nil terms are skipped and a single term is returned as is.
func Or(terms ...Expr) Expr {
	return logical("$or", terms)
}

func logical(op string, terms []Expr) Expr {
	kept := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if t != nil {
			kept = append(kept, t)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Logical{Op: op, Terms: kept}
}

// Regex is a regular expression value.
type Regex struct {
	Pattern string
	Options string
}

// MarshalJSON renders the canonical extended JSON form.
func (r Regex) MarshalJSON() ([]byte, error) {
	return json.Marshal(M{"$regularExpression": M{"pattern": r.Pattern, "options": r.Options}})
}

// Date is a UTC datetime value.
type Date time.Time

// MarshalJSON renders {"$date": "<RFC 3339>"}.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(M{"$date": time.Time(d).UTC().Format(time.RFC3339Nano)})
}

// UUID is a binary subtype 4 value.
type UUID uuid.UUID

// MarshalJSON renders {"$uuid": "<canonical>"}.
func (u UUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(M{"$uuid": uuid.UUID(u).String()})
}

// ObjectID is a 12-byte document identifier in hex form.
type ObjectID string

// MarshalJSON renders {"$oid": "<hex>"}.
func (o ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(M{"$oid": string(o)})
}

// Builder accumulates predicates that are later combined with one logical
// operator. Combinator filters install a builder on the filter context so that
// the predicates of several inner applications end up in a single $match.
type Builder struct {
	op    string
	terms []Expr
}

// NewOrBuilder returns a builder that joins its terms with $or.
func NewOrBuilder() *Builder {
	return &Builder{op: "$or"}
}

// NewAndBuilder returns a builder that joins its terms with $and.
func NewAndBuilder() *Builder {
	return &Builder{op: "$and"}
}

// Add appends a term. Nil terms are ignored.
func (b *Builder) Add(e Expr) {
	if e != nil {
		b.terms = append(b.terms, e)
	}
}

// Len returns the number of accumulated terms.
func (b *Builder) Len() int {
	return len(b.terms)
}

// Expr returns the combined predicate, or nil when no term was added.
func (b *Builder) Expr() Expr {
	return logical(b.op, b.terms)
}
