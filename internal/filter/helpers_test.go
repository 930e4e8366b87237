package filter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

func testCatalog(t *testing.T) *catalog.Static {
	t.Helper()
	c, err := catalog.New(
		catalog.Entity{
			Name:         "Book",
			Collection:   "books",
			ResourcePath: "/books",
			Fields: []catalog.Field{
				{Name: "id", Type: catalog.TypeID},
				{Name: "title", Type: catalog.TypeString},
				{Name: "description", Type: catalog.TypeString, Nullable: true},
				{Name: "pages", Type: catalog.TypeInt},
				{Name: "price", Type: catalog.TypeFloat},
				{Name: "published", Type: catalog.TypeBool},
				{Name: "publishedAt", Type: catalog.TypeDate, Nullable: true},
				{Name: "uid", Type: catalog.TypeUUID},
			},
			Associations: []catalog.Association{
				{Name: "author", Target: "Author", Kind: catalog.KindReference},
				{Name: "cover", Target: "Image", Kind: catalog.KindEmbed},
			},
		},
		catalog.Entity{
			Name:         "Author",
			Collection:   "authors",
			ResourcePath: "/authors",
			Fields: []catalog.Field{
				{Name: "id", Type: catalog.TypeID},
				{Name: "name", Type: catalog.TypeString},
			},
			Associations: []catalog.Association{
				{Name: "books", Target: "Book", Kind: catalog.KindReference, Many: true, MappedBy: "author"},
				{Name: "publisher", Target: "Publisher", Kind: catalog.KindReference},
			},
		},
		catalog.Entity{
			Name:       "Publisher",
			Collection: "publishers",
			Fields: []catalog.Field{
				{Name: "id", Type: catalog.TypeID},
				{Name: "name", Type: catalog.TypeString},
			},
		},
		catalog.Entity{
			Name:   "Image",
			Fields: []catalog.Field{{Name: "url", Type: catalog.TypeString}},
		},
	)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

// setup injects the test catalog and a buffered logger into f.
func setup(t *testing.T, f Filter) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Inject(f, Collaborators{
		Catalog: testCatalog(t),
		Logger:  slog.New(slog.NewTextHandler(&buf, nil)),
	})
	return &buf
}

func contextFor(raw string) *Context {
	return NewContext(query.MustDecode(raw))
}

func newPipeline() *pipeline.Pipeline {
	return pipeline.New()
}

// apply runs filters in order against a fresh Book pipeline for raw.
func apply(t *testing.T, raw string, filters ...Filter) *pipeline.Pipeline {
	t.Helper()
	return pipelineFor(t, nil, "Book", raw, filters...)
}

func pipelineFor(t *testing.T, first Filter, entity, raw string, rest ...Filter) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New()
	fc := contextFor(raw)
	filters := rest
	if first != nil {
		filters = append([]Filter{first}, rest...)
	}
	for _, f := range filters {
		if err := f.Apply(p, entity, nil, fc); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	return p
}

func pipelineJSON(t *testing.T, p *pipeline.Pipeline) string {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return string(data)
}

func assertPipeline(t *testing.T, p *pipeline.Pipeline, want string) {
	t.Helper()
	if got := pipelineJSON(t, p); got != want {
		t.Errorf("pipeline mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 13, 30, 0, 0, time.UTC)
}

// matchExprs returns the predicates of every $match stage.
func matchExprs(p *pipeline.Pipeline) []pipeline.Expr {
	var out []pipeline.Expr
	for _, s := range p.Stages() {
		if m, ok := s.(*pipeline.Match); ok {
			out = append(out, m.Expr)
		}
	}
	return out
}

// matchesAll evaluates every $match stage of p against doc.
func matchesAll(t *testing.T, p *pipeline.Pipeline, doc map[string]any) bool {
	t.Helper()
	for _, e := range matchExprs(p) {
		if !eval(t, e, doc) {
			return false
		}
	}
	return true
}

// eval is a small in-memory interpreter for the predicates the filters
// emit. Missing fields are null.
func eval(t *testing.T, e pipeline.Expr, doc map[string]any) bool {
	t.Helper()
	switch x := e.(type) {
	case pipeline.Logical:
		switch x.Op {
		case "$and":
			for _, term := range x.Terms {
				if !eval(t, term, doc) {
					return false
				}
			}
			return true
		case "$or":
			for _, term := range x.Terms {
				if eval(t, term, doc) {
					return true
				}
			}
			return false
		}
	case pipeline.Comparison:
		v := lookupPath(doc, x.Field)
		switch x.Op {
		case pipeline.OpEq:
			return equal(v, x.Value)
		case pipeline.OpNe:
			return !equal(v, x.Value)
		case pipeline.OpIn:
			for _, want := range x.Value.(pipeline.A) {
				if equal(v, want) {
					return true
				}
			}
			return false
		case pipeline.OpGt, pipeline.OpGte, pipeline.OpLt, pipeline.OpLte:
			c, ok := compare(v, x.Value)
			if !ok {
				return false
			}
			switch x.Op {
			case pipeline.OpGt:
				return c > 0
			case pipeline.OpGte:
				return c >= 0
			case pipeline.OpLt:
				return c < 0
			}
			return c <= 0
		}
	}
	t.Fatalf("eval: unsupported expression %#v", e)
	return false
}

func lookupPath(doc map[string]any, path string) any {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

func equal(v, want any) bool {
	if want == nil {
		return v == nil
	}
	if re, ok := want.(pipeline.Regex); ok {
		s, ok := v.(string)
		if !ok {
			return false
		}
		pattern := re.Pattern
		if strings.Contains(re.Options, "i") {
			pattern = "(?i)" + pattern
		}
		return regexp.MustCompile(pattern).MatchString(s)
	}
	if c, ok := compare(v, want); ok {
		return c == 0
	}
	return v == want
}

func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if ta, ok := asTime(a); ok {
		tb, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case pipeline.Date:
		return time.Time(x), true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
