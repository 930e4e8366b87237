package filter

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

func TestOrFilter(t *testing.T) {
	f := NewOrFilter(NewBooleanFilter(nil), NewNumericFilter(nil))
	setup(t, f)

	for _, tc := range []struct {
		name string
		raw  string
		want string
	}{
		{"BothContribute", "published=true&pages=100",
			`[{"$match":{"$or":[{"published":{"$eq":true}},{"pages":{"$eq":100}}]}}]`},
		{"SingleTerm", "pages=100", `[{"$match":{"pages":{"$eq":100}}}]`},
		{"Nothing", "title=Dune", `[]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assertPipeline(t, apply(t, tc.raw, f), tc.want)
		})
	}

	p := apply(t, "published=true&pages=100", f)
	if !matchesAll(t, p, map[string]any{"published": false, "pages": int64(100)}) {
		t.Error("document satisfying one branch was excluded")
	}
	if matchesAll(t, p, map[string]any{"published": false, "pages": int64(99)}) {
		t.Error("document satisfying no branch was included")
	}
}

func TestOrFilter_KeepsJoinsOutsideDisjunction(t *testing.T) {
	search := NewSearchFilter(map[string]string{"author.name": "exact"})
	f := NewOrFilter(search, NewBooleanFilter(nil))
	setup(t, f)

	assertPipeline(t, apply(t, "author.name=Le+Guin&published=true", f), `[`+
		`{"$lookup":{"as":"author_lkup","foreignField":"_id","from":"authors","localField":"author"}},`+
		`{"$unwind":{"path":"$author_lkup","preserveNullAndEmptyArrays":true}},`+
		`{"$match":{"$or":[{"author_lkup.name":{"$eq":"Le Guin"}},{"published":{"$eq":true}}]}}]`)
}

func TestFreeTextQueryFilter(t *testing.T) {
	f := NewFreeTextQueryFilter(NewPartialSearchFilter(), []string{"title", "description"})
	setup(t, f)

	p := applyParam(t, f, Parameter{Key: "q", Value: "foo"})
	assertPipeline(t, p, `[{"$match":{"$or":[`+
		`{"title":{"$in":[{"$regularExpression":{"options":"i","pattern":"foo"}}]}},`+
		`{"description":{"$in":[{"$regularExpression":{"options":"i","pattern":"foo"}}]}}]}}]`)

	for _, tc := range []struct {
		name string
		doc  map[string]any
		want bool
	}{
		{"OnlyDescription", map[string]any{"title": "bar", "description": "a Foo story"}, true},
		{"OnlyTitle", map[string]any{"title": "food", "description": nil}, true},
		{"Neither", map[string]any{"title": "bar", "description": "baz"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchesAll(t, p, tc.doc); got != tc.want {
				t.Errorf("matched = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFreeTextQueryFilter_ParameterProperties(t *testing.T) {
	f := NewFreeTextQueryFilter(NewExactFilter(), nil)
	setup(t, f)

	p := applyParam(t, f, Parameter{Key: "q", Properties: []string{"title", "author"}, Value: "/authors/7"})
	assertPipeline(t, p, `[{"$match":{"$or":[{"title":{"$eq":"/authors/7"}},{"author":{"$eq":"7"}}]}}]`)

	if p := applyParam(t, f, Parameter{Key: "q", Value: "x"}); p.Len() != 0 {
		t.Error("free text query without properties should be a no-op")
	}
}

func TestComparisonFilter(t *testing.T) {
	f := NewComparisonFilter(NewExactFilter())
	setup(t, f)

	for _, tc := range []struct {
		name  string
		value any
		want  string
	}{
		{"Operators", query.FromMap(map[string]any{"lte": "9", "gt": "3"}),
			`[{"$match":{"pages":{"$gt":3}}},{"$match":{"pages":{"$lte":9}}}]`},
		{"EmptyOperatorSkipped", query.FromMap(map[string]any{"gte": "", "lt": "5"}),
			`[{"$match":{"pages":{"$lt":5}}}]`},
		{"UnknownOperatorIgnored", query.FromMap(map[string]any{"near": "5"}), `[]`},
		{"ScalarIgnored", "5", `[]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assertPipeline(t, applyParam(t, f, Parameter{Key: "pages", Value: tc.value}), tc.want)
		})
	}
}

func TestComparisonFilter_MatchesDirectApplication(t *testing.T) {
	decorated := NewComparisonFilter(NewExactFilter())
	setup(t, decorated)
	got := applyParam(t, decorated, Parameter{Key: "pages", Value: query.FromMap(map[string]any{"gt": "3", "lte": "9"})})

	exact := NewExactFilter()
	setup(t, exact)
	want := pipeline.New()
	fc := NewContext(nil)
	for _, param := range []Parameter{
		{Key: "pages[gt]", Property: "pages", Value: "3", Extra: map[string]any{"comparisonMethod": "gt"}},
		{Key: "pages[lte]", Property: "pages", Value: "9", Extra: map[string]any{"comparisonMethod": "lte"}},
	} {
		if err := fc.WithParameter(&param, func() error { return exact.Apply(want, "Book", nil, fc) }); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if g, w := pipelineJSON(t, got), pipelineJSON(t, want); g != w {
		t.Errorf("decorated = %s, direct = %s", g, w)
	}
}

func TestComparisonFilter_InsideBroadcast(t *testing.T) {
	f := NewFreeTextQueryFilter(NewComparisonFilter(NewExactFilter()), []string{"pages", "price"})
	setup(t, f)

	p := applyParam(t, f, Parameter{Key: "size", Value: query.FromMap(map[string]any{"gte": "2"})})
	assertPipeline(t, p, `[{"$match":{"$or":[{"pages":{"$gte":2}},{"price":{"$gte":2}}]}}]`)
}

func TestCombinators_MissingInnerFilter(t *testing.T) {
	for _, tc := range []struct {
		name   string
		filter string
		f      Filter
	}{
		{"EmptyOr", "or", NewOrFilter()},
		{"NilOrBranch", "or", NewOrFilter(nil)},
		{"Comparison", "comparison", NewComparisonFilter(nil)},
		{"FreeText", "free_text", NewFreeTextQueryFilter(nil, []string{"title"})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			param := Parameter{Key: "pages", Value: query.FromMap(map[string]any{"gt": "1"})}
			fc := NewContext(query.MustDecode("pages=1"))
			err := fc.WithParameter(&param, func() error { return tc.f.Apply(pipeline.New(), "Book", nil, fc) })

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Apply() = %v, want *ConfigError", err)
			}
			if cfgErr.Filter != tc.filter {
				t.Errorf("Filter = %q, want %q", cfgErr.Filter, tc.filter)
			}
			if !errors.Is(err, ErrMissingFilter) {
				t.Errorf("error %v does not wrap ErrMissingFilter", err)
			}
		})
	}
}

func TestComparisonFilter_DescribeSchema(t *testing.T) {
	f := NewComparisonFilter(NewExactFilter())
	s := f.DescribeSchema(Parameter{Key: "pages"})
	if s.Type != "object" {
		t.Fatalf("Type = %q", s.Type)
	}
	var keys []string
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
		if pair.Value.Type == "array" {
			t.Errorf("%s accepts a list", pair.Key)
		}
	}
	if got := len(keys); got != 4 || keys[0] != "gt" || keys[3] != "lte" {
		t.Errorf("properties = %v", keys)
	}

	d := f.DescribeParameters(Parameter{Key: "pages"})
	if len(d) != 4 || d[1].Name != "pages[gte]" || d[1].Property != "pages" {
		t.Errorf("DescribeParameters() = %+v", d)
	}
}

func TestInjectAndValidate_Recurse(t *testing.T) {
	exact := NewExactFilter()
	f := NewOrFilter(NewComparisonFilter(exact), NewBooleanFilter(nil))
	setup(t, f)
	if exact.catalog == nil || exact.logger == nil {
		t.Fatal("collaborators were not injected into the nested filter")
	}
	if err := Validate(f); err != nil {
		t.Errorf("Validate: %v", err)
	}

	broken := NewOrFilter(NewComparisonFilter(nil), NewOrderFilter(map[string]string{"title": "up"}))
	err := Validate(broken)
	if !errors.Is(err, ErrMissingFilter) {
		t.Errorf("Validate() = %v, want ErrMissingFilter", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Validate() = %v, want *ConfigError", err)
	}
}
