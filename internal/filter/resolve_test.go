package filter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
)

func TestResolve(t *testing.T) {
	cat := testCatalog(t)
	for _, tc := range []struct {
		entity     string
		path       string
		matchField string
		joins      []Join
	}{
		{"Book", "title", "title", nil},
		{"Book", "id", "_id", nil},
		{"Book", "cover.url", "cover.url", nil},
		{"Book", "author", "author", nil},
		{"Book", "author.name", "author_lkup.name", []Join{
			{Association: "author", Target: "Author", From: "authors", LocalField: "author", ForeignField: "_id", Alias: "author_lkup"},
		}},
		{"Book", "author.publisher.name", "author_lkup.publisher_lkup.name", []Join{
			{Association: "author", Target: "Author", From: "authors", LocalField: "author", ForeignField: "_id", Alias: "author_lkup"},
			{Association: "publisher", Target: "Publisher", From: "publishers", LocalField: "author_lkup.publisher", ForeignField: "_id", Alias: "author_lkup.publisher_lkup"},
		}},
		{"Author", "books.title", "books_lkup.title", []Join{
			{Association: "books", Target: "Book", From: "books", LocalField: "_id", ForeignField: "author", Alias: "books_lkup"},
		}},
	} {
		t.Run(tc.path, func(t *testing.T) {
			pp, err := Resolve(cat, tc.entity, tc.path)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if pp.MatchField != tc.matchField {
				t.Errorf("MatchField = %q, want %q", pp.MatchField, tc.matchField)
			}
			if !reflect.DeepEqual(pp.Joins, tc.joins) {
				t.Errorf("Joins = %+v, want %+v", pp.Joins, tc.joins)
			}
		})
	}
}

func TestResolve_LeafDescriptors(t *testing.T) {
	cat := testCatalog(t)

	pp, err := Resolve(cat, "Book", "author.name")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pp.Entity != "Author" || pp.Field != "name" || !pp.IsNested() || pp.IsAssociation() {
		t.Errorf("unexpected path %+v", pp)
	}

	pp, err = Resolve(cat, "Author", "books")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !pp.IsAssociation() || pp.LeafAssociation.OwningSide() {
		t.Errorf("Author.books should be an inverse-side association leaf: %+v", pp)
	}
}

func TestResolve_NotResolvable(t *testing.T) {
	cat := testCatalog(t)
	for _, path := range []string{"", "nope", "title.length", "author.nope", "nope.name"} {
		if _, err := Resolve(cat, "Book", path); !errors.Is(err, ErrNotResolvable) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotResolvable", path, err)
		}
	}
}

func TestIdempotentJoins(t *testing.T) {
	f := NewSearchFilter(map[string]string{"author.name": "exact"})
	setup(t, f)

	p := pipeline.New()
	fc := contextFor("author.name=Ann")
	for range 2 {
		if err := f.Apply(p, "Book", nil, fc); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	var lookups int
	var aliases []string
	for _, s := range p.Stages() {
		switch st := s.(type) {
		case *pipeline.Lookup:
			lookups++
			aliases = append(aliases, st.As)
		case *pipeline.Match:
			if c, ok := st.Expr.(pipeline.Comparison); !ok || c.Field != "author_lkup.name" {
				t.Errorf("match does not reference the join alias: %#v", st.Expr)
			}
		}
	}
	if lookups != 1 || aliases[0] != "author_lkup" {
		t.Errorf("lookups = %d (%v), want exactly one author_lkup", lookups, aliases)
	}
	if p.Len() != 4 {
		t.Errorf("stage count = %d, want lookup, unwind and two matches", p.Len())
	}
}

func TestLookupStages(t *testing.T) {
	f := NewSearchFilter(map[string]string{"author.publisher.name": "exact"})
	setup(t, f)

	p := apply(t, "author.publisher.name=Acme", f)
	assertPipeline(t, p, `[`+
		`{"$lookup":{"as":"author_lkup","foreignField":"_id","from":"authors","localField":"author"}},`+
		`{"$unwind":{"path":"$author_lkup","preserveNullAndEmptyArrays":true}},`+
		`{"$lookup":{"as":"author_lkup.publisher_lkup","foreignField":"_id","from":"publishers","localField":"author_lkup.publisher"}},`+
		`{"$unwind":{"path":"$author_lkup.publisher_lkup","preserveNullAndEmptyArrays":true}},`+
		`{"$match":{"author_lkup.publisher_lkup.name":{"$eq":"Acme"}}}]`)
}
