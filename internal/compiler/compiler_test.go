package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/events"
	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

type published struct {
	topic string
	event any
}

// recorder is an in-memory events.Publisher.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{topic, event})
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.topic)
	}
	return out
}

func testCatalog(t *testing.T) *catalog.Static {
	t.Helper()
	c, err := catalog.LoadFile("testdata/catalog.toml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return c
}

func newTestCompiler(t *testing.T, opts ...Option) (*Compiler, *bytes.Buffer) {
	t.Helper()
	file, err := LoadFile("testdata/filters.toml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	var logs bytes.Buffer
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))}, opts...)
	c, err := New(testCatalog(t), file, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, &logs
}

func compileJSON(t *testing.T, c *Compiler, resource, raw string) string {
	t.Helper()
	res, err := c.Compile(context.Background(), resource, "list", query.MustDecode(raw))
	if err != nil {
		t.Fatalf("Compile(%s, %q): %v", resource, raw, err)
	}
	data, err := json.Marshal(res.Pipeline)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return string(data)
}

func TestResources(t *testing.T) {
	c, _ := newTestCompiler(t)
	got := c.Resources()
	if len(got) != 2 || got[0] != "books" || got[1] != "authors" {
		t.Errorf("Resources() = %v", got)
	}
}

func TestCompile(t *testing.T) {
	c, _ := newTestCompiler(t)

	for _, tc := range []struct {
		name     string
		resource string
		raw      string
		want     string
	}{
		{"Empty", "books", "", `[]`},
		{
			"FiltersThenParameters", "books",
			"title=dune&pages[between]=100..200&order[title]=&q=foo&size[gt]=3&writer=/authors/7",
			`[` +
				`{"$match":{"title":{"$in":[{"$regularExpression":{"options":"i","pattern":"dune"}}]}}},` +
				`{"$match":{"$and":[{"pages":{"$gte":100}},{"pages":{"$lte":200}}]}},` +
				`{"$sort":{"title":1}},` +
				`{"$match":{"$or":[` +
				`{"title":{"$in":[{"$regularExpression":{"options":"i","pattern":"foo"}}]}},` +
				`{"description":{"$in":[{"$regularExpression":{"options":"i","pattern":"foo"}}]}}]}},` +
				`{"$match":{"pages":{"$gt":3}}},` +
				`{"$match":{"author":{"$eq":"7"}}}]`,
		},
		{
			"NestedSearchJoins", "books", "author.name=Le+Guin",
			`[` +
				`{"$lookup":{"as":"author_lkup","foreignField":"_id","from":"authors","localField":"author"}},` +
				`{"$unwind":{"path":"$author_lkup","preserveNullAndEmptyArrays":true}},` +
				`{"$match":{"author_lkup.name":{"$eq":"Le Guin"}}}]`,
		},
		{
			"SearchStageFirst", "books", "published=true&text=dune",
			`[{"$search":{"facet":{` +
				`"facets":{"genres":{"type":"string","path":"genre","numBuckets":5}},` +
				`"operator":{"compound":{"must":[{"text":{"fuzzy":{"maxEdits":1},"path":["title","description"],"query":"dune"}}]}}},` +
				`"index":"books"}},` +
				`{"$match":{"published":{"$eq":true}}}]`,
		},
		{
			"OrBranches", "authors", "name=jo&exists[publisher]=false&tenant=acme",
			`[` +
				`{"$match":{"$or":[{"name":{"$in":[{"$regularExpression":{"options":"i","pattern":"^jo"}}]}},{"publisher":{"$eq":null}}]}},` +
				`{"$match":{"name":{"$eq":"acme"}}}]`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := compileJSON(t, c, tc.resource, tc.raw); got != tc.want {
				t.Errorf("pipeline mismatch:\n got: %s\nwant: %s", got, tc.want)
			}
		})
	}
}

func TestCompile_SortAccumulates(t *testing.T) {
	c, _ := newTestCompiler(t)
	res, err := c.Compile(context.Background(), "books", "list", query.MustDecode("order[id]=&order[title]=desc"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.Sort) != 2 || res.Sort[0].Field != "_id" || res.Sort[1].Field != "title" {
		t.Errorf("Sort = %v", res.Sort)
	}
	if !strings.HasPrefix(res.ID, "pl-") || res.Entity != "Book" {
		t.Errorf("result = %+v", res)
	}
}

func TestCompile_Clock(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 6, 15, 13, 30, 0, 0, time.UTC) }
	c, _ := newTestCompiler(t, WithClock(now))
	got := compileJSON(t, c, "books", "publishedAt[after]=today")
	want := `[{"$match":{"$or":[{"publishedAt":{"$gte":{"$date":"2024-06-15T00:00:00Z"}}},{"publishedAt":{"$eq":null}}]}}]`
	if got != want {
		t.Errorf("pipeline mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestCompile_InvalidParameterIgnored(t *testing.T) {
	c, logs := newTestCompiler(t)

	for _, raw := range []string{"size=5", "q[nested]=x", "writer[a]=b"} {
		t.Run(raw, func(t *testing.T) {
			if got := compileJSON(t, c, "books", raw); got != `[]` {
				t.Errorf("pipeline = %s, want []", got)
			}
		})
	}
	if !strings.Contains(logs.String(), "invalid parameter ignored") {
		t.Errorf("log = %q", logs)
	}
}

func TestCompile_Errors(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestCompiler(t, WithPublisher(rec))

	_, err := c.Compile(context.Background(), "magazines", "list", query.New())
	if !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Compile(magazines) = %v, want ErrUnknownResource", err)
	}

	_, err = c.Compile(context.Background(), "authors", "list", query.MustDecode("name=jo&tenant="))
	if !errors.Is(err, ErrMissingParameter) {
		t.Errorf("Compile(authors) = %v, want ErrMissingParameter", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Compile(ctx, "books", "list", query.New()); !errors.Is(err, context.Canceled) {
		t.Errorf("Compile(canceled) = %v, want context.Canceled", err)
	}

	want := []string{events.TopicPipelineFailed, events.TopicPipelineFailed, events.TopicPipelineFailed}
	if got := rec.topics(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("topics = %v, want %v", got, want)
	}
}

func TestCompile_PublishesEvent(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestCompiler(t, WithPublisher(rec))

	res, err := c.Compile(context.Background(), "books", "list", query.MustDecode("published=false"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("published %d events", len(rec.events))
	}
	ev, ok := rec.events[0].event.(events.PipelineCompiled)
	if !ok || rec.events[0].topic != events.TopicPipelineCompiled {
		t.Fatalf("event = %#v", rec.events[0])
	}
	if ev.ID != res.ID || ev.Operation != "list" || ev.Stages != 1 {
		t.Errorf("event = %+v", ev)
	}
	if string(ev.Pipeline) != `[{"$match":{"published":{"$eq":false}}}]` {
		t.Errorf("event pipeline = %s", ev.Pipeline)
	}
}

func TestDescribe(t *testing.T) {
	c, _ := newTestCompiler(t)

	got, err := c.Describe("books")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	byName := make(map[string]filter.ParameterDescriptor, len(got))
	for _, d := range got {
		byName[d.Name] = d
	}
	for _, name := range []string{
		"title", "title[]", "author.name", "pages[between]", "pages[lte]",
		"publishedAt[strictly_after]", "published", "order[title]", "order[id]",
		"q", "size[gt]", "size[lte]", "writer", "writer[]", "text",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("Describe(books) lacks %q", name)
		}
	}
	if d := byName["q"]; d.Description != "Free text over title and description." {
		t.Errorf("q description = %q", d.Description)
	}
	if d := byName["size[gt]"]; d.Property != "pages" {
		t.Errorf("size[gt] property = %q", d.Property)
	}

	authors, err := c.Describe("authors")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	var tenant filter.ParameterDescriptor
	for _, d := range authors {
		if d.Name == "tenant" {
			tenant = d
		}
	}
	if !tenant.Required {
		t.Errorf("tenant = %+v, want required", tenant)
	}

	if _, err := c.Describe("magazines"); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Describe(magazines) = %v", err)
	}
}

func TestSchema(t *testing.T) {
	c, _ := newTestCompiler(t)

	s, err := c.Schema("books")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	var keys []string
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	if strings.Join(keys, ",") != "q,size,writer,text" {
		t.Errorf("schema properties = %v", keys)
	}
	if size, _ := s.Properties.Get("size"); size.Type != "object" {
		t.Errorf("size schema type = %q", size.Type)
	}

	a, err := c.Schema("authors")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(a.Required) != 1 || a.Required[0] != "tenant" {
		t.Errorf("required = %v", a.Required)
	}
}

func TestNew_Errors(t *testing.T) {
	cat := testCatalog(t)
	for _, tc := range []struct {
		name       string
		config     string
		wantConfig bool
		wantErr    error
	}{
		{"UnknownKind", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.filter]]
  kind = "fuzzy"`, false, ErrUnknownKind},
		{"UnknownEntity", `
[[resource]]
name = "magazines"
entity = "Magazine"`, false, nil},
		{"DuplicateResource", `
[[resource]]
name = "books"
entity = "Book"
[[resource]]
name = "books"
entity = "Book"`, false, nil},
		{"UnknownOption", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.filter]]
  kind = "order"
  options = { direction = "asc" }`, false, nil},
		{"OptionOnPlainFilter", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.filter]]
  kind = "boolean"
  options = { strict = true }`, false, nil},
		{"UnknownNullsComparison", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.filter]]
  kind = "order"
  options = { nulls_comparison = "sometimes" }`, false, nil},
		{"UnknownStrategy", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.filter]]
  kind = "search"
  properties = { title = "fuzzy" }`, true, filter.ErrUnknownStrategy},
		{"ComparisonWithoutFilter", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.parameter]]
  key = "size"
  filter = { kind = "comparison" }`, true, filter.ErrMissingFilter},
		{"EmptyOr", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.filter]]
  kind = "or"`, true, filter.ErrMissingFilter},
		{"DuplicateParameter", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.parameter]]
  key = "q"
  filter = { kind = "exact" }
  [[resource.parameter]]
  key = "q"
  filter = { kind = "partial" }`, false, nil},
		{"ParameterWithoutKey", `
[[resource]]
name = "books"
entity = "Book"
  [[resource.parameter]]
  filter = { kind = "exact" }`, false, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			file, err := Load(strings.NewReader(tc.config))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			_, err = New(cat, file)
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *filter.ConfigError
			if got := errors.As(err, &cfgErr); got != tc.wantConfig {
				t.Errorf("errors.As(ConfigError) = %v, want %v (err: %v)", got, tc.wantConfig, err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_UnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader(`
[[resource]]
name = "books"
entity = "Book"
colour = "blue"`))
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("Load() = %v, want unknown key error", err)
	}
}

func TestLoad_NestedOptions(t *testing.T) {
	config := `
[[resource]]
name = "books"
entity = "Book"
  [[resource.parameter]]
  key = "text"
  filter = { kind = "full_text", options = { paths = ["title"], fuzzy = { max_edits = 1 }, facets = { pages = { type = "number", path = "pages", boundaries = [0, 100, 500] } } } }`
	file, err := Load(strings.NewReader(config))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := New(testCatalog(t), file)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := compileJSON(t, c, "books", "text=dune")
	for _, want := range []string{`"fuzzy":{"maxEdits":1}`, `"facets":{"pages":`, `"boundaries":[0,100,500]`} {
		if !strings.Contains(got, want) {
			t.Errorf("pipeline missing %s:\n%s", want, got)
		}
	}
}

func TestLoad_UnknownOption(t *testing.T) {
	file, err := Load(strings.NewReader(`
[[resource]]
name = "books"
entity = "Book"
  [[resource.parameter]]
  key = "text"
  filter = { kind = "full_text", options = { paths = ["title"], fuzzy = { max_edit = 1 } } }`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := New(testCatalog(t), file); err == nil || !strings.Contains(err.Error(), "max_edit") {
		t.Errorf("New() = %v, want unused option error", err)
	}
}
