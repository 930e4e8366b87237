package server

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/compiler"
)

const testCatalogTOML = `
[[entity]]
name = "Book"
collection = "books"
resource_path = "/books"

  [[entity.field]]
  name = "id"
  type = "id"

  [[entity.field]]
  name = "title"
  type = "string"

  [[entity.field]]
  name = "published"
  type = "bool"
`

const testFiltersTOML = `
[[resource]]
name = "books"
entity = "Book"

  [[resource.filter]]
  kind = "boolean"

  [[resource.parameter]]
  key = "tenant"
  property = "title"
  required = true
  filter = { kind = "exact" }
`

// newTestServer returns a Server with a compiler wired to its event hub.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cat, err := catalog.Load(strings.NewReader(testCatalogTOML))
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	file, err := compiler.Load(strings.NewReader(testFiltersTOML))
	if err != nil {
		t.Fatalf("compiler.Load: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(logger)
	c, err := compiler.New(cat, file, compiler.WithLogger(logger), compiler.WithPublisher(s.Events()))
	if err != nil {
		t.Fatalf("compiler.New: %v", err)
	}
	s.SetCompiler(c)
	return s
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want errorClass
	}{
		{"Input", inputError("bad query"), classInput},
		{"MissingParameter", compiler.ErrMissingParameter, classInput},
		{"UnknownResource", compiler.ErrUnknownResource, classNotFound},
		{"NotReady", errNotReady, classUnavailable},
		{"Other", io.ErrUnexpectedEOF, classInternal},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Errorf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
