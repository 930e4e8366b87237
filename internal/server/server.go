// Package server exposes a Compiler over HTTP/JSON and gRPC and streams the
// compilation events it produces to SSE clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/alfredjeanlab/pipefilter/internal/compiler"
	"github.com/alfredjeanlab/pipefilter/internal/events"
	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/query"
)

// DefaultOperation is the operation name used when a request names none.
const DefaultOperation = "collection"

// errNotReady is returned while no compiler has been installed.
var errNotReady = errors.New("compiler not ready")

// Server serves compilations. The compiler can be replaced at any time, for
// example after the catalog was reloaded; in-flight requests keep the one
// they started with.
type Server struct {
	compiler atomic.Pointer[compiler.Compiler]
	hub      *sseHub
	logger   *slog.Logger
}

// New returns a Server without a compiler. Requests fail with 503 until
// SetCompiler is called.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{hub: newSSEHub(), logger: logger}
}

// SetCompiler installs c for subsequent requests.
func (s *Server) SetCompiler(c *compiler.Compiler) {
	s.compiler.Store(c)
}

// Events returns a publisher that feeds the server's SSE stream. Pass it to
// the compiler so that its events reach streaming clients.
func (s *Server) Events() events.Publisher {
	return hubPublisher{hub: s.hub}
}

func (s *Server) current() (*compiler.Compiler, error) {
	c := s.compiler.Load()
	if c == nil {
		return nil, errNotReady
	}
	return c, nil
}

// CompileResponse is the transport shape of one compilation.
type CompileResponse struct {
	ID       string          `json:"id"`
	Resource string          `json:"resource"`
	Entity   string          `json:"entity"`
	Pipeline json.RawMessage `json:"pipeline"`
}

// compile decodes rawQuery and compiles it for resource.
func (s *Server) compile(ctx context.Context, resource, op, rawQuery string) (*CompileResponse, error) {
	c, err := s.current()
	if err != nil {
		return nil, err
	}
	values, err := query.Decode(rawQuery)
	if err != nil {
		return nil, inputError(err.Error())
	}
	if op == "" {
		op = DefaultOperation
	}
	res, err := c.Compile(ctx, resource, op, values)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(res.Pipeline)
	if err != nil {
		return nil, err
	}
	return &CompileResponse{ID: res.ID, Resource: res.Resource, Entity: res.Entity, Pipeline: raw}, nil
}

func (s *Server) describe(resource string) ([]filter.ParameterDescriptor, error) {
	c, err := s.current()
	if err != nil {
		return nil, err
	}
	return c.Describe(resource)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

type errorClass int

const (
	classInternal errorClass = iota
	classInput
	classNotFound
	classUnavailable
	classCanceled
)

// classify maps compiler errors onto transport-neutral classes.
func classify(err error) errorClass {
	var in inputError
	switch {
	case errors.As(err, &in), errors.Is(err, compiler.ErrMissingParameter):
		return classInput
	case errors.Is(err, compiler.ErrUnknownResource):
		return classNotFound
	case errors.Is(err, errNotReady):
		return classUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return classCanceled
	}
	return classInternal
}
