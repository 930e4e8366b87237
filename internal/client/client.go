// Package client talks to a running pipefilter service over HTTP/JSON or
// gRPC so that CLI commands can compile remotely.
package client

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/pipefilter/internal/filter"
)

// Client is the transport-agnostic interface used by CLI commands.
type Client interface {
	// Compile compiles rawQuery (a URL query string) for resource. An empty
	// op lets the server choose its default operation.
	Compile(ctx context.Context, resource, op, rawQuery string) (*CompileResult, error)
	Describe(ctx context.Context, resource string) ([]filter.ParameterDescriptor, error)
	Resources(ctx context.Context) ([]string, error)
	Health(ctx context.Context) (string, error)
	Close() error
}

// CompileResult is one remotely compiled pipeline.
type CompileResult struct {
	ID       string          `json:"id"`
	Resource string          `json:"resource"`
	Entity   string          `json:"entity"`
	Pipeline json.RawMessage `json:"pipeline"`
}
