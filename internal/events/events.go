// Package events announces compilations on a message bus so that query
// executors and audit consumers can follow what the service produced.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Subjects. Subscribers may use "pipefilter.>" to follow everything.
const (
	TopicPipelineCompiled = "pipefilter.pipeline.compiled"
	TopicPipelineFailed   = "pipefilter.pipeline.failed"
	TopicCatalogReplaced  = "pipefilter.catalog.replaced"
)

// PipelineCompiled is published after a successful compilation.
type PipelineCompiled struct {
	ID        string          `json:"id"`
	Resource  string          `json:"resource"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation,omitempty"`
	Stages    int             `json:"stages"`
	Pipeline  json.RawMessage `json:"pipeline"`
	At        time.Time       `json:"at"`
}

// PipelineFailed is published when a compilation returns an error.
type PipelineFailed struct {
	ID        string    `json:"id"`
	Resource  string    `json:"resource"`
	Operation string    `json:"operation,omitempty"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// CatalogReplaced is published after a catalog snapshot was written.
type CatalogReplaced struct {
	Entities []string  `json:"entities"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Message is one received event.
type Message struct {
	Subject string
	Data    []byte
}

// Subscriber receives events from the bus.
type Subscriber interface {
	// Subscribe delivers messages for topic until cancel is called, which
	// also closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
