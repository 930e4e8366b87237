package events

import (
	"context"
	"errors"
	"testing"
)

type countingPublisher struct {
	published int
	closed    bool
	err       error
}

func (p *countingPublisher) Publish(context.Context, string, any) error {
	p.published++
	return p.err
}

func (p *countingPublisher) Close() error {
	p.closed = true
	return p.err
}

func TestMultiPublisher(t *testing.T) {
	boom := errors.New("boom")
	ok, failing := &countingPublisher{}, &countingPublisher{err: boom}
	m := MultiPublisher{failing, ok}

	err := m.Publish(context.Background(), TopicPipelineCompiled, PipelineCompiled{ID: "pl-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("Publish() = %v, want boom", err)
	}
	if ok.published != 1 || failing.published != 1 {
		t.Errorf("published = %d, %d, want 1, 1", ok.published, failing.published)
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() = %v, want boom", err)
	}
	if !ok.closed || !failing.closed {
		t.Error("not every publisher was closed")
	}

	if err := (MultiPublisher{}).Publish(context.Background(), "x", nil); err != nil {
		t.Errorf("empty Publish() = %v", err)
	}
}
