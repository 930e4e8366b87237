package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

var (
	_ Publisher  = NoopPublisher{}
	_ Publisher  = (*NATSPublisher)(nil)
	_ Subscriber = (*NATSSubscriber)(nil)
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestNoopPublisher(t *testing.T) {
	var pub NoopPublisher
	if err := pub.Publish(context.Background(), TopicPipelineCompiled, PipelineCompiled{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNATS_RoundTrip(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("pipefilter.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	event := PipelineCompiled{
		ID:       "pl-abc",
		Resource: "books",
		Entity:   "Book",
		Stages:   1,
		Pipeline: json.RawMessage(`[{"$match":{"published":{"$eq":true}}}]`),
	}
	if err := pub.Publish(context.Background(), TopicPipelineCompiled, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicPipelineFailed, PipelineFailed{ID: "pl-def", Error: "boom"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	msg := receive(t, ch)
	if msg.Subject != TopicPipelineCompiled {
		t.Errorf("subject = %q", msg.Subject)
	}
	var got PipelineCompiled
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "pl-abc" || got.Stages != 1 || string(got.Pipeline) != string(event.Pipeline) {
		t.Errorf("got %+v", got)
	}

	if msg := receive(t, ch); msg.Subject != TopicPipelineFailed {
		t.Errorf("second subject = %q", msg.Subject)
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	pub, err := NewNATSPublisher(startTestNATS(t))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicPipelineCompiled, PipelineCompiled{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() = %v, want context.Canceled", err)
	}
}

func TestNATSPublisher_PublishAfterClose(t *testing.T) {
	pub, err := NewNATSPublisher(startTestNATS(t))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicPipelineCompiled, PipelineCompiled{}); err == nil {
		t.Error("expected error publishing after close")
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url, nats.ReconnectHandler(func(*nats.Conn) {}))
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicCatalogReplaced)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelWhilePublishing(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("pipefilter.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = pub.Publish(context.Background(), TopicPipelineCompiled, PipelineCompiled{Stages: i})
		}
	}()
	cancel()
	<-done

	for range ch {
	}
}
