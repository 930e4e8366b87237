package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// replaySize bounds the events kept for Last-Event-ID replay.
	replaySize = 512

	keepaliveInterval = 15 * time.Second
)

type streamEvent struct {
	Seq   uint64
	Topic string
	Data  []byte
}

// sseHub fans compilation events out to stream clients and remembers the
// most recent ones so a reconnecting client can catch up.
type sseHub struct {
	seq atomic.Uint64

	mu      sync.RWMutex
	clients map[*streamClient]struct{}

	histMu  sync.RWMutex
	history [replaySize]streamEvent
	head    int
	size    int
}

type streamClient struct {
	patterns []string
	ch       chan *streamEvent
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*streamClient]struct{})}
}

func (h *sseHub) broadcast(topic string, data []byte) {
	evt := &streamEvent{Seq: h.seq.Add(1), Topic: topic, Data: data}

	h.histMu.Lock()
	h.history[h.head] = *evt
	h.head = (h.head + 1) % replaySize
	if h.size < replaySize {
		h.size++
	}
	h.histMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// slow client; drop
		}
	}
}

func (h *sseHub) subscribe(patterns []string) *streamClient {
	c := &streamClient{patterns: patterns, ch: make(chan *streamEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// since returns the remembered events newer than seq, oldest first.
func (h *sseHub) since(seq uint64) []*streamEvent {
	h.histMu.RLock()
	defer h.histMu.RUnlock()

	var out []*streamEvent
	start := (h.head - h.size + replaySize) % replaySize
	for i := range h.size {
		evt := &h.history[(start+i)%replaySize]
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}

func (c *streamClient) wants(topic string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if subjectMatches(p, topic) {
			return true
		}
	}
	return false
}

// subjectMatches applies NATS subject wildcards: "*" matches one token and a
// trailing ">" matches one or more.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	want := strings.Split(pattern, ".")
	got := strings.Split(subject, ".")
	for i, tok := range want {
		if tok == ">" {
			return i < len(got)
		}
		if i >= len(got) || (tok != "*" && tok != got[i]) {
			return false
		}
	}
	return len(want) == len(got)
}

// hubPublisher adapts the hub to events.Publisher.
type hubPublisher struct {
	hub *sseHub
}

func (p hubPublisher) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	p.hub.broadcast(topic, data)
	return nil
}

func (hubPublisher) Close() error { return nil }

// handleEventStream handles GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var patterns []string
	for _, p := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}

	client := s.hub.subscribe(patterns)
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		for _, evt := range s.hub.since(last) {
			if client.wants(evt.Topic) {
				writeStreamEvent(w, evt)
			}
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeStreamEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, evt *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.Seq, evt.Topic, evt.Data)
}
