// Package logstream is the per-execution ordered log stream: a bounded
// ring-buffer replay plus fan-out channel subscribers carrying plain text
// lines. Late subscribers replay the buffered tail before seeing live
// lines; Complete closes every subscriber channel.
package logstream

import (
	"context"
	"sync"
)

// ReplayBufferSize is the number of most recent lines kept per execution;
// a new subscriber replays up to this many before seeing live lines.
const ReplayBufferSize = 64

// subscriberBuffer is generous headroom so a slow subscriber doesn't block
// Write; a full buffer degrades to dropping with an overflow marker rather
// than blocking the writer indefinitely.
const subscriberBuffer = 256

// overflowMarker is appended (once) when a subscriber's channel is full and
// lines had to be dropped for it.
const overflowMarker = "... [log stream overflow, lines dropped] ..."

type subscription struct {
	ch       chan string
	overflow bool
}

// stream is the per-execution state: a replay ring buffer plus the set of
// live subscriber channels.
type stream struct {
	mu          sync.Mutex
	ring        []string
	completed   bool
	subscribers map[int]*subscription
	nextID      int
}

func newStream() *stream {
	return &stream{subscribers: make(map[int]*subscription)}
}

// Service manages one stream per execution id.
type Service struct {
	mu      sync.Mutex
	streams map[string]*stream
}

// New constructs an empty Service.
func New() *Service {
	return &Service{streams: make(map[string]*stream)}
}

func (s *Service) streamFor(executionID string) *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[executionID]
	if !ok {
		st = newStream()
		s.streams[executionID] = st
	}
	return st
}

// Write appends line to executionID's stream and fans it out to every live
// subscriber. It never blocks on a slow subscriber: a subscriber whose
// buffer is full has the line dropped and an overflow marker queued
// instead. Write is a no-op once the stream is Complete.
func (s *Service) Write(ctx context.Context, executionID, line string) {
	st := s.streamFor(executionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.completed {
		return
	}

	st.ring = append(st.ring, line)
	if len(st.ring) > ReplayBufferSize {
		st.ring = st.ring[len(st.ring)-ReplayBufferSize:]
	}

	for _, sub := range st.subscribers {
		select {
		case sub.ch <- line:
		default:
			if !sub.overflow {
				sub.overflow = true
				select {
				case sub.ch <- overflowMarker:
				default:
				}
			}
		}
	}
}

// Subscribe returns a channel that yields a replay of the current buffer
// (up to ReplayBufferSize lines) followed by every future line, until
// Complete is called for executionID. The returned cancel func must be
// called to release the subscription when the caller stops reading.
func (s *Service) Subscribe(ctx context.Context, executionID string) (<-chan string, func()) {
	st := s.streamFor(executionID)
	st.mu.Lock()

	ch := make(chan string, subscriberBuffer)
	for _, line := range st.ring {
		ch <- line
	}
	if st.completed {
		close(ch)
		st.mu.Unlock()
		return ch, func() {}
	}

	id := st.nextID
	st.nextID++
	st.subscribers[id] = &subscription{ch: ch}
	st.mu.Unlock()

	cancel := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, ok := st.subscribers[id]; ok {
			delete(st.subscribers, id)
		}
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel
}

// Complete marks executionID's stream finished: every live subscriber's
// channel is closed (after any buffered lines drain) and future Subscribe
// calls immediately see end-of-stream after the replay.
func (s *Service) Complete(executionID string) {
	st := s.streamFor(executionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.completed {
		return
	}
	st.completed = true
	for id, sub := range st.subscribers {
		close(sub.ch)
		delete(st.subscribers, id)
	}
}
