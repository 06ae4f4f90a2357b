// Package realtime fans ledger events out to server-sent event streams.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/metrics"
)

const (
	EventConnected      = "connected"
	EventSnapshot       = "snapshot"
	EventBalanceUpdated = "balance.updated"
)

// Key identifies a pool of streams.
type Key struct {
	Role    string
	Subject string
}

func AdminKey() Key {
	return Key{Role: "admin"}
}

func OwnerKey(ownerID string) Key {
	return Key{Role: "owner", Subject: ownerID}
}

func CustomerKey(customerID string) Key {
	return Key{Role: "customer", Subject: customerID}
}

func (k Key) String() string {
	if k.Subject == "" {
		return k.Role
	}
	return k.Role + ":" + k.Subject
}

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// Snapshot returns the current state a stream starts from.
type Snapshot func(ctx context.Context) (any, error)

type Options struct {
	Heartbeat time.Duration
	Buffer    int
	// PollInterval refreshes the snapshot of each stream and emits it when it
	// changed. Zero disables polling.
	PollInterval time.Duration
}

type Broadcaster struct {
	mu      sync.RWMutex
	streams map[Key]map[*Stream]struct{}
	closed  bool

	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

func New(logger zerolog.Logger, opts Options) *Broadcaster {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	return &Broadcaster{
		streams: make(map[Key]map[*Stream]struct{}),
		opts:    opts,
		logger:  logger.With().Str("component", "realtime").Logger(),
		now:     time.Now,
	}
}

// Stream is one subscriber. Events that do not fit its buffer are dropped.
type Stream struct {
	key    Key
	events chan Event
	done   chan struct{}
	once   sync.Once
	b      *Broadcaster
}

func (s *Stream) Key() Key {
	return s.key
}

func (s *Stream) Events() <-chan Event {
	return s.events
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close deregisters the stream. It is safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.done)
		metrics.OpenStreams.Dec()
	})
}

// Subscribe registers a stream under key. After Close the returned stream is
// already done.
func (b *Broadcaster) Subscribe(key Key) *Stream {
	s := &Stream{
		key:    key,
		events: make(chan Event, b.opts.Buffer),
		done:   make(chan struct{}),
		b:      b,
	}
	metrics.OpenStreams.Inc()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.Close()
		return s
	}
	pool, ok := b.streams[key]
	if !ok {
		pool = make(map[*Stream]struct{})
		b.streams[key] = pool
	}
	pool[s] = struct{}{}
	b.mu.Unlock()

	return s
}

func (b *Broadcaster) remove(s *Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, ok := b.streams[s.key]
	if !ok {
		return
	}
	delete(pool, s)
	if len(pool) == 0 {
		delete(b.streams, s.key)
	}
}

// Broadcast offers ev to every stream under key without blocking and returns
// how many accepted it.
func (b *Broadcaster) Broadcast(key Key, ev Event) int {
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for s := range b.streams[key] {
		select {
		case s.events <- ev:
			delivered++
		default:
			metrics.BroadcastEvents.WithLabelValues("dropped").Inc()
			b.logger.Warn().Str("key", key.String()).Str("event", ev.Type).Msg("stream buffer full, event dropped")
		}
	}
	metrics.BroadcastEvents.WithLabelValues("delivered").Add(float64(delivered))
	return delivered
}

// Count returns the number of open streams under key.
func (b *Broadcaster) Count(key Key) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[key])
}

// Stats returns the number of open streams per role.
func (b *Broadcaster) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := map[string]int{}
	for key, pool := range b.streams {
		stats[key.Role] += len(pool)
	}
	return stats
}

// OnBalanceChanged publishes a committed balance change to the admin pool,
// the owning business and the customer.
func (b *Broadcaster) OnBalanceChanged(ctx context.Context, ev domain.BalanceEvent) {
	event := Event{Type: EventBalanceUpdated, Data: ev, At: ev.At}
	for _, key := range []Key{AdminKey(), OwnerKey(ev.OwnerID), CustomerKey(ev.CustomerID)} {
		b.Broadcast(key, event)
	}
}

// Close ends every stream. Subsequent subscriptions are closed immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var open []*Stream
	for _, pool := range b.streams {
		for s := range pool {
			open = append(open, s)
		}
	}
	b.streams = make(map[Key]map[*Stream]struct{})
	b.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// Serve streams events for key to w until ctx is cancelled or the
// broadcaster closes. The snapshot is taken before any byte is written so a
// failing snapshot can still be reported as a regular error response.
func (b *Broadcaster) Serve(ctx context.Context, w http.ResponseWriter, key Key, snapshot Snapshot) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	var current any
	if snapshot != nil {
		snap, err := snapshot(ctx)
		if err != nil {
			return err
		}
		current = snap
	}

	stream := b.Subscribe(key)
	defer stream.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, Event{Type: EventConnected, Data: current, At: b.now()}); err != nil {
		return err
	}
	flusher.Flush()

	heartbeat := time.NewTicker(b.opts.Heartbeat)
	defer heartbeat.Stop()

	var poll <-chan time.Time
	if b.opts.PollInterval > 0 && snapshot != nil {
		pollTicker := time.NewTicker(b.opts.PollInterval)
		defer pollTicker.Stop()
		poll = pollTicker.C
	}
	last, _ := json.Marshal(current)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stream.Done():
			return nil
		case ev := <-stream.Events():
			if err := writeEvent(w, ev); err != nil {
				return err
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return err
			}
		case <-poll:
			snap, err := snapshot(ctx)
			if err != nil {
				b.logger.Debug().Err(err).Str("key", key.String()).Msg("snapshot refresh failed")
				continue
			}
			encoded, err := json.Marshal(snap)
			if err != nil || bytes.Equal(encoded, last) {
				continue
			}
			last = encoded
			if err := writeEvent(w, Event{Type: EventSnapshot, Data: snap, At: b.now()}); err != nil {
				return err
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
