// Package eventbus provides an in-memory, asynchronous bus that fans dispatch
// outcomes out to listeners such as the delivery log. Events are queued on a
// buffered channel and handled by a small worker pool, so a slow listener
// never holds up mail delivery.
package eventbus

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultWorkers    = 2
	defaultBufferSize = 256
)

// EventBus publishes events to every subscribed listener.
type EventBus interface {
	// Publish enqueues an event without blocking. It reports false when the
	// event was dropped because the buffer is full or the bus is closed.
	Publish(eventType string, payload map[string]string) bool

	// Subscribe registers a listener for every event published afterwards.
	Subscribe(listener Listener)

	// Close stops accepting events and waits until queued ones are handled.
	Close()
}

type inMemoryBus struct {
	ch        chan Event
	listeners []Listener
	mu        sync.RWMutex
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	workers   int
	logger    *slog.Logger
}

// New creates an in-memory bus. workers <= 0 selects the default pool size
// and a nil logger falls back to slog.Default.
func New(workers int, logger *slog.Logger) EventBus {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &inMemoryBus{
		ch:      make(chan Event, defaultBufferSize),
		workers: workers,
		logger:  logger.With("component", "eventbus"),
	}
	b.startWorkers()
	return b
}

func (b *inMemoryBus) startWorkers() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for e := range b.ch {
				b.dispatch(e)
			}
		}()
	}
}

// dispatch calls every listener, recovering from panics so one bad listener
// cannot take down the others.
func (b *inMemoryBus) dispatch(e Event) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("listener panicked", "event", e.Type, "panic", r)
				}
			}()
			l(e)
		}()
	}
}

func (b *inMemoryBus) Publish(eventType string, payload map[string]string) bool {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		b.logger.Warn("bus closed, dropping event", "event", eventType)
		return false
	}

	e := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	select {
	case b.ch <- e:
		return true
	default:
		b.logger.Warn("buffer full, dropping event", "event", eventType)
		return false
	}
}

func (b *inMemoryBus) Subscribe(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

// Close is safe to call more than once.
func (b *inMemoryBus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.closeMu.Unlock()
	b.wg.Wait()
}
