package pubsub

import (
	"context"
	"sync"
)

// MemoryFeed is an in-process Feed. Handlers run on the publishing goroutine
// and must return quickly.
type MemoryFeed struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]func()
	closed   bool
}

// NewMemoryFeed builds an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{handlers: make(map[string]map[uint64]func())}
}

// Publish invokes every handler registered for the topic.
func (f *MemoryFeed) Publish(_ context.Context, topic string) error {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return nil
	}
	fns := make([]func(), 0, len(f.handlers[topic]))
	for _, fn := range f.handlers[topic] {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Subscribe registers fn for the topic until unsubscribe is called.
func (f *MemoryFeed) Subscribe(_ context.Context, topic string, fn func()) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[topic] == nil {
		f.handlers[topic] = make(map[uint64]func())
	}
	f.handlers[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.handlers[topic], id)
			if len(f.handlers[topic]) == 0 {
				delete(f.handlers, topic)
			}
		})
	}, nil
}

// Subscribers returns the number of handlers registered for the topic.
func (f *MemoryFeed) Subscribers(topic string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers[topic])
}

// Close drops all handlers; later publishes are no-ops.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = make(map[string]map[uint64]func())
	return nil
}
