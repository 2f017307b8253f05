// Package dedupe makes execution submission idempotent: a client supplied
// request id maps to the execution it first created.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Default dedupe configuration constants.
const (
	defaultMaxSize = 10000
)

// Deduper records which request ids have been claimed and by which execution.
type Deduper interface {
	// Claim atomically binds requestID to executionID. When requestID is
	// already bound it returns the owning execution and false.
	Claim(ctx context.Context, requestID, executionID string) (string, bool)

	// Release frees a request id, e.g. after queue backpressure rejected the
	// whole execution or the execution was evicted.
	Release(ctx context.Context, requestID string)

	Size() int
}

type claim struct {
	requestID   string
	executionID string
}

// inMemoryDeduper keeps claims in insertion order and evicts the oldest
// once maxSize is reached. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		claims:  make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Claim implements Deduper.
func (d *inMemoryDeduper) Claim(_ context.Context, requestID, executionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, taken := d.claims[requestID]; taken {
		return el.Value.(claim).executionID, false
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.claims, oldest.Value.(claim).requestID)
	}
	d.claims[requestID] = d.order.PushFront(claim{requestID: requestID, executionID: executionID})
	return executionID, true
}

// Release implements Deduper.
func (d *inMemoryDeduper) Release(_ context.Context, requestID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.claims[requestID]; ok {
		d.order.Remove(el)
		delete(d.claims, requestID)
	}
}

// Size returns the number of live claims.
func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
