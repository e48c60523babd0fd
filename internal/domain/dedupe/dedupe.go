// Package dedupe tracks boarding event ids so a retried kiosk upload is
// verified at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the insert are one atomic step.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so the event can be submitted again, e.g. after
	// the queue refused it.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// memoryDeduper keeps ids in insertion order. When bounded, the oldest id is
// evicted first.
type memoryDeduper struct {
	mu      sync.Mutex
	order   *list.List
	index   map[string]*list.Element
	maxSize int
}

// NewMemoryDeduper builds an in-process deduper. The default bound is
// 50,000 ids; WithMaxSize(0) removes it.
func NewMemoryDeduper(opts ...Option) Deduper {
	d := &memoryDeduper{maxSize: 50_000}
	for _, opt := range opts {
		opt(d)
	}
	d.order = list.New()
	d.index = make(map[string]*list.Element)
	return d
}

func (d *memoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}
	d.index[id] = d.order.PushBack(id)
	return false
}

func (d *memoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[id]; ok {
		d.order.Remove(el)
		delete(d.index, id)
	}
}

func (d *memoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
