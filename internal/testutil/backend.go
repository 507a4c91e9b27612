package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/shopsync/internal/store"
)

// ErrBackendDown is wrapped by every FailingBackend error.
var ErrBackendDown = errors.New("backend down")

// FailingBackend is a store.Backend whose every call fails as unavailable.
type FailingBackend struct{}

var _ store.Backend = FailingBackend{}

func (FailingBackend) Put(_ context.Context, collection string, _ store.RawRecord) (bool, error) {
	return false, down(collection, "put")
}

func (FailingBackend) All(_ context.Context, collection string) ([]store.RawRecord, error) {
	return nil, down(collection, "get_all")
}

func (FailingBackend) Delete(_ context.Context, collection, _ string) error {
	return down(collection, "delete")
}

func (FailingBackend) Clear(_ context.Context, collection string) error {
	return down(collection, "clear")
}

func (FailingBackend) Ping(context.Context) error {
	return down("", "ping")
}

func (FailingBackend) Close() error { return nil }

func down(collection, op string) error {
	return &store.CacheError{Code: store.ErrCodeUnavailable, Collection: collection, Op: op, Err: ErrBackendDown}
}

// CountingBackend wraps a backend and counts calls per operation and
// collection.
type CountingBackend struct {
	store.Backend

	mu     sync.Mutex
	counts map[string]int
}

// NewCountingBackend wraps inner.
func NewCountingBackend(inner store.Backend) *CountingBackend {
	return &CountingBackend{Backend: inner, counts: make(map[string]int)}
}

// Count returns the number of op calls on collection.
// op is one of "put", "get_all", "delete", "clear".
func (b *CountingBackend) Count(op, collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[op+"/"+collection]
}

func (b *CountingBackend) inc(op, collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[op+"/"+collection]++
}

func (b *CountingBackend) Put(ctx context.Context, collection string, rec store.RawRecord) (bool, error) {
	b.inc("put", collection)
	return b.Backend.Put(ctx, collection, rec)
}

func (b *CountingBackend) All(ctx context.Context, collection string) ([]store.RawRecord, error) {
	b.inc("get_all", collection)
	return b.Backend.All(ctx, collection)
}

func (b *CountingBackend) Delete(ctx context.Context, collection, id string) error {
	b.inc("delete", collection)
	return b.Backend.Delete(ctx, collection, id)
}

func (b *CountingBackend) Clear(ctx context.Context, collection string) error {
	b.inc("clear", collection)
	return b.Backend.Clear(ctx, collection)
}

// BlockingBackend wraps a backend and holds every Put until Release is
// called or the write context ends. Reads and deletes pass through.
type BlockingBackend struct {
	store.Backend

	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	blocked int
}

// NewBlockingBackend wraps inner.
func NewBlockingBackend(inner store.Backend) *BlockingBackend {
	return &BlockingBackend{Backend: inner, release: make(chan struct{})}
}

// Release lets every held and future Put through. Idempotent.
func (b *BlockingBackend) Release() {
	b.once.Do(func() { close(b.release) })
}

// Blocked returns the number of Puts currently held.
func (b *BlockingBackend) Blocked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked
}

func (b *BlockingBackend) Put(ctx context.Context, collection string, rec store.RawRecord) (bool, error) {
	b.mu.Lock()
	b.blocked++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.blocked--
		b.mu.Unlock()
	}()

	select {
	case <-b.release:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return b.Backend.Put(ctx, collection, rec)
}
