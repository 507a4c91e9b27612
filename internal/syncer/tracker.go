package syncer

import (
	"context"
	"sync"
)

// tracker counts in-flight goroutines. Unlike sync.WaitGroup it may gain
// work while someone is waiting on it.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n == 0
}

func newTracker() *tracker {
	idle := make(chan struct{})
	close(idle)
	return &tracker{idle: idle}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

// wait blocks until nothing is in flight or ctx ends.
func (t *tracker) wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}

		t.mu.Lock()
		n := t.n
		t.mu.Unlock()
		if n == 0 {
			return nil
		}
	}
}

func (t *tracker) spawn(fn func()) {
	t.add()
	go func() {
		defer t.done()
		fn()
	}()
}
