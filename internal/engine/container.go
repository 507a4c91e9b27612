package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/metrics"
)

// Transition describes one applied action.
type Transition struct {
	Seq    int64
	Action Action
	Prev   domain.State
	Next   domain.State
}

// Observer is notified synchronously after each transition.
type Observer func(Transition)

// Container owns the canonical state.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine and from inside observers
//   - State(), Seq(), Subscribe(): safe from any goroutine
//   - observers run on the goroutine that is draining, one at a time
type Container struct {
	mu        sync.Mutex // guards state and observers
	state     domain.State
	observers []observerEntry
	nextID    int

	queue    *actionQueue
	draining atomic.Bool
	clock    *Clock

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type observerEntry struct {
	id int
	fn Observer
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) ContainerOption {
	return func(c *Container) {
		c.metrics = m
	}
}

// WithClock sets the sequence clock, e.g. to resume numbering.
func WithClock(clock *Clock) ContainerOption {
	return func(c *Container) {
		c.clock = clock
	}
}

// NewContainer creates a container holding a copy of initial.
func NewContainer(initial domain.State, opts ...ContainerOption) *Container {
	c := &Container{
		state:  initial.Clone(),
		queue:  newActionQueue(),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "container")
	return c
}

// State returns a snapshot of the current state.
func (c *Container) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Seq returns the sequence number of the last applied transition.
func (c *Container) Seq() int64 {
	return c.clock.Current()
}

// Subscribe registers an observer and returns a function that removes it.
// The returned function is idempotent.
func (c *Container) Subscribe(fn Observer) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			kept := make([]observerEntry, 0, len(c.observers))
			for _, o := range c.observers {
				if o.id != id {
					kept = append(kept, o)
				}
			}
			c.observers = kept
		})
	}
}

// Dispatch submits an action.
//
// When the container is idle the action is applied, and all observers
// notified, before Dispatch returns. When another dispatch is in progress
// (another goroutine, or an observer dispatching) the action is queued and
// applied by that drainer in arrival order.
func (c *Container) Dispatch(a Action) {
	c.queue.Enqueue(a)
	for {
		if !c.draining.CompareAndSwap(false, true) {
			return
		}
		c.drain()
		c.draining.Store(false)
		// An enqueue may have landed between the last dequeue and the
		// release above; its dispatcher saw draining=true and left.
		if c.queue.Len() == 0 {
			return
		}
	}
}

// drain applies queued actions until the queue is empty.
// CRITICAL: only the goroutine holding c.draining may call this.
func (c *Container) drain() {
	for {
		a, ok := c.queue.TryDequeue()
		if !ok {
			return
		}
		c.apply(a)
	}
}

func (c *Container) apply(a Action) {
	c.mu.Lock()
	prev := c.state
	next := Reduce(prev, a)
	c.state = next
	seq := c.clock.Next()
	observers := make([]observerEntry, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	c.metrics.IncDispatch(string(a.Kind))
	c.logger.Debug("action applied",
		"seq", seq,
		"action", a.String(),
		"cart_lines", len(next.Cart),
	)

	for _, o := range observers {
		c.notify(o.fn, Transition{
			Seq:    seq,
			Action: a,
			Prev:   prev.Clone(),
			Next:   next.Clone(),
		})
	}
}

// notify runs one observer, containing any panic so the drain loop survives.
func (c *Container) notify(fn Observer, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("observer panicked",
				"seq", t.Seq,
				"action", t.Action.String(),
				"panic", r,
			)
		}
	}()
	fn(t)
}
