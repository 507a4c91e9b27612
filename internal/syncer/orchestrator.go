package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/engine"
	"github.com/roach88/shopsync/internal/metrics"
	"github.com/roach88/shopsync/internal/remote"
	"github.com/roach88/shopsync/internal/store"
)

// Domains hydrated by the orchestrator, in Status order.
const (
	DomainProducts   = "products"
	DomainCategories = "categories"
	DomainCart       = "cart"
)

// Hydration sources reported by Status.
const (
	SourceRemote = "remote"
	SourceCache  = "cache"
	SourceNone   = "none"
)

// ErrNoRemote is the failure cause of the cart fetch: the cart has no
// remote source of truth.
var ErrNoRemote = errors.New("no remote source")

// DomainStatus describes how one domain was hydrated.
type DomainStatus struct {
	Domain  string `json:"domain"`
	Phase   Phase  `json:"phase"`
	Source  string `json:"source"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// Orchestrator hydrates a container from a remote source or the durable
// cache and mirrors cart mutations into the cache.
type Orchestrator struct {
	container *engine.Container
	cache     *store.Cache
	source    remote.Source
	logger    *slog.Logger
	metrics   *metrics.Metrics
	session   string

	products   FetchState[[]domain.Product]
	categories FetchState[[]domain.Category]
	cart       FetchState[[]domain.CartLineItem]

	mu          sync.Mutex
	status      map[string]*DomainStatus
	mounted     bool
	writeCtx    context.Context
	unsubscribe func()

	hydration *tracker
	writes    *tracker
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an orchestrator. A nil source behaves as remote.Offline.
func New(container *engine.Container, cache *store.Cache, source remote.Source, opts ...Option) *Orchestrator {
	if source == nil {
		source = remote.Offline{}
	}
	o := &Orchestrator{
		container: container,
		cache:     cache,
		source:    source,
		logger:    slog.Default(),
		session:   newSessionID(),
		status:    make(map[string]*DomainStatus, 3),
		writeCtx:  context.Background(),
		hydration: newTracker(),
		writes:    newTracker(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "syncer", "session", o.session)
	for _, name := range []string{DomainProducts, DomainCategories, DomainCart} {
		o.status[name] = &DomainStatus{Domain: name, Phase: PhaseUnfetched, Source: SourceNone}
	}
	return o
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Session returns the id attached to this orchestrator's log lines.
func (o *Orchestrator) Session() string {
	return o.session
}

// Mount starts cart mirroring and one fetch per domain. It returns without
// waiting for any fetch; use Hydrated to wait. Only the first call has an
// effect.
//
// Cache writes started by this orchestrator outlive ctx cancellation so a
// host can still flush them with Wait.
func (o *Orchestrator) Mount(ctx context.Context) {
	o.mu.Lock()
	if o.mounted {
		o.mu.Unlock()
		return
	}
	o.mounted = true
	o.writeCtx = context.WithoutCancel(ctx)
	o.unsubscribe = o.container.Subscribe(o.mirror)
	o.mu.Unlock()

	o.logger.Info("mounting")

	o.hydration.spawn(func() {
		hydrateDomain(ctx, o, DomainProducts, &o.products, o.source.FetchCatalog, o.cache.Products(), engine.SetProducts)
	})
	o.hydration.spawn(func() {
		hydrateDomain(ctx, o, DomainCategories, &o.categories, o.source.FetchCategories, o.cache.Categories(), engine.SetCategories)
	})
	o.hydration.spawn(func() {
		hydrateDomain(ctx, o, DomainCart, &o.cart, noRemote, o.cache.Cart(), engine.AddManyToCart)
	})
}

func noRemote(context.Context) ([]domain.CartLineItem, error) {
	return nil, ErrNoRemote
}

// hydrateDomain runs one domain through Unfetched -> Pending -> terminal.
func hydrateDomain[T store.Record](
	ctx context.Context,
	o *Orchestrator,
	name string,
	state *FetchState[[]T],
	fetch func(context.Context) ([]T, error),
	coll *store.Collection[T],
	hydrate func([]T) engine.Action,
) {
	logger := o.logger.With("domain", name)
	if err := state.Begin(); err != nil {
		logger.Error("fetch already started", "error", err)
		return
	}
	o.setStatus(name, PhasePending, SourceNone, 0, nil)

	records, err := fetch(ctx)
	if err == nil {
		records = acceptValid(logger, records)
		if err := state.Resolve(records); err != nil {
			logger.Error("resolve fetch", "error", err)
			return
		}
		for _, rec := range records {
			o.writeAsync(name, "put", rec.RecordID(), func(ctx context.Context) error {
				_, err := coll.Put(ctx, rec)
				return err
			})
		}
		o.container.Dispatch(hydrate(records))
		o.setStatus(name, PhaseResolved, SourceRemote, len(records), nil)
		o.metrics.IncHydration(name, SourceRemote)
		logger.Info("hydrated from remote", "records", len(records))
		return
	}

	if ferr := state.Fail(err); ferr != nil {
		logger.Error("fail fetch", "error", ferr)
		return
	}
	if !errors.Is(err, ErrNoRemote) {
		logger.Info("remote unavailable, reading cache", "error", err)
	}

	cached, cerr := coll.GetAll(ctx)
	if cerr != nil {
		// Degraded mode: memory keeps whatever it already has.
		o.setStatus(name, PhaseFailed, SourceNone, 0, errors.Join(err, cerr))
		o.metrics.IncHydration(name, SourceNone)
		logger.Warn("cache unavailable, domain not hydrated", "error", cerr)
		return
	}
	o.container.Dispatch(hydrate(cached))
	o.setStatus(name, PhaseFailed, SourceCache, len(cached), err)
	o.metrics.IncHydration(name, SourceCache)
	logger.Info("hydrated from cache", "records", len(cached))
}

// acceptValid drops remote records the cache would refuse, so memory and
// the cache always hold the same set of ids.
func acceptValid[T store.Record](logger *slog.Logger, records []T) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if err := domain.Validate(rec); err != nil {
			logger.Warn("remote record rejected", "id", rec.RecordID(), "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// mirror persists cart mutations. It runs on the dispatching goroutine, so
// it only schedules writes.
func (o *Orchestrator) mirror(t engine.Transition) {
	a := t.Action
	cart := o.cache.Cart()

	switch a.Kind {
	case engine.ActionAddToCart, engine.ActionSetCartQuantity:
		id := a.ID
		if a.Kind == engine.ActionAddToCart {
			id = a.Product.ID
		}
		// The written line comes from Next, so it always equals memory.
		if line, ok := t.Next.CartItem(id); ok {
			o.writeAsync(DomainCart, "put", id, func(ctx context.Context) error {
				_, err := cart.Put(ctx, line)
				return err
			})
			return
		}
		// SetCartQuantity below 1 removed the line.
		o.writeAsync(DomainCart, "delete", id, func(ctx context.Context) error {
			return cart.Delete(ctx, id)
		})

	case engine.ActionRemoveFromCart:
		id := a.ID
		o.writeAsync(DomainCart, "delete", id, func(ctx context.Context) error {
			return cart.Delete(ctx, id)
		})

	case engine.ActionClearCart:
		for _, line := range t.Prev.Cart {
			id := line.ID
			o.writeAsync(DomainCart, "delete", id, func(ctx context.Context) error {
				return cart.Delete(ctx, id)
			})
		}
	}
}

// writeAsync runs one cache write on its own goroutine. Failures are
// already logged by the collection and are not retried.
func (o *Orchestrator) writeAsync(name, op, id string, write func(context.Context) error) {
	o.mu.Lock()
	ctx := o.writeCtx
	o.mu.Unlock()

	o.writes.spawn(func() {
		if err := write(ctx); err != nil {
			o.logger.Debug("cache write dropped", "domain", name, "op", op, "id", id, "error", err)
		}
	})
}

func (o *Orchestrator) setStatus(name string, phase Phase, source string, records int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.status[name]
	st.Phase = phase
	st.Source = source
	st.Records = records
	st.Error = ""
	if err != nil {
		st.Error = err.Error()
	}
}

// Status returns one entry per domain: products, categories, cart.
func (o *Orchestrator) Status() []DomainStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]DomainStatus, 0, len(o.status))
	for _, name := range []string{DomainProducts, DomainCategories, DomainCart} {
		out = append(out, *o.status[name])
	}
	return out
}

// Hydrated blocks until every domain fetch has reached a terminal phase and
// dispatched, or ctx ends.
func (o *Orchestrator) Hydrated(ctx context.Context) error {
	return o.hydration.wait(ctx)
}

// Wait blocks until hydration is done and every cache write has completed,
// or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	if err := o.hydration.wait(ctx); err != nil {
		return err
	}
	return o.writes.wait(ctx)
}

// Close stops mirroring. In-flight writes keep running; call Wait first to
// flush them. The cache is not closed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
