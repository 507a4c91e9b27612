package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/engine"
	"github.com/roach88/shopsync/internal/metrics"
	"github.com/roach88/shopsync/internal/remote"
	"github.com/roach88/shopsync/internal/store"
	"github.com/roach88/shopsync/internal/testutil"
)

type fixture struct {
	container *engine.Container
	cache     *store.Cache
	orch      *Orchestrator
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, backend store.Backend, src remote.Source, opts ...Option) *fixture {
	t.Helper()
	logger := quietLogger()
	c := engine.NewContainer(engine.InitialState(), engine.WithLogger(logger))
	cache := store.New(backend, store.WithLogger(logger))
	opts = append([]Option{WithLogger(logger)}, opts...)
	o := New(c, cache, src, opts...)
	t.Cleanup(func() {
		o.Close()
		cache.Close()
	})
	return &fixture{container: c, cache: cache, orch: o}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func product(id, price string) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price), Quantity: 10, Category: "c1"}
}

func ids[T store.Record](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.RecordID()
	}
	sort.Strings(out)
	return out
}

func statusOf(t *testing.T, o *Orchestrator, name string) DomainStatus {
	t.Helper()
	for _, st := range o.Status() {
		if st.Domain == name {
			return st
		}
	}
	t.Fatalf("no status for %s", name)
	return DomainStatus{}
}

// Remote products fail and the cache holds two records: memory ends with
// exactly those two.
func TestOrchestrator_FallsBackToCache(t *testing.T) {
	ctx := waitCtx(t)
	src := testutil.NewStubSource().FailProducts(nil)
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), src)

	_, err := f.cache.Products().Put(ctx, product("p1", "1.00"))
	require.NoError(t, err)
	_, err = f.cache.Products().Put(ctx, product("p2", "2.00"))
	require.NoError(t, err)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	assert.Equal(t, []string{"p1", "p2"}, ids(f.container.State().Products))

	st := statusOf(t, f.orch, DomainProducts)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, SourceCache, st.Source)
	assert.Equal(t, 2, st.Records)
	assert.NotEmpty(t, st.Error)
}

// Remote products succeed with L: memory equals L and a cold read of the
// cache after restart returns L.
func TestOrchestrator_WritesThroughRemoteResult(t *testing.T) {
	ctx := waitCtx(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	list := []domain.Product{product("p1", "1.00"), product("p2", "2.50"), product("p3", "9.99")}
	src := testutil.NewStubSource().WithProducts(list...)

	f := newFixture(t, store.NewSQLiteBackend(path), src)
	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Wait(ctx))

	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(f.container.State().Products))
	st := statusOf(t, f.orch, DomainProducts)
	assert.Equal(t, PhaseResolved, st.Phase)
	assert.Equal(t, SourceRemote, st.Source)

	f.orch.Close()
	require.NoError(t, f.cache.Close())

	cold := store.OpenSQLite(path, store.WithLogger(quietLogger()))
	defer cold.Close()
	got, err := cold.Products().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(got))
	for _, p := range got {
		want, _ := domain.State{Products: list}.Product(p.ID)
		assert.True(t, want.Price.Equal(p.Price), "price of %s", p.ID)
	}
}

func TestOrchestrator_PendingNeverReadsCache(t *testing.T) {
	ctx := waitCtx(t)
	src := testutil.NewStubSource().FailProducts(nil).FailCategories(nil)
	release := src.Gate()
	defer release()

	backend := testutil.NewCountingBackend(store.NewSQLiteBackend(store.MemoryPath))
	f := newFixture(t, backend, src)
	f.orch.Mount(ctx)

	started := map[string]bool{}
	for len(started) < 2 {
		select {
		case r := <-src.Entered():
			started[r] = true
		case <-ctx.Done():
			t.Fatal("fetches never started")
		}
	}

	assert.Equal(t, 0, backend.Count("get_all", store.CollectionProducts))
	assert.Equal(t, 0, backend.Count("get_all", store.CollectionCategories))
	assert.Equal(t, PhasePending, statusOf(t, f.orch, DomainProducts).Phase)
	assert.Equal(t, PhasePending, statusOf(t, f.orch, DomainCategories).Phase)

	release()
	require.NoError(t, f.orch.Hydrated(ctx))

	assert.Equal(t, 1, backend.Count("get_all", store.CollectionProducts))
	assert.Equal(t, 1, backend.Count("get_all", store.CollectionCategories))
	assert.Equal(t, PhaseFailed, statusOf(t, f.orch, DomainProducts).Phase)
}

func TestOrchestrator_ResolvedNeverReadsCache(t *testing.T) {
	ctx := waitCtx(t)
	src := testutil.NewStubSource().
		WithProducts(product("p1", "1.00")).
		WithCategories(domain.Category{ID: "c1", Name: "Food"})
	backend := testutil.NewCountingBackend(store.NewSQLiteBackend(store.MemoryPath))
	f := newFixture(t, backend, src)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Wait(ctx))

	assert.Equal(t, 0, backend.Count("get_all", store.CollectionProducts))
	assert.Equal(t, 0, backend.Count("get_all", store.CollectionCategories))
	assert.Equal(t, 1, backend.Count("put", store.CollectionProducts))
	assert.Equal(t, 1, backend.Count("put", store.CollectionCategories))
	assert.Equal(t, "Food", f.container.State().Categories[0].Name)
}

func TestOrchestrator_HydratesCartFromCache(t *testing.T) {
	ctx := waitCtx(t)
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), testutil.NewStubSource())

	_, err := f.cache.Cart().Put(ctx, domain.CartLineItem{Product: product("p1", "3.00"), PurchaseQuantity: 2})
	require.NoError(t, err)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	s := f.container.State()
	require.Len(t, s.Cart, 1)
	assert.Equal(t, 2, s.Cart[0].PurchaseQuantity)
	assert.False(t, s.CartOpen, "hydration does not open the cart")

	st := statusOf(t, f.orch, DomainCart)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, SourceCache, st.Source)
	assert.Contains(t, st.Error, ErrNoRemote.Error())
}

func TestOrchestrator_MirrorsCartMutations(t *testing.T) {
	ctx := waitCtx(t)
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), testutil.NewStubSource())
	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	cartLines := func() map[string]int {
		t.Helper()
		require.NoError(t, f.orch.Wait(ctx))
		lines, err := f.cache.Cart().GetAll(ctx)
		require.NoError(t, err)
		out := make(map[string]int, len(lines))
		for _, l := range lines {
			out[l.ID] = l.PurchaseQuantity
		}
		return out
	}

	f.container.Dispatch(engine.AddToCart(product("p1", "10"), 1))
	assert.Equal(t, map[string]int{"p1": 1}, cartLines())

	f.container.Dispatch(engine.SetCartQuantity("p1", 3))
	assert.Equal(t, map[string]int{"p1": 3}, cartLines())

	f.container.Dispatch(engine.AddToCart(product("p2", "1"), 2))
	assert.Equal(t, map[string]int{"p1": 3, "p2": 2}, cartLines())

	f.container.Dispatch(engine.UpdateCartQuantity("p2", 0))
	assert.Equal(t, map[string]int{"p1": 3}, cartLines())

	f.container.Dispatch(engine.SetCartQuantity("p1", 0))
	assert.Empty(t, cartLines())

	f.container.Dispatch(engine.AddToCart(product("p1", "10"), 1))
	f.container.Dispatch(engine.AddToCart(product("p3", "10"), 1))
	assert.Len(t, cartLines(), 2)
	f.container.Dispatch(engine.ClearCart())
	assert.Empty(t, cartLines())

	// Catalog actions are never mirrored into the cart.
	f.container.Dispatch(engine.ToggleCartOpen())
	f.container.Dispatch(engine.SetCurrentCategory("c1"))
	assert.Empty(t, cartLines())
}

func TestOrchestrator_CloseStopsMirroring(t *testing.T) {
	ctx := waitCtx(t)
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), testutil.NewStubSource())
	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	f.orch.Close()
	f.container.Dispatch(engine.AddToCart(product("p1", "10"), 1))
	require.NoError(t, f.orch.Wait(ctx))

	lines, err := f.cache.Cart().GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestOrchestrator_ToleratesUnavailableCache(t *testing.T) {
	ctx := waitCtx(t)
	src := testutil.NewStubSource().
		WithProducts(product("p1", "1.00")).
		FailCategories(nil)
	f := newFixture(t, testutil.FailingBackend{}, src)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	// Remote data still reaches memory even though write-through fails.
	s := f.container.State()
	assert.Equal(t, []string{"p1"}, ids(s.Products))
	assert.Empty(t, s.Categories)

	cats := statusOf(t, f.orch, DomainCategories)
	assert.Equal(t, PhaseFailed, cats.Phase)
	assert.Equal(t, SourceNone, cats.Source)

	f.container.Dispatch(engine.AddToCart(product("p1", "1.00"), 1))
	require.NoError(t, f.orch.Wait(ctx))
	assert.Len(t, f.container.State().Cart, 1, "cart works without durability")
}

func TestOrchestrator_MountIsOnce(t *testing.T) {
	ctx := waitCtx(t)
	src := testutil.NewStubSource().WithProducts(product("p1", "1.00"))
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), src)

	f.orch.Mount(ctx)
	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Wait(ctx))

	assert.Equal(t, 1, src.Calls(testutil.ResourceProducts))
	assert.Equal(t, 1, src.Calls(testutil.ResourceCategories))
}

func TestOrchestrator_NilSourceIsOffline(t *testing.T) {
	ctx := waitCtx(t)
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), nil)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	st := statusOf(t, f.orch, DomainProducts)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, SourceCache, st.Source)
	assert.Contains(t, st.Error, remote.ErrOffline.Error())
}

func TestOrchestrator_StatusBeforeMount(t *testing.T) {
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), nil)

	statuses := f.orch.Status()
	require.Len(t, statuses, 3)
	for _, st := range statuses {
		assert.Equal(t, PhaseUnfetched, st.Phase)
		assert.Equal(t, SourceNone, st.Source)
	}
	_, err := uuid.Parse(f.orch.Session())
	assert.NoError(t, err)
}

func TestOrchestrator_CountsHydrations(t *testing.T) {
	ctx := waitCtx(t)
	reg := prometheus.NewRegistry()
	src := testutil.NewStubSource().WithProducts(product("p1", "1.00")).FailCategories(errors.New("down"))
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), src, WithMetrics(metrics.New(reg)))

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Wait(ctx))

	families, err := reg.Gather()
	require.NoError(t, err)
	sources := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "shopsync_hydration_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var dom, src string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "domain":
					dom = lp.GetValue()
				case "source":
					src = lp.GetValue()
				}
			}
			sources[dom] = src
		}
	}
	assert.Equal(t, map[string]string{
		DomainProducts:   SourceRemote,
		DomainCategories: SourceCache,
		DomainCart:       SourceCache,
	}, sources)
}

// A cache written by an earlier session is restored when the remote is
// offline.
func TestOrchestrator_OfflineRestoresFileCache(t *testing.T) {
	ctx := waitCtx(t)
	path := filepath.Join(t.TempDir(), "cache.db")

	seed := store.OpenSQLite(path, store.WithLogger(quietLogger()))
	for _, p := range []domain.Product{product("p1", "1.00"), product("p2", "2.00")} {
		_, err := seed.Products().Put(ctx, p)
		require.NoError(t, err)
	}
	_, err := seed.Cart().Put(ctx, domain.CartLineItem{Product: product("p2", "2.00"), PurchaseQuantity: 3})
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	f := newFixture(t, store.NewSQLiteBackend(path), remote.Offline{})
	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))

	state := f.container.State()
	assert.Equal(t, []string{"p1", "p2"}, ids(state.Products))
	require.Len(t, state.Cart, 1)
	assert.Equal(t, 3, state.Cart[0].PurchaseQuantity)

	st := statusOf(t, f.orch, DomainProducts)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, SourceCache, st.Source)
	assert.Equal(t, 2, st.Records)
}

// Memory is updated while every durable write is still held.
func TestOrchestrator_DispatchDoesNotWaitForWrites(t *testing.T) {
	ctx := waitCtx(t)
	backend := testutil.NewBlockingBackend(store.NewSQLiteBackend(store.MemoryPath))
	src := testutil.NewStubSource().WithProducts(product("p1", "1.00"), product("p2", "2.00"))
	f := newFixture(t, backend, src)
	t.Cleanup(backend.Release)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Hydrated(ctx))
	assert.Equal(t, []string{"p1", "p2"}, ids(f.container.State().Products))

	p1, ok := f.container.State().Product("p1")
	require.True(t, ok)
	f.container.Dispatch(engine.AddToCart(p1, 1))
	_, inCart := f.container.State().CartItem("p1")
	assert.True(t, inCart)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.orch.Wait(short), context.DeadlineExceeded, "writes are still held")
	// Two catalog puts and one cart put.
	require.Eventually(t, func() bool { return backend.Blocked() == 3 }, time.Second, time.Millisecond)

	backend.Release()
	require.NoError(t, f.orch.Wait(ctx))
	cart, err := f.cache.Cart().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(cart))
	products, err := f.cache.Products().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids(products))
}

// A remote record the cache would refuse never reaches memory either.
func TestOrchestrator_DropsInvalidRemoteRecords(t *testing.T) {
	ctx := waitCtx(t)
	nameless := product("p2", "2.00")
	nameless.Name = ""
	negative := product("p3", "-1.00")
	src := testutil.NewStubSource().WithProducts(product("p1", "1.00"), nameless, negative)
	f := newFixture(t, store.NewSQLiteBackend(store.MemoryPath), src)

	f.orch.Mount(ctx)
	require.NoError(t, f.orch.Wait(ctx))

	assert.Equal(t, []string{"p1"}, ids(f.container.State().Products))
	cached, err := f.cache.Products().GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(cached))

	st := statusOf(t, f.orch, DomainProducts)
	assert.Equal(t, PhaseResolved, st.Phase)
	assert.Equal(t, 1, st.Records)
}
