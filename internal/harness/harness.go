package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/engine"
	"github.com/roach88/shopsync/internal/remote"
	"github.com/roach88/shopsync/internal/store"
	"github.com/roach88/shopsync/internal/syncer"
	"github.com/roach88/shopsync/internal/testutil"
)

// RunTimeout bounds hydration and the final cache flush of one scenario.
const RunTimeout = 10 * time.Second

// Harness holds the per-run wiring of one scenario.
type Harness struct {
	cache     *store.Cache
	container *engine.Container
	orch      *syncer.Orchestrator

	mu         sync.Mutex
	events     []engine.Transition
	violations []string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory cache for isolation.
//
// Execution flow:
// 1. Seed the cache and configure the stub source
// 2. Mount the orchestrator and wait until every domain is hydrated
// 3. Dispatch the steps, flushing cache writes after each one
// 4. Check expectations and assertions
//
// Writes from a single step still race each other, exactly as in a live
// session; flushing between steps keeps the cache contents reproducible.
//
// An error is returned only when the scenario could not be executed;
// expectation failures are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller context. RunTimeout still applies.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cache := store.OpenSQLite(store.MemoryPath, store.WithLogger(logger))
	defer cache.Close()

	if err := seedCache(ctx, cache, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed cache: %w", err)
	}
	source, err := stubSource(scenario.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to configure remote: %w", err)
	}

	container := engine.NewContainer(engine.InitialState(), engine.WithLogger(logger))
	h := &Harness{
		cache:     cache,
		container: container,
		orch:      syncer.New(container, cache, source, syncer.WithLogger(logger)),
	}

	unsubscribe := container.Subscribe(h.record)
	defer unsubscribe()
	defer h.orch.Close()

	h.orch.Mount(ctx)
	if err := h.orch.Hydrated(ctx); err != nil {
		return nil, fmt.Errorf("hydration did not settle: %w", err)
	}
	hydratedSeq := container.Seq()

	result := NewResult()
	for i, step := range scenario.Steps {
		a, err := stepAction(container.State(), step)
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			continue
		}
		container.Dispatch(a)
		if err := h.orch.Wait(ctx); err != nil {
			return nil, fmt.Errorf("steps[%d]: cache writes did not settle: %w", i, err)
		}
	}

	if err := h.orch.Wait(ctx); err != nil {
		return nil, fmt.Errorf("cache writes did not settle: %w", err)
	}

	result.Hydration = h.orch.Status()
	result.Trace = h.trace(hydratedSeq)
	result.Final = container.State()
	if err := h.snapshotCache(ctx, result); err != nil {
		return nil, err
	}

	for _, v := range h.invariantViolations() {
		result.AddError(v)
	}
	if scenario.Expect != nil {
		checkExpect(result, scenario.Expect)
	}
	for _, msg := range EvaluateAssertions(result.Trace, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// record is the container observer. It keeps every transition and checks
// the state invariants after each one.
func (h *Harness) record(t engine.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, t)
	if err := engine.CheckInvariants(t.Next); err != nil {
		h.violations = append(h.violations, fmt.Sprintf("seq %d (%s): %v", t.Seq, t.Action, err))
	}
}

func (h *Harness) trace(after int64) []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TraceEvent, 0, len(h.events))
	for _, t := range h.events {
		if t.Seq > after {
			out = append(out, traceEvent(t))
		}
	}
	return out
}

func (h *Harness) invariantViolations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.violations)
}

func (h *Harness) snapshotCache(ctx context.Context, result *Result) error {
	for _, coll := range store.Collections {
		rows, err := h.cache.Raw(ctx, coll)
		if err != nil {
			return fmt.Errorf("failed to read cache %s: %w", coll, err)
		}
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		result.Cache[coll] = ids
	}
	return nil
}

func seedCache(ctx context.Context, cache *store.Cache, seed Seed) error {
	products, err := convertAll(seed.Products, ProductFixture.product)
	if err != nil {
		return fmt.Errorf("products%w", err)
	}
	for _, p := range products {
		if _, err := cache.Products().Put(ctx, p); err != nil {
			return err
		}
	}

	categories, err := convertAll(seed.Categories, CategoryFixture.category)
	if err != nil {
		return fmt.Errorf("categories%w", err)
	}
	for _, c := range categories {
		if _, err := cache.Categories().Put(ctx, c); err != nil {
			return err
		}
	}

	lines, err := convertAll(seed.Cart, CartFixture.line)
	if err != nil {
		return fmt.Errorf("cart%w", err)
	}
	for _, l := range lines {
		if _, err := cache.Cart().Put(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func stubSource(r Remote) (*testutil.StubSource, error) {
	src := testutil.NewStubSource()

	switch {
	case r.Products == nil:
		src.FailProducts(remote.ErrOffline)
	case r.Products.Fail != "":
		src.FailProducts(errors.New(r.Products.Fail))
	default:
		products, err := convertAll(r.Products.Items, ProductFixture.product)
		if err != nil {
			return nil, fmt.Errorf("products%w", err)
		}
		src.WithProducts(products...)
	}

	switch {
	case r.Categories == nil:
		src.FailCategories(remote.ErrOffline)
	case r.Categories.Fail != "":
		src.FailCategories(errors.New(r.Categories.Fail))
	default:
		categories, err := convertAll(r.Categories.Items, CategoryFixture.category)
		if err != nil {
			return nil, fmt.Errorf("categories%w", err)
		}
		src.WithCategories(categories...)
	}
	return src, nil
}

// stepAction resolves a step against the current state. add_to_cart looks
// the product up in the catalog first and the cart second, so a restored
// cart can be edited while the catalog is empty.
func stepAction(s domain.State, step Step) (engine.Action, error) {
	switch step.Action {
	case StepSelectCategory:
		return engine.SetCurrentCategory(step.ID), nil
	case StepAddToCart:
		if p, ok := s.Product(step.ID); ok {
			return engine.AddToCart(p, step.Qty), nil
		}
		if l, ok := s.CartItem(step.ID); ok {
			return engine.AddToCart(l.Product, step.Qty), nil
		}
		return engine.Action{}, fmt.Errorf("product %q is not in the catalog", step.ID)
	case StepSetQuantity:
		return engine.SetCartQuantity(step.ID, step.Qty), nil
	case StepUpdateQuantity:
		return engine.UpdateCartQuantity(step.ID, step.Qty), nil
	case StepRemoveFromCart:
		return engine.RemoveFromCart(step.ID), nil
	case StepClearCart:
		return engine.ClearCart(), nil
	case StepToggleCart:
		return engine.ToggleCartOpen(), nil
	}
	return engine.Action{}, fmt.Errorf("unknown action %q", step.Action)
}

func checkExpect(result *Result, e *Expect) {
	final := result.Final

	if e.Products != nil {
		expectIDs(result, "products", e.Products, productIDs(final.Products))
	}
	if e.Visible != nil {
		expectIDs(result, "visible", e.Visible, productIDs(final.FilteredProducts()))
	}
	if e.Categories != nil {
		got := make([]string, 0, len(final.Categories))
		for _, c := range final.Categories {
			got = append(got, c.ID)
		}
		expectIDs(result, "categories", e.Categories, got)
	}
	if e.CurrentCategory != nil && *e.CurrentCategory != final.CurrentCategory {
		result.AddError(fmt.Sprintf("current_category: expected %q, got %q", *e.CurrentCategory, final.CurrentCategory))
	}
	if e.Cart != nil {
		want := make([]LineSnapshot, 0, len(e.Cart))
		for _, l := range e.Cart {
			want = append(want, LineSnapshot(l))
		}
		if got := snapshotCart(final.Cart); !slices.Equal(want, got) {
			result.AddError(fmt.Sprintf("cart: expected %v, got %v", want, got))
		}
	}
	if e.CartOpen != nil && *e.CartOpen != final.CartOpen {
		result.AddError(fmt.Sprintf("cart_open: expected %t, got %t", *e.CartOpen, final.CartOpen))
	}
	if e.Total != "" {
		// Validated at load.
		want, _ := decimal.NewFromString(e.Total)
		if got := final.CartTotal(); !got.Equal(want) {
			result.AddError(fmt.Sprintf("total: expected %s, got %s", want, got))
		}
	}
	for _, coll := range store.Collections {
		want, ok := e.Cache[coll]
		if !ok {
			continue
		}
		expectIDs(result, "cache."+coll, want, result.Cache[coll])
	}
	for _, st := range result.Hydration {
		want, ok := e.Hydration[st.Domain]
		if !ok {
			continue
		}
		if want.Phase != st.Phase.String() || want.Source != st.Source {
			result.AddError(fmt.Sprintf("hydration.%s: expected %s from %s, got %s from %s",
				st.Domain, want.Phase, want.Source, st.Phase, st.Source))
		}
	}
}

func expectIDs(result *Result, field string, want, got []string) {
	if !slices.Equal(want, got) {
		result.AddError(fmt.Sprintf("%s: expected %v, got %v", field, want, got))
	}
}

func productIDs(products []domain.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}
