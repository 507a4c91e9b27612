package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopsync/internal/store"
	"github.com/roach88/shopsync/internal/syncer"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return scenario
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_TraceStartsAfterHydration(t *testing.T) {
	result, err := Run(mustParse(t, `
name: toggle
description: "One toggle after an offline mount"
steps:
  - action: toggle_cart
`))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	// Three hydration transitions, one per domain, precede the step.
	require.Len(t, result.Trace, 1)
	assert.Equal(t, int64(4), result.Trace[0].Seq)
	assert.Equal(t, "TOGGLE_CART", result.Trace[0].Action)
	assert.True(t, result.Trace[0].CartOpen)
	assert.Equal(t, []LineSnapshot{}, result.Trace[0].Cart)

	require.Len(t, result.Hydration, 3)
	for _, st := range result.Hydration {
		assert.Equal(t, syncer.PhaseFailed, st.Phase, st.Domain)
		assert.Equal(t, syncer.SourceCache, st.Source, st.Domain)
	}
}

func TestRun_ReportsExpectationFailures(t *testing.T) {
	result, err := Run(mustParse(t, `
name: wrong
description: "Every expectation is off by one"
remote:
  products:
    items:
      - {id: p1, name: Mug, price: "2", category: c1}
  categories:
    items:
      - {id: c1, name: Kitchen}
steps:
  - action: add_to_cart
    id: p1
expect:
  products: [p2]
  visible: []
  categories: []
  current_category: c1
  cart:
    - {id: p1, qty: 2}
  cart_open: false
  total: "3"
  cache:
    cart: []
  hydration:
    products: {phase: failed, source: cache}
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	for _, want := range []string{
		"products: expected [p2], got [p1]",
		"visible: expected [], got [p1]",
		"categories: expected [], got [c1]",
		`current_category: expected "c1", got ""`,
		"cart: expected",
		"cart_open: expected false, got true",
		"total: expected 3, got 2",
		"cache.cart: expected [], got [p1]",
		"hydration.products: expected failed from cache, got resolved from remote",
	} {
		assert.Contains(t, joined, want)
	}
	assert.Len(t, result.Errors, 9)
}

func TestRun_UnknownProductIsReported(t *testing.T) {
	result, err := Run(mustParse(t, `
name: ghost
description: "Adds a product nobody has heard of"
steps:
  - action: add_to_cart
    id: ghost
  - action: toggle_cart
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `steps[0]: product "ghost" is not in the catalog`)

	// Later steps still run.
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "TOGGLE_CART", result.Trace[0].Action)
}

func TestRun_RestoredCartLineCanBeIncremented(t *testing.T) {
	result, err := Run(mustParse(t, `
name: restored
description: "Catalog is empty but the cart line is known"
seed:
  cart:
    - {id: p1, name: Mug, price: "1.10", qty: 1}
steps:
  - action: add_to_cart
    id: p1
    qty: 2
expect:
  products: []
  cart:
    - {id: p1, qty: 3}
  total: "3.30"
  cache:
    cart: [p1]
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RemoteFailureMessage(t *testing.T) {
	result, err := Run(mustParse(t, `
name: outage
description: "Products endpoint fails, categories answer"
remote:
  products:
    fail: "connection refused"
  categories:
    items:
      - {id: c1, name: Kitchen}
expect:
  hydration:
    products: {phase: failed, source: cache}
    categories: {phase: resolved, source: remote}
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	for _, st := range result.Hydration {
		if st.Domain == syncer.DomainProducts {
			assert.Contains(t, st.Error, "connection refused")
		}
	}
}

func TestRunContext_CanceledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunContext(ctx, mustParse(t, `
name: canceled
description: "Never gets to hydrate"
steps:
  - action: toggle_cart
`))
	require.Error(t, err)
}

func TestSnapshotCache_CoversEveryCollection(t *testing.T) {
	result, err := Run(mustParse(t, `
name: empty
description: "Nothing anywhere"
expect: {}
`))
	require.NoError(t, err)
	for _, coll := range store.Collections {
		ids, ok := result.Cache[coll]
		assert.True(t, ok, coll)
		assert.Empty(t, ids, coll)
	}
}
