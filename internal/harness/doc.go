// Package harness runs storefront scenarios against the real engine
// container, sync orchestrator and an in-memory SQLite cache.
//
// A scenario seeds the cache as if an earlier session had run, scripts
// the remote catalog, dispatches user steps once hydration has settled,
// and checks the settled state, the persisted cache and the step trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  products: [{id: p1, name: Mug, price: "12.50", category: c1}]
//	  cart: [{id: p1, name: Mug, price: "12.50", qty: 2}]
//	remote:
//	  products:
//	    fail: "503 service unavailable"
//	  categories:
//	    items: [{id: c1, name: Kitchen}]
//	steps:
//	  - action: add_to_cart
//	    id: p1
//	    qty: 1
//	expect:
//	  cart: [{id: p1, qty: 3}]
//	  cache:
//	    cart: [p1]
//	  hydration:
//	    products: {phase: failed, source: cache}
//	assertions:
//	  - type: trace_contains
//	    action: ADD_TO_CART
//
// A remote resource that is left out behaves as offline.
//
// # Assertion Types
//
//   - trace_contains: an action kind appears in the step trace, optionally for an id
//   - trace_order: action kinds first appear in the given order
//   - trace_count: an action kind appears exactly N times
//
// # Golden Files
//
// RunWithGolden serializes hydration, the step trace, the cart total and
// the cache ids as canonical JSON and compares them with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
