// Package syncer reconciles in-memory state with the remote source and the
// durable cache.
//
// For each domain (products, categories, cart) the Orchestrator runs one
// fetch through an explicit state machine:
//
//	Unfetched -> Pending -> Resolved(data) | Failed
//
// Resolved writes every record through to the cache and dispatches the
// hydrate action. Failed reads the cache and dispatches the same action with
// the cached records. Pending does neither. The cart has no remote source,
// so its fetch fails at once and it always hydrates from the cache.
//
// Independently of fetching, the Orchestrator observes the container and
// mirrors each cart mutation into the cart collection.
//
// Cache I/O never runs on the dispatching goroutine. Every write is its own
// goroutine with no ordering between writes; Wait flushes them.
package syncer
