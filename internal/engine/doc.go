// Package engine implements the storefront state container.
//
// ARCHITECTURE:
//
// Pure Reducer:
// Reduce(state, action) is the only way a state is produced. It is total,
// never fails and never writes to the slices of its input; unknown action
// kinds are identity transitions.
//
// Single-Writer Drain Loop:
// Dispatch appends to a FIFO queue. Whichever caller finds the container
// idle drains the queue, applying one action at a time and notifying every
// observer before the next action is applied. This ensures:
// - A total order of transitions equal to dispatch order
// - No interleaving of two dispatches, even across goroutines
// - Dispatches issued by an observer are queued, not applied recursively
//
// Every transition is stamped with a monotonic seq from Clock.Next().
//
// Snapshots:
// State() and every Transition handed to an observer are deep clones, so a
// consumer mutating what it received can never reach container state.
//
// Durable I/O never happens here. Observers that persist state (see
// internal/syncer) must hand the work to their own goroutines.
package engine
