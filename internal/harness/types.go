package harness

import (
	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/engine"
	"github.com/roach88/shopsync/internal/syncer"
)

// TraceEvent is one applied step action and the cart it left behind.
type TraceEvent struct {
	Seq             int64          `json:"seq"`
	Action          string         `json:"action"`
	ID              string         `json:"id,omitempty"`
	Qty             int            `json:"qty,omitempty"`
	Cart            []LineSnapshot `json:"cart"`
	CartOpen        bool           `json:"cart_open"`
	CurrentCategory string         `json:"current_category,omitempty"`
}

// LineSnapshot is a cart line reduced to its identity and quantity.
type LineSnapshot struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Hydration is the orchestrator status once every domain settled.
	Hydration []syncer.DomainStatus `json:"hydration"`

	// Trace contains the transitions caused by steps, in order.
	// Hydration transitions are excluded because their relative order
	// depends on which fetch returns first.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the settled in-memory state.
	Final domain.State `json:"-"`

	// Cache holds the ids persisted per collection after every write
	// was flushed.
	Cache map[string][]string `json:"cache"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Hydration: []syncer.DomainStatus{},
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Cache:     make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceEvent builds the trace entry for one transition.
func traceEvent(t engine.Transition) TraceEvent {
	ev := TraceEvent{
		Seq:             t.Seq,
		Action:          string(t.Action.Kind),
		Cart:            snapshotCart(t.Next.Cart),
		CartOpen:        t.Next.CartOpen,
		CurrentCategory: t.Next.CurrentCategory,
	}
	switch t.Action.Kind {
	case engine.ActionAddToCart, engine.ActionSetCartQuantity:
		ev.ID = t.Action.ID
		ev.Qty = t.Action.Quantity
	case engine.ActionRemoveFromCart, engine.ActionSetCurrentCategory:
		ev.ID = t.Action.ID
	}
	return ev
}

func snapshotCart(cart []domain.CartLineItem) []LineSnapshot {
	out := make([]LineSnapshot, 0, len(cart))
	for _, l := range cart {
		out = append(out, LineSnapshot{ID: l.ID, Qty: l.PurchaseQuantity})
	}
	return out
}
