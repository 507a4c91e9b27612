package syncer

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the lifecycle position of one domain fetch.
type Phase int

const (
	PhaseUnfetched Phase = iota
	PhasePending
	PhaseResolved
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnfetched:
		return "unfetched"
	case PhasePending:
		return "pending"
	case PhaseResolved:
		return "resolved"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase name, so statuses encode readably.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseResolved || p == PhaseFailed
}

// ErrIllegalTransition is wrapped by every rejected FetchState transition.
var ErrIllegalTransition = errors.New("illegal fetch transition")

// FetchState tracks one fetch. Only three transitions exist:
// Begin (Unfetched to Pending), Resolve and Fail (Pending to a terminal
// phase). Anything else is rejected, so a pending fetch can never be read
// as a failed one.
type FetchState[T any] struct {
	mu    sync.Mutex
	phase Phase
	data  T
	err   error
}

// Begin moves Unfetched to Pending.
func (f *FetchState[T]) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.move(PhaseUnfetched, PhasePending)
}

// Resolve moves Pending to Resolved and keeps data.
func (f *FetchState[T]) Resolve(data T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.move(PhasePending, PhaseResolved); err != nil {
		return err
	}
	f.data = data
	return nil
}

// Fail moves Pending to Failed and keeps the cause.
func (f *FetchState[T]) Fail(cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.move(PhasePending, PhaseFailed); err != nil {
		return err
	}
	f.err = cause
	return nil
}

func (f *FetchState[T]) move(from, to Phase) error {
	if f.phase != from {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.phase, to)
	}
	f.phase = to
	return nil
}

// Phase returns the current phase.
func (f *FetchState[T]) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Data returns the resolved data. ok is false unless the phase is Resolved.
func (f *FetchState[T]) Data() (data T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.phase == PhaseResolved
}

// Err returns the failure cause, or nil unless the phase is Failed.
func (f *FetchState[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
