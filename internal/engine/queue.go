package engine

import "sync"

// actionQueue is an unbounded FIFO of pending dispatches.
//
// Dispatch may be called from any goroutine, and from inside an observer,
// so enqueuing never blocks and never waits for the drainer.
type actionQueue struct {
	mu      sync.Mutex
	actions []Action
}

func newActionQueue() *actionQueue {
	return &actionQueue{actions: make([]Action, 0, 16)}
}

// Enqueue appends an action to the back of the queue.
func (q *actionQueue) Enqueue(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

// TryDequeue removes the front action. Returns false when empty.
func (q *actionQueue) TryDequeue() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return Action{}, false
	}
	a := q.actions[0]
	// Drop the slot's references so payload slices can be collected.
	q.actions[0] = Action{}
	if len(q.actions) == 1 {
		q.actions = q.actions[:0]
	} else {
		q.actions = q.actions[1:]
	}
	return a, true
}

// Len returns the number of pending actions.
func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
