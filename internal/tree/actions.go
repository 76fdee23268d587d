package tree

import "errors"

// ErrQueueDraining is returned when a deferred action tries to enqueue another.
var ErrQueueDraining = errors.New("tree: enqueue while draining deferred actions")

// Queue holds deferred actions for a single request turn. Actions run once,
// in enqueue order, when the turn's owner calls Drain after reconciliation
// and before producing the response.
type Queue struct {
	pending  []func()
	draining bool
}

func (q *Queue) Enqueue(fn func()) error {
	if fn == nil {
		return nil
	}
	if q.draining {
		return ErrQueueDraining
	}
	q.pending = append(q.pending, fn)
	return nil
}

func (q *Queue) Len() int { return len(q.pending) }

// Drain runs every pending action and reports how many ran.
func (q *Queue) Drain() int {
	pending := q.pending
	q.pending = nil
	q.draining = true
	defer func() { q.draining = false }()
	for _, fn := range pending {
		fn()
	}
	return len(pending)
}
