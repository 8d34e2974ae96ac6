package loader

import (
	"context"
	"sync"
	"time"
)

// reloadQueue is the single process-wide queue of canonical names awaiting
// a deferred reload, drained by a background goroutine. The queue only
// ever needs to carry a name: the deferred-reload bit itself is
// level-triggered and lives on the record, so repeated requests before
// drain coalesce for free — enqueue is a no-op if the name is already
// pending.
type reloadQueue struct {
	mu      sync.Mutex
	pending map[string]bool
	ch      chan string

	backoff map[string]*backoffState
}

// backoffState tracks retry backoff per module name, generalized from a
// single global failure counter to one counter per module.
type backoffState struct {
	failures    int
	lastFailure time.Time
}

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

func newReloadQueue() *reloadQueue {
	return &reloadQueue{
		pending: make(map[string]bool),
		ch:      make(chan string, 256),
		backoff: make(map[string]*backoffState),
	}
}

// enqueue adds name to the queue if it is not already pending. Called
// while the caller still holds the record's transitionMu, so the
// pending-check and the enqueue are atomic with respect to the decrement
// that triggered it.
func (q *reloadQueue) enqueue(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending[name] {
		return
	}
	q.pending[name] = true
	select {
	case q.ch <- name:
	default:
		// Channel full: hand the send to a goroutine so the name still
		// reaches the drainer once it frees space. pending[name] stays true
		// meanwhile, so repeated requests keep coalescing.
		go func() { q.ch <- name }()
	}
}

// calculateBackoff returns how long to wait before retrying name, doubling
// per consecutive failure up to backoffCap.
func (q *reloadQueue) calculateBackoff(name string) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.backoff[name]
	if !ok || st.failures == 0 {
		return 0
	}
	d := backoffBase << uint(st.failures-1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	return d
}

func (q *reloadQueue) recordFailure(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.backoff[name]
	if !ok {
		st = &backoffState{}
		q.backoff[name] = st
	}
	st.failures++
	st.lastFailure = time.Now()
}

func (q *reloadQueue) resetFailures(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.backoff, name)
}

func (q *reloadQueue) clearPending(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, name)
}

// drain runs until ctx is canceled, popping names and invoking handle for
// each — the coordinator wires handle to retry reload(name,
// try_delayed=false). A failure only raises that name's failure count,
// which lengthens the wait before its next drained reload; drain does not
// change the record itself, so its state and deferred-reload bit are
// whatever the failed reload left (a refused reload leaves the record
// loaded with the bit still set).
func (q *reloadQueue) drain(ctx context.Context, handle func(ctx context.Context, name string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-q.ch:
			q.clearPending(name)
			if wait := q.calculateBackoff(name); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
			if err := handle(ctx, name); err != nil {
				q.recordFailure(name)
			} else {
				q.resetFailures(name)
			}
		}
	}
}
