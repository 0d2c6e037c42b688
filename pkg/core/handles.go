package core

import (
	"sync"

	"github.com/usulkies/jdbi/pkg/config"
)

// TransactionCallback is caller work deferred until the surrounding
// transaction ends. Exactly one of the two funcs fires, matching how the
// transaction ended; nil funcs are skipped.
type TransactionCallback struct {
	AfterCommit   func()
	AfterRollback func()
}

// Handles is the built-in configuration entry for handle behavior. It also
// owns the pending transaction-callback queue; the queue is handle-scoped,
// so registry copies share it while the flags are copied.
type Handles struct {
	mu                   sync.Mutex
	forceEndTransactions bool
	callbacks            *callbackQueue
}

func newHandles() *Handles {
	return &Handles{
		forceEndTransactions: true,
		callbacks:            &callbackQueue{},
	}
}

// HandlesConfig returns the Handles entry of r, fabricating defaults on
// first use.
func HandlesConfig(r *config.Registry) *Handles {
	return config.Get(r, func() *Handles { return newHandles() })
}

// CreateCopy copies the flags and shares the callback queue.
func (h *Handles) CreateCopy() config.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &Handles{
		forceEndTransactions: h.forceEndTransactions,
		callbacks:            h.callbacks,
	}
}

// ForceEndTransactions reports whether close rolls back and reports a
// transaction the caller left open. On by default.
func (h *Handles) ForceEndTransactions() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forceEndTransactions
}

// SetForceEndTransactions disables or re-enables the close-time
// transaction-leak check.
func (h *Handles) SetForceEndTransactions(force bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forceEndTransactions = force
}

func (h *Handles) addCallback(cb TransactionCallback) {
	h.mu.Lock()
	queue := h.callbacks
	h.mu.Unlock()
	queue.add(cb)
}

func (h *Handles) drainCallbacks() []TransactionCallback {
	h.mu.Lock()
	queue := h.callbacks
	h.mu.Unlock()
	return queue.drain()
}

type callbackQueue struct {
	mu      sync.Mutex
	pending []TransactionCallback
}

func (q *callbackQueue) add(cb TransactionCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, cb)
}

// drain removes and returns all pending callbacks in registration order.
func (q *callbackQueue) drain() []TransactionCallback {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.pending
	q.pending = nil
	return drained
}
