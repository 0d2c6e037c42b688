package core

import (
	"context"
	"fmt"
	"time"

	"github.com/usulkies/jdbi/pkg/driver"
)

// IsInTransaction reports whether a transaction is open, as seen by the
// handle's transaction handler.
func (h *Handle) IsInTransaction(ctx context.Context) (bool, error) {
	if err := h.checkOpen(); err != nil {
		return false, err
	}
	return h.transactions.IsInTransaction(ctx, h)
}

// Begin starts a transaction.
func (h *Handle) Begin(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.transactions.Begin(ctx, h); err != nil {
		return err
	}
	h.Logger().Debug("handle [%s] begin transaction", h.id)
	return nil
}

// Commit commits the open transaction, then fires the pending afterCommit
// callbacks synchronously, in registration order. A callback panic
// propagates; the commit has already taken effect.
func (h *Handle) Commit(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	if err := h.transactions.Commit(ctx, h); err != nil {
		return err
	}
	h.Logger().Debug("handle [%s] commit transaction in %dms", h.id, msSince(start))
	for _, cb := range HandlesConfig(h.Config()).drainCallbacks() {
		if cb.AfterCommit != nil {
			cb.AfterCommit()
		}
	}
	return nil
}

// Rollback rolls back the open transaction, then fires the pending
// afterRollback callbacks synchronously, in registration order.
func (h *Handle) Rollback(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	if err := h.transactions.Rollback(ctx, h); err != nil {
		return err
	}
	h.Logger().Debug("handle [%s] rollback transaction in %dms", h.id, msSince(start))
	for _, cb := range HandlesConfig(h.Config()).drainCallbacks() {
		if cb.AfterRollback != nil {
			cb.AfterRollback()
		}
	}
	return nil
}

// AfterCommit registers fn to run the next time this handle commits,
// unless it rolls back first. Requires an open transaction.
func (h *Handle) AfterCommit(fn func()) error {
	return h.addTransactionCallback(TransactionCallback{AfterCommit: fn})
}

// AfterRollback registers fn to run the next time this handle rolls back,
// unless it commits first. Requires an open transaction.
func (h *Handle) AfterRollback(fn func()) error {
	return h.addTransactionCallback(TransactionCallback{AfterRollback: fn})
}

func (h *Handle) addTransactionCallback(cb TransactionCallback) error {
	inTx, err := h.IsInTransaction(context.Background())
	if err != nil {
		return err
	}
	if !inTx {
		return NewError(ErrCodeTransaction, "handle must be in a transaction", nil)
	}
	HandlesConfig(h.Config()).addCallback(cb)
	return nil
}

// Savepoint creates a named savepoint in the open transaction.
func (h *Handle) Savepoint(ctx context.Context, name string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.transactions.Savepoint(ctx, h, name); err != nil {
		return err
	}
	h.Logger().Debug("handle [%s] savepoint %q", h.id, name)
	return nil
}

// RollbackToSavepoint undoes work back to a named savepoint.
func (h *Handle) RollbackToSavepoint(ctx context.Context, name string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	if err := h.transactions.RollbackToSavepoint(ctx, h, name); err != nil {
		return err
	}
	h.Logger().Debug("handle [%s] rollback to savepoint %q in %dms", h.id, name, msSince(start))
	return nil
}

// ReleaseSavepoint destroys a named savepoint.
func (h *Handle) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.transactions.ReleaseSavepoint(ctx, h, name); err != nil {
		return err
	}
	h.Logger().Debug("handle [%s] release savepoint %q", h.id, name)
	return nil
}

// InTransaction runs fn in a transaction. If one is already open, fn runs
// directly on the handle: transactions do not nest, reentrancy is
// transparent. Otherwise a transaction is begun, committed on success and
// rolled back when fn returns an error; the error propagates.
func (h *Handle) InTransaction(ctx context.Context, fn Callback) error {
	inTx, err := h.IsInTransaction(ctx)
	if err != nil {
		return err
	}
	if inTx {
		return fn(h)
	}
	return h.transactions.InTransaction(ctx, h, fn)
}

// InTransactionWithLevel is InTransaction with an isolation level applied
// for the scope of the transaction and restored afterward on every exit
// path. When already inside a transaction, a different requested level
// (other than LevelUnspecified) fails fast; mismatched nested levels are
// never silently honored.
func (h *Handle) InTransactionWithLevel(ctx context.Context, level driver.IsolationLevel, fn Callback) (retErr error) {
	inTx, err := h.IsInTransaction(ctx)
	if err != nil {
		return err
	}
	if inTx {
		current, err := h.IsolationLevel(ctx)
		if err != nil {
			return err
		}
		if current != level && level != driver.LevelUnspecified {
			return NewError(ErrCodeTransaction, fmt.Sprintf(
				"tried to execute nested transaction with isolation level %s, "+
					"but already running in a transaction with isolation level %s", level, current), nil)
		}
		return fn(h)
	}

	previous, err := h.IsolationLevel(ctx)
	if err != nil {
		return err
	}
	if err := h.SetIsolationLevel(ctx, level); err != nil {
		return err
	}
	defer func() {
		if err := h.SetIsolationLevel(ctx, previous); err != nil && retErr == nil {
			retErr = err
		}
	}()
	return h.transactions.InTransactionIsolated(ctx, h, level, fn)
}

// ReadOnly reports the connection's read-only mode.
func (h *Handle) ReadOnly(ctx context.Context) (bool, error) {
	if err := h.checkOpen(); err != nil {
		return false, err
	}
	readOnly, err := h.conn.IsReadOnly(ctx)
	if err != nil {
		return false, WrapError(err, ErrCodeConnection, "could not get read-only mode")
	}
	return readOnly, nil
}

// SetReadOnly sets the connection's read-only hint. Not allowed inside an
// open transaction by most engines.
func (h *Handle) SetReadOnly(ctx context.Context, readOnly bool) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.conn.SetReadOnly(ctx, readOnly); err != nil {
		return WrapError(err, ErrCodeConnection, "could not set read-only mode")
	}
	return nil
}

// IsolationLevel reports the connection's current isolation level.
func (h *Handle) IsolationLevel(ctx context.Context) (driver.IsolationLevel, error) {
	if err := h.checkOpen(); err != nil {
		return driver.LevelUnspecified, err
	}
	level, err := h.conn.IsolationLevel(ctx)
	if err != nil {
		return driver.LevelUnspecified, WrapError(err, ErrCodeConnection, "unable to access current isolation level")
	}
	return level, nil
}

// SetIsolationLevel changes the connection's isolation level.
// LevelUnspecified is a no-op, as is a level equal to the current one; no
// round-trip is made in either case.
func (h *Handle) SetIsolationLevel(ctx context.Context, level driver.IsolationLevel) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if level == driver.LevelUnspecified {
		return nil
	}
	current, err := h.conn.IsolationLevel(ctx)
	if err != nil {
		return WrapError(err, ErrCodeConnection, "unable to access current isolation level")
	}
	if current == level {
		return nil
	}
	if err := h.conn.SetIsolationLevel(ctx, level); err != nil {
		return WrapError(err, ErrCodeConnection, fmt.Sprintf("unable to set isolation level %s", level))
	}
	return nil
}

func msSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
