package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/usulkies/jdbi/pkg/driver"
)

// Callback runs caller work against a handle with an open transaction.
type Callback func(h *Handle) error

// TransactionHandler encapsulates how transactions begin and end against a
// connection. A handle is given a template handler at construction and
// keeps the specialized instance for its whole life; failures propagate
// unwrapped to the handle's caller.
type TransactionHandler interface {
	// Specialize binds the handler to one handle. Called once, at handle
	// construction.
	Specialize(h *Handle) TransactionHandler

	IsInTransaction(ctx context.Context, h *Handle) (bool, error)
	Begin(ctx context.Context, h *Handle) error
	Commit(ctx context.Context, h *Handle) error
	Rollback(ctx context.Context, h *Handle) error

	Savepoint(ctx context.Context, h *Handle, name string) error
	RollbackToSavepoint(ctx context.Context, h *Handle, name string) error
	ReleaseSavepoint(ctx context.Context, h *Handle, name string) error

	// InTransaction runs fn inside a fresh transaction: begin, run,
	// commit, or roll back if fn fails.
	InTransaction(ctx context.Context, h *Handle, fn Callback) error

	// InTransactionIsolated is the isolation-aware variant; the handle
	// has already applied the level to the connection before delegating.
	InTransactionIsolated(ctx context.Context, h *Handle, level driver.IsolationLevel, fn Callback) error
}

// LocalTransactionHandler drives transactions directly on the handle's
// connection. The template holds no per-handle state; Specialize binds a
// fresh savepoint ledger per handle. Unknown savepoint names fail fast
// against the ledger, since engines report them inconsistently.
type LocalTransactionHandler struct {
	mu         sync.Mutex
	savepoints []string // live savepoints, oldest first
}

// NewLocalTransactionHandler creates the stock handler template.
func NewLocalTransactionHandler() *LocalTransactionHandler {
	return &LocalTransactionHandler{}
}

func (t *LocalTransactionHandler) Specialize(h *Handle) TransactionHandler {
	return &LocalTransactionHandler{}
}

func (t *LocalTransactionHandler) IsInTransaction(ctx context.Context, h *Handle) (bool, error) {
	return h.Connection().InTransaction(ctx)
}

func (t *LocalTransactionHandler) Begin(ctx context.Context, h *Handle) error {
	active, err := h.Connection().InTransaction(ctx)
	if err != nil {
		return WrapError(err, ErrCodeTransaction, "failed to probe transaction state")
	}
	if active {
		return NewError(ErrCodeTransaction, "already in a transaction", nil)
	}
	if err := h.Connection().Begin(ctx); err != nil {
		return WrapError(err, ErrCodeTransaction, "failed to begin transaction")
	}
	t.mu.Lock()
	t.savepoints = nil
	t.mu.Unlock()
	return nil
}

func (t *LocalTransactionHandler) Commit(ctx context.Context, h *Handle) error {
	if err := t.requireActive(ctx, h); err != nil {
		return err
	}
	if err := h.Connection().Commit(ctx); err != nil {
		return WrapError(err, ErrCodeTransaction, "commit failed")
	}
	t.mu.Lock()
	t.savepoints = nil
	t.mu.Unlock()
	return nil
}

func (t *LocalTransactionHandler) Rollback(ctx context.Context, h *Handle) error {
	if err := t.requireActive(ctx, h); err != nil {
		return err
	}
	if err := h.Connection().Rollback(ctx); err != nil {
		return WrapError(err, ErrCodeTransaction, "rollback failed")
	}
	t.mu.Lock()
	t.savepoints = nil
	t.mu.Unlock()
	return nil
}

func (t *LocalTransactionHandler) Savepoint(ctx context.Context, h *Handle, name string) error {
	if err := t.requireActive(ctx, h); err != nil {
		return err
	}
	if err := h.Connection().Savepoint(ctx, name); err != nil {
		return WrapError(err, ErrCodeTransaction, fmt.Sprintf("failed to create savepoint %q", name))
	}
	t.mu.Lock()
	t.savepoints = append(t.savepoints, name)
	t.mu.Unlock()
	return nil
}

// RollbackToSavepoint undoes work back to name. The savepoint survives;
// savepoints created after it become invalid.
func (t *LocalTransactionHandler) RollbackToSavepoint(ctx context.Context, h *Handle, name string) error {
	if err := t.requireActive(ctx, h); err != nil {
		return err
	}
	idx, err := t.findSavepoint(name)
	if err != nil {
		return err
	}
	if err := h.Connection().RollbackToSavepoint(ctx, name); err != nil {
		return WrapError(err, ErrCodeTransaction, fmt.Sprintf("failed to roll back to savepoint %q", name))
	}
	t.mu.Lock()
	t.savepoints = t.savepoints[:idx+1]
	t.mu.Unlock()
	return nil
}

// ReleaseSavepoint destroys name and every savepoint created after it.
func (t *LocalTransactionHandler) ReleaseSavepoint(ctx context.Context, h *Handle, name string) error {
	if err := t.requireActive(ctx, h); err != nil {
		return err
	}
	idx, err := t.findSavepoint(name)
	if err != nil {
		return err
	}
	if err := h.Connection().ReleaseSavepoint(ctx, name); err != nil {
		return WrapError(err, ErrCodeTransaction, fmt.Sprintf("failed to release savepoint %q", name))
	}
	t.mu.Lock()
	t.savepoints = t.savepoints[:idx]
	t.mu.Unlock()
	return nil
}

func (t *LocalTransactionHandler) InTransaction(ctx context.Context, h *Handle, fn Callback) error {
	if err := h.Begin(ctx); err != nil {
		return err
	}
	if err := fn(h); err != nil {
		if rbErr := h.Rollback(ctx); rbErr != nil {
			return NewError(ErrCodeTransaction, "rollback failed after callback error", rbErr).AddSuppressed(err)
		}
		return err
	}
	if err := h.Commit(ctx); err != nil {
		rbErr := h.Rollback(ctx)
		if coreErr, ok := err.(*Error); ok {
			return coreErr.AddSuppressed(rbErr)
		}
		return NewError(ErrCodeTransaction, "commit failed", err).AddSuppressed(rbErr)
	}
	return nil
}

func (t *LocalTransactionHandler) InTransactionIsolated(ctx context.Context, h *Handle, level driver.IsolationLevel, fn Callback) error {
	return t.InTransaction(ctx, h, fn)
}

func (t *LocalTransactionHandler) requireActive(ctx context.Context, h *Handle) error {
	active, err := h.Connection().InTransaction(ctx)
	if err != nil {
		return WrapError(err, ErrCodeTransaction, "failed to probe transaction state")
	}
	if !active {
		return NewError(ErrCodeTransaction, "no transaction is open", nil)
	}
	return nil
}

// findSavepoint returns the ledger index of the most recent savepoint
// with the given name.
func (t *LocalTransactionHandler) findSavepoint(name string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i] == name {
			return i, nil
		}
	}
	return -1, NewError(ErrCodeTransaction, fmt.Sprintf("savepoint %q does not exist", name), nil)
}
