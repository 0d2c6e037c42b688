package core

import (
	"context"
)

// IsClosed reports whether Close has run.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close releases the handle's resources in a fixed order: detect a leaked
// transaction, clear the per-goroutine slots, roll the leak back, close
// the statement builder, close the connection. Every step runs even when
// earlier ones fail; recorded failures come back as one CLOSE_FAILED
// error with the rest suppressed. A connection-close failure is always
// the primary cause. If everything released cleanly but a transaction had
// to be rolled back, Close returns a TRANSACTION_LEAK error instead.
// Close is idempotent; the handle is marked closed no matter what.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	builder := h.statementBuilder
	logger := h.logger
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		logger.Debug("handle [%s] released", h.id)
	}()

	ctx := context.Background()
	var recorded []error

	wasInTransaction := false
	if h.forceEndTransactions && HandlesConfig(h.Config()).ForceEndTransactions() {
		inTx, err := h.transactions.IsInTransaction(ctx, h)
		if err != nil {
			recorded = append(recorded, err)
		}
		wasInTransaction = inTx
	}

	h.localMethod.clear()
	h.localConfig.clear()

	if wasInTransaction {
		logger.Warn("handle [%s] rolling back transaction left open at close", h.id)
		if err := h.Rollback(ctx); err != nil {
			recorded = append(recorded, err)
		}
	}

	if err := builder.Close(h.conn); err != nil {
		recorded = append(recorded, err)
	}

	if err := h.conn.Close(ctx); err != nil {
		return NewError(ErrCodeCloseFailed, "unable to close connection", err).
			AddSuppressed(recorded...)
	}
	if len(recorded) > 0 {
		return NewError(ErrCodeCloseFailed, "failed to clear transaction status on close", recorded[0]).
			AddSuppressed(recorded[1:]...)
	}
	if wasInTransaction {
		return NewError(ErrCodeTransactionLeak,
			"handle closed with an open transaction; it has been rolled back; "+
				"commit or roll back explicitly before closing, or disable this check "+
				"via Handles.SetForceEndTransactions(false)", nil)
	}
	return nil
}
