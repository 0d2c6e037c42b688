package core

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/usulkies/jdbi/pkg/config"
	"github.com/usulkies/jdbi/pkg/driver"
)

// Handle is one database session bound to one open connection. All
// statement execution, transaction control and extension attachment flow
// through it. A Handle may be handed across goroutines that take turns;
// each goroutine sees its own configuration and extension-identity view,
// while connection and transaction state are shared. Concurrent
// transaction operations from multiple goroutines are out of contract.
type Handle struct {
	id           uuid.UUID
	conn         driver.Connection
	transactions TransactionHandler

	// forceEndTransactions is false when the handle started inside an
	// externally managed transaction; close then leaves it alone.
	forceEndTransactions bool

	mu               sync.Mutex
	closed           bool
	logger           Logger
	statementBuilder StatementBuilder

	baseConfig  *config.Registry
	localConfig goroutineLocal[*config.Registry]
	localMethod goroutineLocal[*ExtensionMethod]
}

// NewHandle creates a session over an already-open connection. A nil
// handler, registry or builder gets the stock implementation. The handler
// template is specialized to this handle exactly once, here.
func NewHandle(conn driver.Connection, transactions TransactionHandler, registry *config.Registry, builder StatementBuilder) (*Handle, error) {
	if conn == nil {
		return nil, NewError(ErrCodeInvalidParam, "connection is required", nil)
	}
	if transactions == nil {
		transactions = NewLocalTransactionHandler()
	}
	if registry == nil {
		registry = config.New()
	}
	if builder == nil {
		builder = NewDefaultStatementBuilder()
	}

	h := &Handle{
		id:               uuid.New(),
		conn:             conn,
		logger:           NewNoOpLogger(),
		statementBuilder: builder,
		baseConfig:       registry,
	}
	h.transactions = transactions.Specialize(h)

	inTx, err := h.transactions.IsInTransaction(context.Background(), h)
	if err != nil {
		return nil, WrapError(err, ErrCodeConnection, "failed to probe transaction state")
	}
	h.forceEndTransactions = !inTx

	h.logger.Debug("handle [%s] opened", h.id)
	return h, nil
}

// ID returns the handle's correlation id, used in log lines.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Connection returns the connection this handle owns. Collaborators use
// it to build statement resources; callers should not close it directly.
func (h *Handle) Connection() driver.Connection {
	return h.conn
}

// Logger returns the handle's logger.
func (h *Handle) Logger() Logger {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.logger
}

// SetLogger replaces the handle's logger.
func (h *Handle) SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// StatementBuilder returns the current statement builder.
func (h *Handle) StatementBuilder() StatementBuilder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statementBuilder
}

// SetStatementBuilder installs a different builder, e.g. a caching
// variant. Close closes whichever builder is current, exactly once.
func (h *Handle) SetStatementBuilder(builder StatementBuilder) {
	if builder == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statementBuilder = builder
}

// Config returns the calling goroutine's configuration registry. A
// goroutine that never called SetConfig sees the handle's base registry.
func (h *Handle) Config() *config.Registry {
	if r, ok := h.localConfig.get(); ok {
		return r
	}
	return h.baseConfig
}

// SetConfig gives the calling goroutine its own configuration view.
// Other goroutines are unaffected.
func (h *Handle) SetConfig(registry *config.Registry) {
	if registry == nil {
		return
	}
	h.localConfig.set(registry)
}

// ClearConfig returns the calling goroutine to the base registry.
func (h *Handle) ClearConfig() {
	h.localConfig.remove()
}

// ExtensionMethod returns the capability method currently executing on
// the calling goroutine, or nil.
func (h *Handle) ExtensionMethod() *ExtensionMethod {
	m, _ := h.localMethod.get()
	return m
}

// SetExtensionMethod sets the calling goroutine's extension identity;
// nil unsets it.
func (h *Handle) SetExtensionMethod(m *ExtensionMethod) {
	if m == nil {
		h.localMethod.remove()
		return
	}
	h.localMethod.set(m)
}

func (h *Handle) checkOpen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return NewError(ErrCodeClosed, "handle is closed", nil)
	}
	return nil
}
