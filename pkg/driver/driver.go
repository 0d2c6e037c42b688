package driver

import "context"

// Connection is a live, already-open database connection. It is the only
// resource a Handle owns exclusively; everything the session core does
// eventually lands on one of these methods.
//
// Implementations are expected to be single-threaded in the usual SQL
// client sense: callers must not issue concurrent operations on one
// Connection. Cancellation and timeouts are the connection's own business,
// driven through the context passed to each call.
type Connection interface {
	// Exec runs a statement that returns no rows and reports the number
	// of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Prepare creates a reusable statement resource. The caller owns the
	// returned Statement and must close it.
	Prepare(ctx context.Context, sql string) (Statement, error)

	// Begin opens a transaction on the connection. Fails if one is
	// already open.
	Begin(ctx context.Context) error

	// Commit ends the open transaction, making its work durable.
	Commit(ctx context.Context) error

	// Rollback ends the open transaction, discarding its work.
	Rollback(ctx context.Context) error

	// InTransaction reports whether a transaction is currently open.
	InTransaction(ctx context.Context) (bool, error)

	// Savepoint creates a named point inside the open transaction.
	Savepoint(ctx context.Context, name string) error

	// RollbackToSavepoint undoes work back to the named point. The
	// savepoint itself survives.
	RollbackToSavepoint(ctx context.Context, name string) error

	// ReleaseSavepoint destroys the named point.
	ReleaseSavepoint(ctx context.Context, name string) error

	// IsReadOnly reports the connection's read-only hint.
	IsReadOnly(ctx context.Context) (bool, error)

	// SetReadOnly sets the read-only hint. May be rejected while a
	// transaction is open.
	SetReadOnly(ctx context.Context, readOnly bool) error

	// IsolationLevel reports the isolation level new transactions get.
	IsolationLevel(ctx context.Context) (IsolationLevel, error)

	// SetIsolationLevel changes the isolation level for new transactions.
	SetIsolationLevel(ctx context.Context, level IsolationLevel) error

	// Close releases the connection. Further calls on the connection fail.
	Close(ctx context.Context) error
}

// Statement is a prepared statement resource created by Connection.Prepare.
type Statement interface {
	Exec(ctx context.Context, args ...any) (int64, error)
	Query(ctx context.Context, args ...any) (Rows, error)
	Close() error
}

// Rows is a forward-only cursor over a query result.
type Rows interface {
	// Columns returns the result column names, in select order.
	Columns() ([]string, error)

	// Next advances to the next row, reporting false when exhausted.
	Next() bool

	// Scan copies the current row into dest.
	Scan(dest ...any) error

	// Err returns the error, if any, that ended iteration early.
	Err() error

	Close() error
}
