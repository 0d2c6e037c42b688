// Package sqlconn adapts a pinned database/sql connection to the
// driver.Connection boundary. Transaction control is emitted as plain
// BEGIN/COMMIT/ROLLBACK/SAVEPOINT statements so the connection stays a
// single session from the engine's point of view; database/sql's own Tx
// type is deliberately not used because it unpins the connection on end.
package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/usulkies/jdbi/pkg/driver"
)

// ErrClosed is returned for any operation on a closed connection.
var ErrClosed = errors.New("sqlconn: connection is closed")

// Conn is a driver.Connection over a *sql.Conn. The in-transaction flag,
// read-only hint and isolation level are tracked locally; database/sql
// exposes none of them on a raw connection.
type Conn struct {
	conn *sql.Conn

	mu       sync.Mutex
	inTx     bool
	readOnly bool
	level    driver.IsolationLevel
	closed   bool
}

var _ driver.Connection = (*Conn)(nil)

// New wraps an already-pinned *sql.Conn. The isolation level starts at
// READ COMMITTED, the common engine default; callers whose engine differs
// should set it before handing the connection to a session.
func New(conn *sql.Conn) *Conn {
	return &Conn{
		conn:  conn,
		level: driver.LevelReadCommitted,
	}
}

// Open pins a connection out of db and wraps it.
func Open(ctx context.Context, db *sql.DB) (*Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlconn: acquire connection: %w", err)
	}
	return New(conn), nil
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *Conn) Prepare(ctx context.Context, query string) (driver.Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &preparedStatement{stmt: stmt}, nil
}

func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.inTx {
		return errors.New("sqlconn: transaction already open")
	}
	if _, err := c.conn.ExecContext(ctx, "BEGIN"); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	return c.endTx(ctx, "COMMIT")
}

func (c *Conn) Rollback(ctx context.Context) error {
	return c.endTx(ctx, "ROLLBACK")
}

func (c *Conn) endTx(ctx context.Context, verb string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.inTx {
		return errors.New("sqlconn: no transaction is open")
	}
	if _, err := c.conn.ExecContext(ctx, verb); err != nil {
		return err
	}
	c.inTx = false
	return nil
}

func (c *Conn) InTransaction(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	return c.inTx, nil
}

func (c *Conn) Savepoint(ctx context.Context, name string) error {
	return c.savepointOp(ctx, "SAVEPOINT "+quoteIdent(name))
}

func (c *Conn) RollbackToSavepoint(ctx context.Context, name string) error {
	return c.savepointOp(ctx, "ROLLBACK TO SAVEPOINT "+quoteIdent(name))
}

func (c *Conn) ReleaseSavepoint(ctx context.Context, name string) error {
	return c.savepointOp(ctx, "RELEASE SAVEPOINT "+quoteIdent(name))
}

func (c *Conn) savepointOp(ctx context.Context, query string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.inTx {
		return errors.New("sqlconn: no transaction is open")
	}
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

func (c *Conn) IsReadOnly(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	return c.readOnly, nil
}

// SetReadOnly records the read-only hint. Engines apply such hints at
// transaction boundaries, so changing it mid-transaction is an error.
func (c *Conn) SetReadOnly(ctx context.Context, readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.inTx {
		return errors.New("sqlconn: cannot change read-only mode inside a transaction")
	}
	c.readOnly = readOnly
	return nil
}

func (c *Conn) IsolationLevel(ctx context.Context) (driver.IsolationLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return driver.LevelUnspecified, ErrClosed
	}
	return c.level, nil
}

// SetIsolationLevel records the level new transactions should get.
// LevelUnspecified leaves the current level alone.
func (c *Conn) SetIsolationLevel(ctx context.Context, level driver.IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.inTx {
		return errors.New("sqlconn: cannot change isolation level inside a transaction")
	}
	if level == driver.LevelUnspecified {
		return nil
	}
	c.level = level
	return nil
}

func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return c.conn.Close()
}

// quoteIdent makes a savepoint name safe to splice into SQL. Double-quote
// quoting works for SQLite and PostgreSQL; MySQL needs ANSI_QUOTES.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type preparedStatement struct {
	stmt *sql.Stmt
}

func (p *preparedStatement) Exec(ctx context.Context, args ...any) (int64, error) {
	res, err := p.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *preparedStatement) Query(ctx context.Context, args ...any) (driver.Rows, error) {
	return p.stmt.QueryContext(ctx, args...)
}

func (p *preparedStatement) Close() error {
	return p.stmt.Close()
}
