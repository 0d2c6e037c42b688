package core

import (
	"context"
	"sync"

	"github.com/usulkies/jdbi/pkg/driver"
)

// StatementBuilder prepares statement resources tied to a connection and
// is closeable as a unit during handle close.
type StatementBuilder interface {
	// Create obtains a prepared statement for sql.
	Create(ctx context.Context, conn driver.Connection, sql string) (driver.Statement, error)

	// CloseStatement is called when a statement created by this builder
	// is no longer needed; a caching builder keeps it alive instead.
	CloseStatement(conn driver.Connection, sql string, stmt driver.Statement) error

	// Close releases every resource the builder holds on conn. Called
	// exactly once, from the handle's close sequence.
	Close(conn driver.Connection) error
}

// DefaultStatementBuilder prepares a fresh statement per use and closes
// it right after.
type DefaultStatementBuilder struct{}

func NewDefaultStatementBuilder() *DefaultStatementBuilder {
	return &DefaultStatementBuilder{}
}

func (b *DefaultStatementBuilder) Create(ctx context.Context, conn driver.Connection, sql string) (driver.Statement, error) {
	return conn.Prepare(ctx, sql)
}

func (b *DefaultStatementBuilder) CloseStatement(conn driver.Connection, sql string, stmt driver.Statement) error {
	return stmt.Close()
}

func (b *DefaultStatementBuilder) Close(conn driver.Connection) error {
	return nil
}

// CachingStatementBuilder keeps prepared statements keyed by their SQL
// and reuses them; everything is closed together when the handle closes.
type CachingStatementBuilder struct {
	mu    sync.Mutex
	cache map[string]driver.Statement
}

func NewCachingStatementBuilder() *CachingStatementBuilder {
	return &CachingStatementBuilder{
		cache: make(map[string]driver.Statement),
	}
}

func (b *CachingStatementBuilder) Create(ctx context.Context, conn driver.Connection, sql string) (driver.Statement, error) {
	b.mu.Lock()
	stmt, ok := b.cache[sql]
	b.mu.Unlock()
	if ok {
		return stmt, nil
	}

	stmt, err := conn.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.cache[sql] = stmt
	b.mu.Unlock()
	return stmt, nil
}

func (b *CachingStatementBuilder) CloseStatement(conn driver.Connection, sql string, stmt driver.Statement) error {
	return nil
}

// Close closes every cached statement; failures are recorded, not
// dropped, and come back as one error with the rest suppressed.
func (b *CachingStatementBuilder) Close(conn driver.Connection) error {
	b.mu.Lock()
	cached := b.cache
	b.cache = make(map[string]driver.Statement)
	b.mu.Unlock()

	var errs []error
	for _, stmt := range cached {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return NewError(ErrCodeCloseFailed, "failed to close cached statements", errs[0]).
			AddSuppressed(errs[1:]...)
	}
	return nil
}

// Size reports how many statements are currently cached.
func (b *CachingStatementBuilder) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cache)
}
