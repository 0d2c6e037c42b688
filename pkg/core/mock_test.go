package core

import (
	"context"
	"sync"

	"github.com/usulkies/jdbi/pkg/driver"
)

// mockConnection is a scriptable driver.Connection for unit tests.
type mockConnection struct {
	mu sync.Mutex

	inTx     bool
	readOnly bool
	level    driver.IsolationLevel
	closed   bool

	execLog       []string
	beginCalls    int
	commitCalls   int
	rollbackCalls int
	closeCalls    int
	setLevelCalls int
	getLevelCalls int

	beginErr       error
	commitErr      error
	rollbackErr    error
	inTxErr        error
	closeErr       error
	savepointErr   error
	getLevelErr    error
	setLevelErr    error
	readOnlyErr    error
	setReadOnlyErr error
	prepareErr     error
}

func newMockConnection() *mockConnection {
	return &mockConnection{level: driver.LevelReadCommitted}
}

func (m *mockConnection) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execLog = append(m.execLog, sql)
	return 1, nil
}

func (m *mockConnection) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execLog = append(m.execLog, sql)
	return &mockRows{}, nil
}

func (m *mockConnection) Prepare(ctx context.Context, sql string) (driver.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prepareErr != nil {
		return nil, m.prepareErr
	}
	return &mockStatement{conn: m, sql: sql}, nil
}

func (m *mockConnection) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginCalls++
	if m.beginErr != nil {
		return m.beginErr
	}
	m.inTx = true
	return nil
}

func (m *mockConnection) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	if m.commitErr != nil {
		return m.commitErr
	}
	m.inTx = false
	return nil
}

func (m *mockConnection) Rollback(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackCalls++
	if m.rollbackErr != nil {
		return m.rollbackErr
	}
	m.inTx = false
	return nil
}

func (m *mockConnection) InTransaction(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inTxErr != nil {
		return false, m.inTxErr
	}
	return m.inTx, nil
}

func (m *mockConnection) Savepoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execLog = append(m.execLog, "SAVEPOINT "+name)
	return m.savepointErr
}

func (m *mockConnection) RollbackToSavepoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execLog = append(m.execLog, "ROLLBACK TO "+name)
	return m.savepointErr
}

func (m *mockConnection) ReleaseSavepoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execLog = append(m.execLog, "RELEASE "+name)
	return m.savepointErr
}

func (m *mockConnection) IsReadOnly(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnlyErr != nil {
		return false, m.readOnlyErr
	}
	return m.readOnly, nil
}

func (m *mockConnection) SetReadOnly(ctx context.Context, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setReadOnlyErr != nil {
		return m.setReadOnlyErr
	}
	m.readOnly = readOnly
	return nil
}

func (m *mockConnection) IsolationLevel(ctx context.Context) (driver.IsolationLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getLevelCalls++
	if m.getLevelErr != nil {
		return driver.LevelUnspecified, m.getLevelErr
	}
	return m.level, nil
}

func (m *mockConnection) SetIsolationLevel(ctx context.Context, level driver.IsolationLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLevelCalls++
	if m.setLevelErr != nil {
		return m.setLevelErr
	}
	m.level = level
	return nil
}

func (m *mockConnection) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = true
	return nil
}

type mockRows struct{}

func (r *mockRows) Columns() ([]string, error) { return nil, nil }
func (r *mockRows) Next() bool                 { return false }
func (r *mockRows) Scan(dest ...any) error     { return nil }
func (r *mockRows) Err() error                 { return nil }
func (r *mockRows) Close() error               { return nil }

type mockStatement struct {
	conn       *mockConnection
	sql        string
	execCalls  int
	closeCalls int
	closeErr   error
}

func (s *mockStatement) Exec(ctx context.Context, args ...any) (int64, error) {
	s.execCalls++
	s.conn.mu.Lock()
	s.conn.execLog = append(s.conn.execLog, s.sql)
	s.conn.mu.Unlock()
	return 1, nil
}

func (s *mockStatement) Query(ctx context.Context, args ...any) (driver.Rows, error) {
	return &mockRows{}, nil
}

func (s *mockStatement) Close() error {
	s.closeCalls++
	return s.closeErr
}

// mockStatementBuilder records close calls and can be told to fail.
type mockStatementBuilder struct {
	closeCalls int
	closeErr   error
}

func (b *mockStatementBuilder) Create(ctx context.Context, conn driver.Connection, sql string) (driver.Statement, error) {
	return conn.Prepare(ctx, sql)
}

func (b *mockStatementBuilder) CloseStatement(conn driver.Connection, sql string, stmt driver.Statement) error {
	return stmt.Close()
}

func (b *mockStatementBuilder) Close(conn driver.Connection) error {
	b.closeCalls++
	return b.closeErr
}
