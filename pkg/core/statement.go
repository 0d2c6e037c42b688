package core

import (
	"context"
	"fmt"
	"strings"
)

// Statement shells. Templating, argument binding and row mapping are the
// business of outer layers; what lives here is the lifecycle contract
// (construction and execution require a live handle) and enough plumbing
// through the StatementBuilder to run plain positional-parameter SQL.

// Query executes a statement that returns rows.
type Query struct {
	h    *Handle
	sql  string
	args []any
}

// CreateQuery builds a query statement. Fails on a closed handle.
func (h *Handle) CreateQuery(sql string) (*Query, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return &Query{h: h, sql: sql}, nil
}

// Select is CreateQuery with positional arguments bound up front.
func (h *Handle) Select(sql string, args ...any) (*Query, error) {
	q, err := h.CreateQuery(sql)
	if err != nil {
		return nil, err
	}
	return q.Bind(args...), nil
}

// Bind appends positional arguments.
func (q *Query) Bind(args ...any) *Query {
	q.args = append(q.args, args...)
	return q
}

// List runs the query and returns every row as a column-name-keyed map.
func (q *Query) List(ctx context.Context) ([]map[string]any, error) {
	if err := q.h.checkOpen(); err != nil {
		return nil, err
	}

	builder := q.h.StatementBuilder()
	stmt, err := builder.Create(ctx, q.h.conn, q.sql)
	if err != nil {
		return nil, err
	}
	defer builder.CloseStatement(q.h.conn, q.sql, stmt) //nolint:errcheck

	rows, err := stmt.Query(ctx, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// One runs the query and returns exactly one row.
func (q *Query) One(ctx context.Context) (map[string]any, error) {
	rows, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, NewError(ErrCodeInvalidParam,
			fmt.Sprintf("expected exactly one row, got %d", len(rows)), nil)
	}
	return rows[0], nil
}

// Update executes a data-modifying statement and reports affected rows.
type Update struct {
	h    *Handle
	sql  string
	args []any
}

// CreateUpdate builds an update statement. Fails on a closed handle.
func (h *Handle) CreateUpdate(sql string) (*Update, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return &Update{h: h, sql: sql}, nil
}

// Bind appends positional arguments.
func (u *Update) Bind(args ...any) *Update {
	u.args = append(u.args, args...)
	return u
}

// Execute runs the statement and returns the affected row count.
func (u *Update) Execute(ctx context.Context) (int64, error) {
	if err := u.h.checkOpen(); err != nil {
		return 0, err
	}

	builder := u.h.StatementBuilder()
	stmt, err := builder.Create(ctx, u.h.conn, u.sql)
	if err != nil {
		return 0, err
	}
	defer builder.CloseStatement(u.h.conn, u.sql, stmt) //nolint:errcheck

	return stmt.Exec(ctx, u.args...)
}

// Execute is the one-shot convenience: create, bind, run.
func (h *Handle) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	u, err := h.CreateUpdate(sql)
	if err != nil {
		return 0, err
	}
	return u.Bind(args...).Execute(ctx)
}

// Batch collects unrelated statements and runs them in order.
type Batch struct {
	h          *Handle
	statements []string
}

// CreateBatch builds an empty batch. Fails on a closed handle.
func (h *Handle) CreateBatch() (*Batch, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return &Batch{h: h}, nil
}

// Add appends a statement to the batch.
func (b *Batch) Add(sql string) *Batch {
	b.statements = append(b.statements, sql)
	return b
}

// Execute runs every statement in order and returns the per-statement
// affected counts. The first failure stops the batch.
func (b *Batch) Execute(ctx context.Context) ([]int64, error) {
	if err := b.h.checkOpen(); err != nil {
		return nil, err
	}
	counts := make([]int64, 0, len(b.statements))
	for _, sql := range b.statements {
		n, err := b.h.conn.Exec(ctx, sql)
		if err != nil {
			return counts, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// PreparedBatch runs one statement repeatedly with different bindings.
type PreparedBatch struct {
	h        *Handle
	sql      string
	bindings [][]any
}

// PrepareBatch builds a prepared batch for sql. Fails on a closed handle.
func (h *Handle) PrepareBatch(sql string) (*PreparedBatch, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return &PreparedBatch{h: h, sql: sql}, nil
}

// Add appends one set of positional arguments.
func (b *PreparedBatch) Add(args ...any) *PreparedBatch {
	b.bindings = append(b.bindings, args)
	return b
}

// Execute prepares the statement once and runs it per binding set.
func (b *PreparedBatch) Execute(ctx context.Context) ([]int64, error) {
	if err := b.h.checkOpen(); err != nil {
		return nil, err
	}

	builder := b.h.StatementBuilder()
	stmt, err := builder.Create(ctx, b.h.conn, b.sql)
	if err != nil {
		return nil, err
	}
	defer builder.CloseStatement(b.h.conn, b.sql, stmt) //nolint:errcheck

	counts := make([]int64, 0, len(b.bindings))
	for _, args := range b.bindings {
		n, err := stmt.Exec(ctx, args...)
		if err != nil {
			return counts, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// Call invokes a stored procedure.
type Call struct {
	h    *Handle
	sql  string
	args []any
}

// CreateCall builds a stored-procedure call. Fails on a closed handle.
func (h *Handle) CreateCall(sql string) (*Call, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return &Call{h: h, sql: sql}, nil
}

// Bind appends positional arguments.
func (c *Call) Bind(args ...any) *Call {
	c.args = append(c.args, args...)
	return c
}

// Invoke runs the call.
func (c *Call) Invoke(ctx context.Context) error {
	if err := c.h.checkOpen(); err != nil {
		return err
	}
	_, err := c.h.conn.Exec(ctx, c.sql, c.args...)
	return err
}

// Script is a semicolon-separated sequence of statements. Statements are
// split without parsing the SQL, so literals containing semicolons are
// not supported here.
type Script struct {
	h   *Handle
	sql string
}

// CreateScript builds a script. Fails on a closed handle.
func (h *Handle) CreateScript(sql string) (*Script, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return &Script{h: h, sql: sql}, nil
}

// Execute runs each statement in order and returns per-statement affected
// counts.
func (s *Script) Execute(ctx context.Context) ([]int64, error) {
	if err := s.h.checkOpen(); err != nil {
		return nil, err
	}
	var counts []int64
	for _, stmt := range strings.Split(s.sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		n, err := s.h.conn.Exec(ctx, stmt)
		if err != nil {
			return counts, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}
