package core

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/usulkies/jdbi/pkg/driver/sqlconn"
)

// These tests run the session surface against a real engine through the
// sqlconn adapter instead of the scripted mock.

func openSQLiteHandle(t *testing.T) *Handle {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	conn, err := sqlconn.Open(context.Background(), db)
	require.NoError(t, err)

	h, err := NewHandle(conn, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !h.IsClosed() {
			h.Close() //nolint:errcheck
		}
	})
	return h
}

func TestSQLite_SavepointPartialRollback(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	require.NoError(t, h.Begin(ctx))
	_, err = h.Execute(ctx, "INSERT INTO users (name) VALUES (?)", "alice")
	require.NoError(t, err)

	require.NoError(t, h.Savepoint(ctx, "s1"))
	_, err = h.Execute(ctx, "INSERT INTO users (name) VALUES (?)", "bob")
	require.NoError(t, err)

	// Undo bob, keep alice, then commit the rest.
	require.NoError(t, h.RollbackToSavepoint(ctx, "s1"))
	require.NoError(t, h.Commit(ctx))

	rows, err := h.Select("SELECT name FROM users ORDER BY id")
	require.NoError(t, err)
	result, err := rows.List(ctx)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "alice", result[0]["name"])
}

func TestSQLite_InTransactionRollsBackOnError(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = h.InTransaction(ctx, func(h *Handle) error {
		if _, err := h.Execute(ctx, "INSERT INTO users (name) VALUES (?)", "alice"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	q, err := h.Select("SELECT COUNT(*) AS n FROM users")
	require.NoError(t, err)
	row, err := q.One(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, row["n"])
}

func TestSQLite_AfterCommitFiresOnRealCommit(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	_, err := h.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	fired := false
	require.NoError(t, h.Begin(ctx))
	require.NoError(t, h.AfterCommit(func() { fired = true }))
	_, err = h.Execute(ctx, "INSERT INTO users (name) VALUES (?)", "alice")
	require.NoError(t, err)
	require.NoError(t, h.Commit(ctx))

	assert.True(t, fired)
}

func TestSQLite_CloseRollsBackLeakedTransaction(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	conn, err := sqlconn.Open(ctx, db)
	require.NoError(t, err)

	h, err := NewHandle(conn, nil, nil, nil)
	require.NoError(t, err)

	_, err = h.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	require.NoError(t, h.Begin(ctx))
	_, err = h.Execute(ctx, "INSERT INTO users (name) VALUES (?)", "alice")
	require.NoError(t, err)

	err = h.Close()
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeTransactionLeak))

	// The rollback on close really discarded the insert.
	second, err := sqlconn.Open(ctx, db)
	require.NoError(t, err)
	defer second.Close(ctx)

	rows, err := second.Query(ctx, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSQLite_ScriptAndQuery(t *testing.T) {
	h := openSQLiteHandle(t)
	ctx := context.Background()

	script, err := h.CreateScript(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (name) VALUES ('alice');
		INSERT INTO users (name) VALUES ('bob');
	`)
	require.NoError(t, err)
	_, err = script.Execute(ctx)
	require.NoError(t, err)

	batch, err := h.PrepareBatch("INSERT INTO users (name) VALUES (?)")
	require.NoError(t, err)
	counts, err := batch.Add("carol").Add("dave").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, counts)

	q, err := h.Select("SELECT name FROM users WHERE id > ? ORDER BY id", 1)
	require.NoError(t, err)
	result, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "bob", result[0]["name"])
	assert.Equal(t, "dave", result[2]["name"])
}
