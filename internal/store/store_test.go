package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	tables := []string{
		"offers", "qualifying_variations", "rewards", "purchase_events",
		"customer_summaries", "processed_orders", "audit_events", "outbox", "progress_locks",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q missing", table)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 3; i++ {
		s, err := Open("sqlite3", path)
		require.NoError(t, err, "iteration %d", i)
		s.Close()
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Postgres.Rebind(q))
	assert.Equal(t, " FOR UPDATE", Postgres.ForUpdate())
	assert.Empty(t, SQLite.ForUpdate())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := Timestamp(time.Now())

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO processed_orders (merchant_id, order_id, result, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`, "m1", "o1", "pending", now, now)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, s.QueryRow(ctx, "SELECT COUNT(*) FROM processed_orders").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSavepoint_UndoesOnlyInnerWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := Timestamp(time.Now())
	insert := `INSERT INTO processed_orders (merchant_id, order_id, result, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, insert, "m1", "kept", "pending", now, now); err != nil {
			return err
		}
		spErr := tx.Savepoint(ctx, func() error {
			if _, err := tx.Exec(ctx, insert, "m1", "dropped", "pending", now, now); err != nil {
				return err
			}
			return errors.New("line failed")
		})
		assert.EqualError(t, spErr, "line failed")
		return tx.Savepoint(ctx, func() error {
			_, err := tx.Exec(ctx, insert, "m1", "also-kept", "pending", now, now)
			return err
		})
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, "SELECT order_id FROM processed_orders ORDER BY order_id")
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	assert.Equal(t, []string{"also-kept", "kept"}, got)
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, NullString("").Valid)
	assert.True(t, NullString("x").Valid)
	assert.False(t, NullTime(time.Time{}).Valid)

	ts := time.Date(2026, 3, 1, 10, 30, 15, 999, time.FixedZone("X", 3600))
	nt := NullTime(ts)
	require.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())
	assert.Equal(t, 0, nt.Time.Nanosecond())
}
