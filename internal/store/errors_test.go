package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTxFailure_SQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := Timestamp(time.Now())

	insert := func(id string) error {
		_, err := s.Exec(ctx, `
			INSERT INTO processed_orders (merchant_id, order_id, result, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`, "m1", id, "pending", now, now)
		return err
	}
	require.NoError(t, insert("o1"))

	err := insert("o1")
	require.Error(t, err)
	assert.True(t, IsTxFailure(err))
	assert.True(t, IsTxFailure(fmt.Errorf("claim order: %w", err)))

	_, err = s.Exec(ctx, `SELECT * FROM no_such_table`)
	require.Error(t, err)
	assert.False(t, IsTxFailure(err))
}

func TestIsTxFailure_Classes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("scan failed"), false},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, true},
		{"pq serialization failure", &pq.Error{Code: "40001"}, true},
		{"pq deadlock", fmt.Errorf("lock: %w", &pq.Error{Code: "40P01"}), true},
		{"pq lock not available", &pq.Error{Code: "55P03"}, true},
		{"pq syntax error", &pq.Error{Code: "42601"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTxFailure(tt.err))
		})
	}
}
