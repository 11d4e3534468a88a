package summary

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

type memoryCache struct {
	data    map[string][]byte
	gets    int
	hits    int
	deletes int
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.gets++
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	if ok {
		m.hits++
	}
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.deletes++
		delete(m.data, k)
	}
	return nil
}

func newSummaryFixture(t *testing.T) (*store.Store, string) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open("sqlite3", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	o, err := catalog.New(s, audit.NewRecorder(false), nil).CreateOffer(ctx, catalog.OfferInput{
		MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12,
	})
	require.NoError(t, err)
	require.NoError(t, NewAggregator().Rebuild(ctx, s, "m1", "c1", o.ID))
	return s, o.ID
}

func TestRebuild_EmptyLedger(t *testing.T) {
	ctx := context.Background()
	s, offerID := newSummaryFixture(t)

	got, err := NewReader(s, nil, time.Minute, nil).Get(ctx, "m1", "c1", offerID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentQuantity)
	assert.Equal(t, 12, got.RequiredQuantity)
	assert.Equal(t, 12, got.Remaining())
	assert.False(t, got.HasEarnedReward)
	assert.True(t, got.WindowStart.IsZero())

	// Rebuilding twice leaves one row.
	require.NoError(t, NewAggregator().Rebuild(ctx, s, "m1", "c1", offerID))
	list, err := NewReader(s, nil, time.Minute, nil).ListForCustomer(ctx, "m1", "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRebuild_UnknownOffer(t *testing.T) {
	s, _ := newSummaryFixture(t)
	err := NewAggregator().Rebuild(context.Background(), s, "m1", "c1", "missing")
	assert.Error(t, err)
}

func TestReader_Get_NotFound(t *testing.T) {
	s, offerID := newSummaryFixture(t)
	_, err := NewReader(s, nil, time.Minute, nil).Get(context.Background(), "m1", "c2", offerID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReader_ListForCustomer_ReadThrough(t *testing.T) {
	ctx := context.Background()
	s, offerID := newSummaryFixture(t)
	cache := newMemoryCache()
	r := NewReader(s, cache, time.Minute, nil)

	first, err := r.ListForCustomer(ctx, "m1", "c1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, offerID, first[0].OfferID)
	assert.Equal(t, 0, cache.hits)
	assert.Contains(t, cache.data, "summary:m1:c1")

	second, err := r.ListForCustomer(ctx, "m1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first[0].OfferID, second[0].OfferID)

	r.Invalidate(ctx, "m1", "c1")
	assert.NotContains(t, cache.data, "summary:m1:c1")
	assert.Equal(t, 1, cache.deletes)
}

func TestReader_ListForCustomer_CacheErrorFallsThrough(t *testing.T) {
	ctx := context.Background()
	s, _ := newSummaryFixture(t)
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")

	list, err := NewReader(s, cache, time.Minute, nil).ListForCustomer(ctx, "m1", "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReader_ListForCustomer_Empty(t *testing.T) {
	s, _ := newSummaryFixture(t)
	list, err := NewReader(s, nil, time.Minute, nil).ListForCustomer(context.Background(), "m1", "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
