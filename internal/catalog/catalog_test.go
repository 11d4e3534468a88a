package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

func newCatalog(t *testing.T) (*Catalog, *store.Store) {
	t.Helper()
	s, err := store.Open("sqlite3", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := New(s, audit.NewRecorder(false), nil)
	c.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c, s
}

func TestCreateOffer(t *testing.T) {
	ctx := context.Background()
	c, s := newCatalog(t)

	o, err := c.CreateOffer(ctx, OfferInput{
		MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12,
	})
	require.NoError(t, err)
	assert.True(t, o.Active)
	assert.Equal(t, "Acme 16oz", o.Name)

	got, err := GetOffer(ctx, s, "m1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.RequiredQuantity)

	events, err := audit.List(ctx, s, "m1", audit.Filter{Action: audit.OfferCreated})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, o.ID, events[0].OfferID)
}

func TestCreateOffer_DuplicateBrandAndSize(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)

	in := OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12}
	_, err := c.CreateOffer(ctx, in)
	require.NoError(t, err)

	_, err = c.CreateOffer(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateOffer)

	// Same key under another merchant is fine.
	in.MerchantID = "m2"
	_, err = c.CreateOffer(ctx, in)
	assert.NoError(t, err)
}

func TestCreateOffer_Invalid(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.CreateOffer(context.Background(), OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz"})
	assert.ErrorIs(t, err, ErrInvalidOffer)
}

func TestUpdateOffer(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)

	o, err := c.CreateOffer(ctx, OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12})
	require.NoError(t, err)

	qty := 10
	updated, err := c.UpdateOffer(ctx, "m1", o.ID, OfferUpdate{RequiredQuantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.RequiredQuantity)
	assert.Equal(t, 12, updated.WindowMonths)

	_, err = c.UpdateOffer(ctx, "m1", "missing", OfferUpdate{RequiredQuantity: &qty})
	assert.ErrorIs(t, err, ErrOfferNotFound)

	off, err := c.SetActive(ctx, "m1", o.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	active, err := c.ListOffers(ctx, "m1", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := c.ListOffers(ctx, "m1", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLinkVariation(t *testing.T) {
	ctx := context.Background()
	c, s := newCatalog(t)

	a, err := c.CreateOffer(ctx, OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12})
	require.NoError(t, err)
	b, err := c.CreateOffer(ctx, OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "32oz", RequiredQuantity: 6, WindowMonths: 6})
	require.NoError(t, err)

	_, err = c.LinkVariation(ctx, "m1", a.ID, VariationInput{VariationID: "var-1", SKU: "A16"})
	require.NoError(t, err)

	// Relinking to the same offer is a no-op.
	_, err = c.LinkVariation(ctx, "m1", a.ID, VariationInput{VariationID: "var-1"})
	require.NoError(t, err)

	_, err = c.LinkVariation(ctx, "m1", b.ID, VariationInput{VariationID: "var-1"})
	assert.ErrorIs(t, err, ErrVariationMapped)

	got, found, err := OfferForVariation(ctx, s, "m1", "var-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, a.ID, got.ID)

	_, found, err = OfferForVariation(ctx, s, "m2", "var-1")
	require.NoError(t, err)
	assert.False(t, found)

	vars, err := c.Variations(ctx, "m1", a.ID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "A16", vars[0].SKU)

	linked, err := audit.List(ctx, s, "m1", audit.Filter{Action: audit.VariationLinked})
	require.NoError(t, err)
	assert.Len(t, linked, 1)
}

func TestOfferForVariation_InactiveOffer(t *testing.T) {
	ctx := context.Background()
	c, s := newCatalog(t)

	o, err := c.CreateOffer(ctx, OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12})
	require.NoError(t, err)
	_, err = c.LinkVariation(ctx, "m1", o.ID, VariationInput{VariationID: "var-1"})
	require.NoError(t, err)

	_, err = c.SetActive(ctx, "m1", o.ID, false)
	require.NoError(t, err)

	_, found, err := OfferForVariation(ctx, s, "m1", "var-1")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = c.LinkVariation(ctx, "m1", o.ID, VariationInput{VariationID: "var-2"})
	assert.ErrorIs(t, err, ErrOfferInactive)
}

func TestUnlinkVariation(t *testing.T) {
	ctx := context.Background()
	c, s := newCatalog(t)

	o, err := c.CreateOffer(ctx, OfferInput{MerchantID: "m1", BrandName: "Acme", SizeGroup: "16oz", RequiredQuantity: 12, WindowMonths: 12})
	require.NoError(t, err)
	_, err = c.LinkVariation(ctx, "m1", o.ID, VariationInput{VariationID: "var-1"})
	require.NoError(t, err)

	require.NoError(t, c.UnlinkVariation(ctx, "m1", "var-1"))
	assert.ErrorIs(t, c.UnlinkVariation(ctx, "m1", "var-1"), ErrVariationNotFound)

	_, found, err := OfferForVariation(ctx, s, "m1", "var-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOffer_WindowEnd(t *testing.T) {
	o := Offer{WindowMonths: 12}
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), o.WindowEnd(start))
}
