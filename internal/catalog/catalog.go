package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

var (
	ErrOfferNotFound     = errors.New("offer not found")
	ErrDuplicateOffer    = errors.New("offer already exists for brand and size group")
	ErrVariationMapped   = errors.New("variation already mapped to another offer")
	ErrVariationNotFound = errors.New("variation not mapped")
	ErrOfferInactive     = errors.New("offer is inactive")
	ErrInvalidOffer      = errors.New("invalid offer")
)

// Offer is one reward program: buy RequiredQuantity units of a brand and size
// group within WindowMonths to earn a reward.
type Offer struct {
	ID               string    `json:"id"`
	MerchantID       string    `json:"merchant_id"`
	BrandName        string    `json:"brand_name"`
	SizeGroup        string    `json:"size_group"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	RequiredQuantity int       `json:"required_quantity"`
	WindowMonths     int       `json:"window_months"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WindowEnd is the last moment a purchase made at t counts toward this offer.
func (o Offer) WindowEnd(t time.Time) time.Time {
	return t.AddDate(0, o.WindowMonths, 0)
}

// QualifyingVariation links a purchasable variation to exactly one offer.
type QualifyingVariation struct {
	MerchantID    string    `json:"merchant_id"`
	VariationID   string    `json:"variation_id"`
	OfferID       string    `json:"offer_id"`
	ItemName      string    `json:"item_name,omitempty"`
	VariationName string    `json:"variation_name,omitempty"`
	SKU           string    `json:"sku,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OfferInput creates an offer.
type OfferInput struct {
	MerchantID       string
	BrandName        string
	SizeGroup        string
	Name             string
	Description      string
	RequiredQuantity int
	WindowMonths     int
}

// OfferUpdate changes an offer. Nil fields are left alone.
type OfferUpdate struct {
	Name             *string
	Description      *string
	RequiredQuantity *int
	WindowMonths     *int
	Active           *bool
}

// Catalog owns offers and qualifying variations. All writes are
// administrator operations and are audited.
type Catalog struct {
	store   *store.Store
	audit   *audit.Recorder
	logger  *slog.Logger
	nowFunc func() time.Time
}

func New(s *store.Store, rec *audit.Recorder, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: s, audit: rec, logger: logger, nowFunc: time.Now}
}

const offerColumns = `id, merchant_id, brand_name, size_group, offer_name, description,
	required_quantity, window_months, is_active, created_at, updated_at`

func scanOffer(row interface{ Scan(...any) error }) (Offer, error) {
	var o Offer
	err := row.Scan(&o.ID, &o.MerchantID, &o.BrandName, &o.SizeGroup, &o.Name, &o.Description,
		&o.RequiredQuantity, &o.WindowMonths, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOffer adds a new active offer. Brand and size group are unique per merchant.
func (c *Catalog) CreateOffer(ctx context.Context, in OfferInput) (Offer, error) {
	if in.MerchantID == "" || in.BrandName == "" || in.SizeGroup == "" {
		return Offer{}, fmt.Errorf("%w: merchant, brand and size group are required", ErrInvalidOffer)
	}
	if in.RequiredQuantity <= 0 || in.WindowMonths <= 0 {
		return Offer{}, fmt.Errorf("%w: required quantity and window must be positive", ErrInvalidOffer)
	}

	now := store.Timestamp(c.nowFunc())
	o := Offer{
		ID:               uuid.Must(uuid.NewV7()).String(),
		MerchantID:       in.MerchantID,
		BrandName:        in.BrandName,
		SizeGroup:        in.SizeGroup,
		Name:             in.Name,
		Description:      in.Description,
		RequiredQuantity: in.RequiredQuantity,
		WindowMonths:     in.WindowMonths,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if o.Name == "" {
		o.Name = fmt.Sprintf("%s %s", o.BrandName, o.SizeGroup)
	}

	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		res, err := tx.Exec(ctx, `
			INSERT INTO offers (`+offerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (merchant_id, brand_name, size_group) DO NOTHING
		`, o.ID, o.MerchantID, o.BrandName, o.SizeGroup, o.Name, o.Description,
			o.RequiredQuantity, o.WindowMonths, o.Active, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert offer: rows affected: %w", err)
		} else if n == 0 {
			return ErrDuplicateOffer
		}
		return c.audit.Record(ctx, tx, audit.Event{
			MerchantID: o.MerchantID,
			Action:     audit.OfferCreated,
			OfferID:    o.ID,
			AfterState: "active",
			Details: map[string]any{
				"brand_name":        o.BrandName,
				"size_group":        o.SizeGroup,
				"required_quantity": o.RequiredQuantity,
				"window_months":     o.WindowMonths,
			},
		})
	})
	if err != nil {
		return Offer{}, err
	}

	c.logger.Info("offer created", "merchant_id", o.MerchantID, "offer_id", o.ID,
		"brand", o.BrandName, "size_group", o.SizeGroup)
	return o, nil
}

// UpdateOffer applies u to an existing offer. Changing the required quantity
// or window affects future evaluation only; earned rewards keep their terms.
func (c *Catalog) UpdateOffer(ctx context.Context, merchantID, offerID string, u OfferUpdate) (Offer, error) {
	var updated Offer
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		before, err := GetOffer(ctx, tx, merchantID, offerID)
		if err != nil {
			return err
		}
		o := before
		if u.Name != nil {
			o.Name = *u.Name
		}
		if u.Description != nil {
			o.Description = *u.Description
		}
		if u.RequiredQuantity != nil {
			if *u.RequiredQuantity <= 0 {
				return fmt.Errorf("%w: required quantity must be positive", ErrInvalidOffer)
			}
			o.RequiredQuantity = *u.RequiredQuantity
		}
		if u.WindowMonths != nil {
			if *u.WindowMonths <= 0 {
				return fmt.Errorf("%w: window must be positive", ErrInvalidOffer)
			}
			o.WindowMonths = *u.WindowMonths
		}
		if u.Active != nil {
			o.Active = *u.Active
		}
		o.UpdatedAt = store.Timestamp(c.nowFunc())

		_, err = tx.Exec(ctx, `
			UPDATE offers SET offer_name = ?, description = ?, required_quantity = ?, window_months = ?,
				is_active = ?, updated_at = ?
			WHERE id = ? AND merchant_id = ?
		`, o.Name, o.Description, o.RequiredQuantity, o.WindowMonths, o.Active, o.UpdatedAt, o.ID, o.MerchantID)
		if err != nil {
			return fmt.Errorf("update offer: %w", err)
		}
		updated = o
		return c.audit.Record(ctx, tx, audit.Event{
			MerchantID:  merchantID,
			Action:      audit.OfferUpdated,
			OfferID:     offerID,
			BeforeState: activeState(before.Active),
			AfterState:  activeState(o.Active),
			Details: map[string]any{
				"required_quantity": o.RequiredQuantity,
				"window_months":     o.WindowMonths,
			},
		})
	})
	if err != nil {
		return Offer{}, err
	}
	return updated, nil
}

// SetActive activates or deactivates an offer.
func (c *Catalog) SetActive(ctx context.Context, merchantID, offerID string, active bool) (Offer, error) {
	return c.UpdateOffer(ctx, merchantID, offerID, OfferUpdate{Active: &active})
}

func activeState(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// GetOffer loads an offer regardless of its active flag.
func GetOffer(ctx context.Context, q store.Querier, merchantID, offerID string) (Offer, error) {
	o, err := scanOffer(q.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ? AND merchant_id = ?`,
		offerID, merchantID))
	if errors.Is(err, sql.ErrNoRows) {
		return Offer{}, ErrOfferNotFound
	}
	if err != nil {
		return Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

// ListOffers returns a merchant's offers ordered by brand and size group.
func (c *Catalog) ListOffers(ctx context.Context, merchantID string, activeOnly bool) ([]Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE merchant_id = ?`
	args := []any{merchantID}
	if activeOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY brand_name, size_group`

	rows, err := c.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// OfferForVariation resolves the active offer a variation counts toward.
// found is false when the variation is unmapped or its offer is inactive.
func OfferForVariation(ctx context.Context, q store.Querier, merchantID, variationID string) (Offer, bool, error) {
	o, err := scanOffer(q.QueryRow(ctx, `
		SELECT o.id, o.merchant_id, o.brand_name, o.size_group, o.offer_name, o.description,
		       o.required_quantity, o.window_months, o.is_active, o.created_at, o.updated_at
		FROM qualifying_variations v
		JOIN offers o ON o.id = v.offer_id
		WHERE v.merchant_id = ? AND v.variation_id = ? AND o.is_active = ?
	`, merchantID, variationID, true))
	if errors.Is(err, sql.ErrNoRows) {
		return Offer{}, false, nil
	}
	if err != nil {
		return Offer{}, false, fmt.Errorf("offer for variation: %w", err)
	}
	return o, true, nil
}
