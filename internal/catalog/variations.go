package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// VariationInput links a variation to an offer.
type VariationInput struct {
	VariationID   string
	ItemName      string
	VariationName string
	SKU           string
}

// LinkVariation maps a variation to an active offer. Linking a variation to
// the offer it already belongs to is a no-op; linking it to a different offer
// fails with ErrVariationMapped.
func (c *Catalog) LinkVariation(ctx context.Context, merchantID, offerID string, in VariationInput) (QualifyingVariation, error) {
	if in.VariationID == "" {
		return QualifyingVariation{}, errors.New("variation id is required")
	}

	v := QualifyingVariation{
		MerchantID:    merchantID,
		VariationID:   in.VariationID,
		OfferID:       offerID,
		ItemName:      in.ItemName,
		VariationName: in.VariationName,
		SKU:           in.SKU,
		CreatedAt:     store.Timestamp(c.nowFunc()),
	}

	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		o, err := GetOffer(ctx, tx, merchantID, offerID)
		if err != nil {
			return err
		}
		if !o.Active {
			return ErrOfferInactive
		}

		res, err := tx.Exec(ctx, `
			INSERT INTO qualifying_variations
			(merchant_id, variation_id, offer_id, item_name, variation_name, sku, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (merchant_id, variation_id) DO NOTHING
		`, v.MerchantID, v.VariationID, v.OfferID, v.ItemName, v.VariationName, v.SKU, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("link variation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("link variation: rows affected: %w", err)
		}
		if n == 0 {
			var existing string
			if err := tx.QueryRow(ctx, `SELECT offer_id FROM qualifying_variations WHERE merchant_id = ? AND variation_id = ?`,
				merchantID, in.VariationID).Scan(&existing); err != nil {
				return fmt.Errorf("link variation: lookup existing: %w", err)
			}
			if existing != offerID {
				return ErrVariationMapped
			}
			return nil
		}
		return c.audit.Record(ctx, tx, audit.Event{
			MerchantID: merchantID,
			Action:     audit.VariationLinked,
			OfferID:    offerID,
			Details:    map[string]any{"variation_id": in.VariationID, "sku": in.SKU},
		})
	})
	if err != nil {
		return QualifyingVariation{}, err
	}
	return v, nil
}

// UnlinkVariation removes a variation mapping. Purchases already recorded
// against the offer are unaffected.
func (c *Catalog) UnlinkVariation(ctx context.Context, merchantID, variationID string) error {
	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		var offerID string
		err := tx.QueryRow(ctx, `SELECT offer_id FROM qualifying_variations WHERE merchant_id = ? AND variation_id = ?`,
			merchantID, variationID).Scan(&offerID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVariationNotFound
		}
		if err != nil {
			return fmt.Errorf("unlink variation: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM qualifying_variations WHERE merchant_id = ? AND variation_id = ?`,
			merchantID, variationID); err != nil {
			return fmt.Errorf("unlink variation: %w", err)
		}
		return c.audit.Record(ctx, tx, audit.Event{
			MerchantID: merchantID,
			Action:     audit.VariationUnlinked,
			OfferID:    offerID,
			Details:    map[string]any{"variation_id": variationID},
		})
	})
}

// Variations lists the variations linked to an offer.
func (c *Catalog) Variations(ctx context.Context, merchantID, offerID string) ([]QualifyingVariation, error) {
	rows, err := c.store.Query(ctx, `
		SELECT merchant_id, variation_id, offer_id, item_name, variation_name, sku, created_at
		FROM qualifying_variations
		WHERE merchant_id = ? AND offer_id = ?
		ORDER BY variation_id
	`, merchantID, offerID)
	if err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	defer rows.Close()

	var out []QualifyingVariation
	for rows.Next() {
		var v QualifyingVariation
		if err := rows.Scan(&v.MerchantID, &v.VariationID, &v.OfferID, &v.ItemName, &v.VariationName, &v.SKU, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
