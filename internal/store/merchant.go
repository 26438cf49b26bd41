package store

import (
	"context"
	"time"

	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

// InsertMerchant creates a new tenant root. Merchants are immutable once
// created (spec §3 ownership rule).
func (s *Store) InsertMerchant(ctx context.Context, m model.Merchant) error {
	const q = `INSERT INTO merchants (id, name, contact, created_at) VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, m.ID, m.Name, m.Contact, m.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert merchant", err)
	}
	return nil
}

// GetMerchant looks up a merchant by its plain id.
func (s *Store) GetMerchant(ctx context.Context, id string) (model.Merchant, error) {
	const q = `SELECT id, name, contact, created_at FROM merchants WHERE id = $1`
	var m model.Merchant
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.Name, &m.Contact, &createdAt)
	if err != nil {
		return model.Merchant{}, wrapNotFound(err, "merchant not found")
	}
	m.CreatedAt = createdAt
	return m, nil
}
