package store

import (
	"context"
	"strings"
	"time"

	"github.com/moonramp/moonramp/internal/authtoken"
	"github.com/moonramp/moonramp/internal/merr"
)

// InsertAPIToken persists a freshly minted token record (spec §4.7,
// moonrampctl's create-api-token).
func (s *Store) InsertAPIToken(ctx context.Context, rec authtoken.Record) error {
	const q = `INSERT INTO api_tokens (id, merchant_id, role, scopes, token_salt, token_digest, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.MerchantID, rec.Role, joinScopes(rec.Scopes), rec.Salt, rec.Digest, rec.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert api token", err)
	}
	return nil
}

// TokenRecord implements authtoken.Lookup against the api_tokens table.
func (s *Store) TokenRecord(ctx context.Context, tokenID string) (authtoken.Record, bool, error) {
	const q = `SELECT id, merchant_id, role, scopes, token_salt, token_digest, created_at, revoked_at
	           FROM api_tokens WHERE id = $1`
	var rec authtoken.Record
	var scopes string
	var createdAt time.Time
	var revokedAt *time.Time
	err := s.db.QueryRowContext(ctx, q, tokenID).Scan(
		&rec.ID, &rec.MerchantID, &rec.Role, &scopes, &rec.Salt, &rec.Digest, &createdAt, &revokedAt,
	)
	if err != nil {
		if merr.KindOf(wrapNotFound(err, "api token not found")) == merr.NotFound {
			return authtoken.Record{}, false, nil
		}
		return authtoken.Record{}, false, merr.Wrap(merr.StoreFailure, "look up api token", err)
	}
	rec.Scopes = splitScopes(scopes)
	rec.CreatedAt = createdAt
	rec.RevokedAt = revokedAt
	return rec, true, nil
}

// RevokeAPIToken marks a token unusable without deleting its audit trail.
func (s *Store) RevokeAPIToken(ctx context.Context, tokenID string, at time.Time) error {
	const q = `UPDATE api_tokens SET revoked_at = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, tokenID, at)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "revoke api token", err)
	}
	return nil
}

func joinScopes(scopes []authtoken.Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitScopes(s string) []authtoken.Scope {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	scopes := make([]authtoken.Scope, len(parts))
	for i, p := range parts {
		scopes[i] = authtoken.Scope(p)
	}
	return scopes
}
