package store

import (
	"time"

	"context"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

// LatestRevision returns the highest revision recorded for
// (merchantID, name), or 0 if no program by that name exists yet. Callers
// use this to enforce I4 (revision strictly increases by 1 on update).
func (s *Store) LatestRevision(ctx context.Context, merchantID, name string) (int, error) {
	const q = `SELECT COALESCE(MAX(revision), 0) FROM programs WHERE merchant_id = $1 AND name = $2`
	var rev int
	if err := s.db.QueryRowContext(ctx, q, merchantID, name).Scan(&rev); err != nil {
		return 0, merr.Wrap(merr.StoreFailure, "query latest program revision", err)
	}
	return rev, nil
}

// InsertProgram persists a new program revision.
func (s *Store) InsertProgram(ctx context.Context, p model.Program) error {
	const q = `
		INSERT INTO programs (hash, merchant_id, name, version, url, description, private, revision,
			encryption_key_id, cipher, blob, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.db.ExecContext(ctx, q,
		p.Hash.String(), p.MerchantID, p.Name, p.Version, p.URL, p.Description, p.Private, p.Revision,
		p.Sealed.EncryptionKeyID.String(), string(p.Sealed.Cipher), p.Sealed.Blob, p.Sealed.Nonce[:], p.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert program", err)
	}
	return nil
}

// GetProgramByHash looks up a program by its content hash.
func (s *Store) GetProgramByHash(ctx context.Context, hash hashid.Hash) (model.Program, error) {
	const q = `
		SELECT hash, merchant_id, name, version, url, description, private, revision,
			encryption_key_id, cipher, blob, nonce, created_at
		FROM programs WHERE hash = $1`
	return s.scanProgram(s.db.QueryRowContext(ctx, q, hash.String()))
}

// GetLatestProgram looks up the current (highest-revision) program for
// (merchantID, name).
func (s *Store) GetLatestProgram(ctx context.Context, merchantID, name string) (model.Program, error) {
	const q = `
		SELECT hash, merchant_id, name, version, url, description, private, revision,
			encryption_key_id, cipher, blob, nonce, created_at
		FROM programs WHERE merchant_id = $1 AND name = $2
		ORDER BY revision DESC LIMIT 1`
	return s.scanProgram(s.db.QueryRowContext(ctx, q, merchantID, name))
}

func (s *Store) scanProgram(row rowScanner) (model.Program, error) {
	var (
		hash, merchantID, name, version, url, description string
		private                                            bool
		revision                                           int
		ekID, cipher                                       string
		blob, nonce                                        []byte
		createdAt                                          time.Time
	)
	if err := row.Scan(&hash, &merchantID, &name, &version, &url, &description, &private, &revision,
		&ekID, &cipher, &blob, &nonce, &createdAt); err != nil {
		return model.Program{}, wrapNotFound(err, "program not found")
	}
	hashHash, err := hashid.Parse(hash)
	if err != nil {
		return model.Program{}, err
	}
	ekHash, err := hashid.Parse(ekID)
	if err != nil {
		return model.Program{}, err
	}
	var nonceArr [aead.NonceSize]byte
	copy(nonceArr[:], nonce)
	return model.Program{
		Hash:        hashHash,
		MerchantID:  merchantID,
		Name:        name,
		Version:     version,
		URL:         url,
		Description: description,
		Private:     private,
		Revision:    revision,
		Sealed: model.Sealed{
			EncryptionKeyID: ekHash,
			Cipher:          aead.Algorithm(cipher),
			Blob:            blob,
			Nonce:           nonceArr,
		},
		CreatedAt: createdAt,
	}, nil
}
