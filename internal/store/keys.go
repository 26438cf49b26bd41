package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/custody"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

// CurrentKEK implements custody.KEKStore: the newest KEK row bound to
// masterKEKID, if one exists.
func (s *Store) CurrentKEK(ctx context.Context, masterKEKID hashid.Hash) (custody.KEKRecord, bool, error) {
	const q = `
		SELECT id, master_key_encryption_key_id, cipher, key, nonce, created_at
		FROM key_encryption_keys
		WHERE master_key_encryption_key_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	row := s.db.QueryRowContext(ctx, q, masterKEKID.String())
	rec, err := scanKEKRecord(row)
	if err == sql.ErrNoRows {
		return custody.KEKRecord{}, false, nil
	}
	if err != nil {
		return custody.KEKRecord{}, false, merr.Wrap(merr.StoreFailure, "query current KEK", err)
	}
	return rec, true, nil
}

// InsertKEK implements custody.KEKStore.
func (s *Store) InsertKEK(ctx context.Context, rec custody.KEKRecord) error {
	const q = `
		INSERT INTO key_encryption_keys (id, master_key_encryption_key_id, cipher, key, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID.String(), rec.MasterKeyEncryptionKeyID.String(), string(rec.Cipher), rec.Key, rec.Nonce[:], rec.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert KEK", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKEKRecord(row rowScanner) (custody.KEKRecord, error) {
	var (
		id, mkekID, cipher string
		key, nonce         []byte
		createdAt          time.Time
	)
	if err := row.Scan(&id, &mkekID, &cipher, &key, &nonce, &createdAt); err != nil {
		return custody.KEKRecord{}, err
	}
	idHash, err := hashid.Parse(id)
	if err != nil {
		return custody.KEKRecord{}, err
	}
	mkekHash, err := hashid.Parse(mkekID)
	if err != nil {
		return custody.KEKRecord{}, err
	}
	var nonceArr [aead.NonceSize]byte
	copy(nonceArr[:], nonce)
	return custody.KEKRecord{
		ID:                       idHash,
		MasterKeyEncryptionKeyID: mkekHash,
		Cipher:                   aead.Algorithm(cipher),
		Key:                      key,
		Nonce:                    nonceArr,
		CreatedAt:                createdAt,
	}, nil
}

// InsertEncryptionKey persists a freshly minted EK, sealed under the
// current KEK.
func (s *Store) InsertEncryptionKey(ctx context.Context, ek model.EncryptionKey) error {
	const q = `
		INSERT INTO encryption_keys (id, merchant_id, key_encryption_key_id, cipher, key, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, q,
		ek.ID.String(), ek.MerchantID, ek.KeyEncryptionKeyID.String(),
		string(ek.Sealed.Cipher), ek.Sealed.Blob, ek.Sealed.Nonce[:], ek.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert encryption key", err)
	}
	return nil
}

// GetEncryptionKey looks up an EK row by id, for unwrapping under its bound
// KEK when a secret must be read back.
func (s *Store) GetEncryptionKey(ctx context.Context, id hashid.Hash) (model.EncryptionKey, error) {
	const q = `
		SELECT id, merchant_id, key_encryption_key_id, cipher, key, nonce, created_at
		FROM encryption_keys WHERE id = $1`
	var (
		idStr, kekID, merchantID, cipher string
		key, nonce                       []byte
		createdAt                        time.Time
	)
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&idStr, &merchantID, &kekID, &cipher, &key, &nonce, &createdAt)
	if err != nil {
		return model.EncryptionKey{}, wrapNotFound(err, "encryption key not found")
	}
	idHash, err := hashid.Parse(idStr)
	if err != nil {
		return model.EncryptionKey{}, err
	}
	kekHash, err := hashid.Parse(kekID)
	if err != nil {
		return model.EncryptionKey{}, err
	}
	var nonceArr [aead.NonceSize]byte
	copy(nonceArr[:], nonce)
	return model.EncryptionKey{
		ID:                 idHash,
		MerchantID:         merchantID,
		KeyEncryptionKeyID: kekHash,
		Sealed: model.Sealed{
			EncryptionKeyID: idHash,
			Cipher:          aead.Algorithm(cipher),
			Blob:            key,
			Nonce:           nonceArr,
		},
		CreatedAt: createdAt,
	}, nil
}
