package custody

import (
	"context"
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/metrics"
)

// KEKRecord is the persisted row shape for a KEK (spec §3): the secret
// encrypted under its MasterKEK, plus the identity metadata needed to
// re-wrap it.
type KEKRecord struct {
	ID                       hashid.Hash
	MasterKeyEncryptionKeyID hashid.Hash
	Cipher                   aead.Algorithm
	Key                      []byte
	Nonce                    [aead.NonceSize]byte
	CreatedAt                time.Time
}

// KEKStore is the persistence boundary the boot protocol needs: find the
// current KEK bound to a MasterKEK id, and insert a freshly minted one.
// internal/store implements this against the generic row interface.
type KEKStore interface {
	CurrentKEK(ctx context.Context, masterKEKID hashid.Hash) (KEKRecord, bool, error)
	InsertKEK(ctx context.Context, rec KEKRecord) error
}

// Boot implements the KEK boot protocol (spec §4.1): look up the newest KEK
// row bound to mkek's id; if none exists, generate one, seal it under mkek,
// and insert it. The returned KEK is held in memory for the process
// lifetime.
func Boot(ctx context.Context, mkek *MasterKEK, store KEKStore, alg aead.Algorithm) (*KEK, error) {
	rec, found, err := store.CurrentKEK(ctx, mkek.ID())
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "look up current KEK", err)
	}
	if found {
		secret, err := mkek.Unlock(aead.Sealed{Nonce: rec.Nonce, Ciphertext: rec.Key})
		if err != nil {
			return nil, merr.Wrap(merr.CryptoFailure, "unlock current KEK", err)
		}
		return NewKEK(rec.ID, rec.MasterKeyEncryptionKeyID, secret, alg), nil
	}

	secret, id, err := GenerateKEKSecret()
	if err != nil {
		return nil, err
	}
	sealed, err := mkek.Lock(secret)
	if err != nil {
		return nil, merr.Wrap(merr.CryptoFailure, "seal new KEK", err)
	}
	rec = KEKRecord{
		ID:                       id,
		MasterKeyEncryptionKeyID: mkek.ID(),
		Cipher:                   alg,
		Key:                      sealed.Ciphertext,
		Nonce:                    sealed.Nonce,
		CreatedAt:                time.Now().UTC(),
	}
	if err := store.InsertKEK(ctx, rec); err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "insert new KEK", err)
	}
	metrics.CustodianKeyRotationsTotal.WithLabelValues("boot_generate").Inc()
	return NewKEK(id, mkek.ID(), secret, alg), nil
}
