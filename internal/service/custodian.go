// Package service holds the orchestration logic shared by the
// Program/Wallet/Sale RPC services (spec §4.4, C7–C9): unsealing and
// resealing row blobs through the current KEK, and the sandbox/gateway
// wiring each service needs to run merchant programs.
package service

import (
	"context"
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/custody"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/metrics"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/store"
)

func observeCustodian(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.CustodianOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// Custodian bridges a service to the live KEK and the encryption_keys
// table: it is the only place row blobs are unsealed or freshly sealed.
type Custodian struct {
	kek   *custody.KEK
	store *store.Store
	alg   aead.Algorithm
}

// NewCustodian binds a Custodian to the process's current KEK (recovered
// via custody.Boot at node startup) and the cipher new EKs are minted
// under.
func NewCustodian(kek *custody.KEK, st *store.Store, alg aead.Algorithm) *Custodian {
	return &Custodian{kek: kek, store: st, alg: alg}
}

// UnsealWithKey decrypts sealed and also returns the unwrapped EK that
// protected it, for callers that need to re-seal mutated content under
// the same key (spec §4.4 invoice() step 7: "re-seal the mutated wallet
// blob under the same EK").
func (c *Custodian) UnsealWithKey(ctx context.Context, merchantID string, sealed model.Sealed) (plain []byte, ek *custody.EncryptionKey, err error) {
	defer func() { observeCustodian("unseal", err) }()

	ekRow, err := c.store.GetEncryptionKey(ctx, sealed.EncryptionKeyID)
	if err != nil {
		return nil, nil, err
	}
	wrapped := aead.Sealed{Nonce: ekRow.Sealed.Nonce, Ciphertext: ekRow.Sealed.Blob}
	ek, err = custody.UnwrapEncryptionKey(c.kek, merchantID, sealed.EncryptionKeyID, wrapped, ekRow.Sealed.Cipher)
	if err != nil {
		return nil, nil, err
	}
	plain, err = model.Open(sealed, ek)
	if err != nil {
		return nil, nil, err
	}
	return plain, ek, nil
}

// Unseal decrypts sealed, discarding the unwrapped EK.
func (c *Custodian) Unseal(ctx context.Context, merchantID string, sealed model.Sealed) ([]byte, error) {
	plain, _, err := c.UnsealWithKey(ctx, merchantID, sealed)
	return plain, err
}

// Reseal re-encrypts plain under the same EK that sealed the original row,
// drawing a fresh nonce (I2, spec §4.4 invoice() step 7).
func (c *Custodian) Reseal(ek *custody.EncryptionKey, plain []byte) (sealedOut model.Sealed, err error) {
	defer func() { observeCustodian("reseal", err) }()

	sealed, err := ek.Encrypt(plain)
	if err != nil {
		return model.Sealed{}, err
	}
	return model.Sealed{
		EncryptionKeyID: ek.ID(),
		Cipher:          ek.Algorithm(),
		Blob:            sealed.Ciphertext,
		Nonce:           sealed.Nonce,
	}, nil
}

// SealFresh mints a brand-new EK, seals plain under it, persists the EK
// wrapped under the current KEK, and returns the row's Sealed footer
// (spec §3: "Freshly minted for every encrypted row").
func (c *Custodian) SealFresh(ctx context.Context, merchantID string, plain []byte) (sealedOut model.Sealed, err error) {
	defer func() { observeCustodian("seal_fresh", err) }()

	sealed, ek, err := model.Seal(c.alg, plain)
	if err != nil {
		return model.Sealed{}, err
	}
	wrapped, err := ek.WrapUnder(c.kek, merchantID)
	if err != nil {
		return model.Sealed{}, err
	}
	ekRow := model.EncryptionKey{
		ID:                 ek.ID(),
		MerchantID:         merchantID,
		KeyEncryptionKeyID: c.kek.ID(),
		Sealed: model.Sealed{
			EncryptionKeyID: ek.ID(),
			Cipher:          c.alg,
			Blob:            wrapped.Ciphertext,
			Nonce:           wrapped.Nonce,
		},
		CreatedAt: time.Now(),
	}
	if err := c.store.InsertEncryptionKey(ctx, ekRow); err != nil {
		return model.Sealed{}, err
	}
	return sealed, nil
}

// KEKID exposes the bound KEK's content id, for rows that need to record
// which key hierarchy generation produced them.
func (c *Custodian) KEKID() hashid.Hash { return c.kek.ID() }
