package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

// InsertWallet creates a new wallet row. Pubkey must be globally unique
// (I5); the unique index on wallets.pubkey is the enforcement point.
func (s *Store) InsertWallet(ctx context.Context, w model.Wallet, derivationIndex uint32) error {
	const q = `
		INSERT INTO wallets (hash, merchant_id, ticker, network, wallet_type, pubkey,
			encryption_key_id, cipher, blob, nonce, derivation_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, q,
		w.Hash.String(), w.MerchantID, string(w.Ticker), w.Network, string(w.WalletType), w.Pubkey,
		w.Sealed.EncryptionKeyID.String(), string(w.Sealed.Cipher), w.Sealed.Blob, w.Sealed.Nonce[:],
		derivationIndex, w.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert wallet", err)
	}
	return nil
}

// GetWalletByHash looks up a wallet by its content hash.
func (s *Store) GetWalletByHash(ctx context.Context, hash hashid.Hash) (model.Wallet, error) {
	return s.scanWallet(s.db.QueryRowContext(ctx, selectWalletByHash, hash.String()))
}

const selectWalletByHash = `
	SELECT hash, merchant_id, ticker, network, wallet_type, pubkey,
		encryption_key_id, cipher, blob, nonce, created_at
	FROM wallets WHERE hash = $1`

const selectWalletForUpdate = `
	SELECT hash, merchant_id, ticker, network, wallet_type, pubkey,
		encryption_key_id, cipher, blob, nonce, derivation_index, created_at
	FROM wallets WHERE hash = $1 FOR UPDATE`

func (s *Store) scanWallet(row *sql.Row) (model.Wallet, error) {
	var (
		hash, merchantID, ticker, network, walletType, pubkey string
		ekID, cipher                                          string
		blob, nonce                                           []byte
		createdAt                                             time.Time
	)
	if err := row.Scan(&hash, &merchantID, &ticker, &network, &walletType, &pubkey,
		&ekID, &cipher, &blob, &nonce, &createdAt); err != nil {
		return model.Wallet{}, wrapNotFound(err, "wallet not found")
	}
	return buildWallet(hash, merchantID, ticker, network, walletType, pubkey, ekID, cipher, blob, nonce, createdAt)
}

func buildWallet(hash, merchantID, ticker, network, walletType, pubkey, ekID, cipher string,
	blob, nonce []byte, createdAt time.Time) (model.Wallet, error) {
	hashHash, err := hashid.Parse(hash)
	if err != nil {
		return model.Wallet{}, err
	}
	ekHash, err := hashid.Parse(ekID)
	if err != nil {
		return model.Wallet{}, err
	}
	var nonceArr [aead.NonceSize]byte
	copy(nonceArr[:], nonce)
	return model.Wallet{
		Hash:       hashHash,
		MerchantID: merchantID,
		Ticker:     model.Ticker(ticker),
		Network:    network,
		WalletType: model.WalletType(walletType),
		Pubkey:     pubkey,
		Sealed: model.Sealed{
			EncryptionKeyID: ekHash,
			Cipher:          aead.Algorithm(cipher),
			Blob:            blob,
			Nonce:           nonceArr,
		},
		CreatedAt: createdAt,
	}, nil
}

// LockedWallet is a Wallet plus its current HD derivation index, held under
// a row lock for the duration of the enclosing transaction (spec §4.3,
// §5: "the transactional wallet lock").
type LockedWallet struct {
	model.Wallet
	DerivationIndex uint32
}

// LockWalletForUpdate takes a `SELECT ... FOR UPDATE` row lock on the
// wallet identified by hash, within tx. Callers must run this inside
// (*Store).Tx so the lock is released on commit/rollback.
func (s *Store) LockWalletForUpdate(ctx context.Context, q Querier, hash hashid.Hash) (LockedWallet, error) {
	defer observeLockWait("wallets", time.Now())
	row := q.QueryRowContext(ctx, selectWalletForUpdate, hash.String())
	var (
		h, merchantID, ticker, network, walletType, pubkey string
		ekID, cipher                                       string
		blob, nonce                                        []byte
		derivationIndex                                    uint32
		createdAt                                          time.Time
	)
	if err := row.Scan(&h, &merchantID, &ticker, &network, &walletType, &pubkey,
		&ekID, &cipher, &blob, &nonce, &derivationIndex, &createdAt); err != nil {
		return LockedWallet{}, wrapNotFound(err, "wallet not found")
	}
	w, err := buildWallet(h, merchantID, ticker, network, walletType, pubkey, ekID, cipher, blob, nonce, createdAt)
	if err != nil {
		return LockedWallet{}, err
	}
	return LockedWallet{Wallet: w, DerivationIndex: derivationIndex}, nil
}

// AdvanceWalletDerivation re-seals the wallet's blob under a fresh EK and
// increments its derivation index, inside the caller's transaction (I2:
// the index is incremented before the enclosing transaction commits).
func (s *Store) AdvanceWalletDerivation(ctx context.Context, q Querier, hash hashid.Hash, sealed model.Sealed, newIndex uint32) error {
	const query = `
		UPDATE wallets
		SET encryption_key_id = $2, cipher = $3, blob = $4, nonce = $5, derivation_index = $6
		WHERE hash = $1`
	_, err := q.ExecContext(ctx, query,
		hash.String(), sealed.EncryptionKeyID.String(), string(sealed.Cipher), sealed.Blob, sealed.Nonce[:], newIndex)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "advance wallet derivation", err)
	}
	return nil
}
