package store

import (
	"context"
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

const invoiceColumns = `hash, merchant_id, wallet_hash, ticker, currency, network, status, pubkey, address,
	amount, uri, encryption_key_id, cipher, blob, nonce, created_at, updated_at, expires_at`

// InsertInvoice creates a new Pending invoice. I2 (no two invoices for the
// same wallet may share an address) is enforced by a unique index on
// (wallet_hash, address).
func (s *Store) InsertInvoice(ctx context.Context, inv model.Invoice) error {
	const q = `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err := s.db.ExecContext(ctx, q,
		inv.Hash.String(), inv.MerchantID, inv.WalletHash.String(), string(inv.Ticker), inv.Currency, inv.Network,
		string(inv.Status), inv.Pubkey, inv.Address, inv.Amount, inv.URI,
		inv.Sealed.EncryptionKeyID.String(), string(inv.Sealed.Cipher), inv.Sealed.Blob, inv.Sealed.Nonce[:],
		inv.CreatedAt, inv.UpdatedAt, inv.ExpiresAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert invoice", err)
	}
	return nil
}

// GetInvoiceByHash looks up an invoice by its content hash.
func (s *Store) GetInvoiceByHash(ctx context.Context, hash hashid.Hash) (model.Invoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM invoices WHERE hash = $1`
	return scanInvoice(s.db.QueryRowContext(ctx, q, hash.String()))
}

// LockInvoiceForUpdate takes a `SELECT ... FOR UPDATE` row lock on the
// invoice identified by hash (spec §4.4 capture step 1, §5).
func (s *Store) LockInvoiceForUpdate(ctx context.Context, q Querier, hash hashid.Hash) (model.Invoice, error) {
	defer observeLockWait("invoices", time.Now())
	const query = `SELECT ` + invoiceColumns + ` FROM invoices WHERE hash = $1 FOR UPDATE`
	return scanInvoice(q.QueryRowContext(ctx, query, hash.String()))
}

// UpdateInvoiceStatus transitions an invoice's status (I3), touching
// updated_at. Callers hold the row lock from LockInvoiceForUpdate.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, q Querier, hash hashid.Hash, status model.InvoiceStatus, updatedAt time.Time) error {
	const query = `UPDATE invoices SET status = $2, updated_at = $3 WHERE hash = $1`
	_, err := q.ExecContext(ctx, query, hash.String(), string(status), updatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "update invoice status", err)
	}
	return nil
}

// ExpiredPendingInvoices returns Pending invoices whose expires_at has
// passed asOf, for the reaper to transition to Expired.
func (s *Store) ExpiredPendingInvoices(ctx context.Context, asOf time.Time, limit int) ([]model.Invoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = 'Pending' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, asOf, limit)
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "query expired invoices", err)
	}
	defer rows.Close()

	var out []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "iterate expired invoices", err)
	}
	return out, nil
}

func scanInvoice(row rowScanner) (model.Invoice, error) {
	var (
		hash, merchantID, walletHash, ticker, currency, network, status, pubkey, address string
		amount                                                                            int64
		uri, ekID, cipher                                                                 string
		blob, nonce                                                                       []byte
		createdAt, updatedAt, expiresAt                                                   time.Time
	)
	if err := row.Scan(&hash, &merchantID, &walletHash, &ticker, &currency, &network, &status, &pubkey, &address,
		&amount, &uri, &ekID, &cipher, &blob, &nonce, &createdAt, &updatedAt, &expiresAt); err != nil {
		return model.Invoice{}, wrapNotFound(err, "invoice not found")
	}
	hashHash, err := hashid.Parse(hash)
	if err != nil {
		return model.Invoice{}, err
	}
	walletHashHash, err := hashid.Parse(walletHash)
	if err != nil {
		return model.Invoice{}, err
	}
	ekHash, err := hashid.Parse(ekID)
	if err != nil {
		return model.Invoice{}, err
	}
	var nonceArr [aead.NonceSize]byte
	copy(nonceArr[:], nonce)
	return model.Invoice{
		Hash:       hashHash,
		MerchantID: merchantID,
		WalletHash: walletHashHash,
		Ticker:     model.Ticker(ticker),
		Currency:   currency,
		Network:    network,
		Status:     model.InvoiceStatus(status),
		Pubkey:     pubkey,
		Address:    address,
		Amount:     amount,
		URI:        uri,
		Sealed: model.Sealed{
			EncryptionKeyID: ekHash,
			Cipher:          aead.Algorithm(cipher),
			Blob:            blob,
			Nonce:           nonceArr,
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		ExpiresAt: expiresAt,
	}, nil
}
