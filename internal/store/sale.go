package store

import (
	"context"
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

const saleColumns = `hash, merchant_id, wallet_hash, invoice_hash, ticker, currency, network, pubkey, address,
	amount, confirmations, encryption_key_id, cipher, blob, nonce, created_at`

// InsertSale creates the Sale row that captures a Funded invoice (I3: at
// most one Sale per Invoice, enforced by a unique index on invoice_hash).
func (s *Store) InsertSale(ctx context.Context, sale model.Sale) error {
	const q = `INSERT INTO sales (` + saleColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := s.db.ExecContext(ctx, q,
		sale.Hash.String(), sale.MerchantID, sale.WalletHash.String(), sale.InvoiceHash.String(),
		string(sale.Ticker), sale.Currency, sale.Network, sale.Pubkey, sale.Address,
		sale.Amount, sale.Confirmations,
		sale.Sealed.EncryptionKeyID.String(), string(sale.Sealed.Cipher), sale.Sealed.Blob, sale.Sealed.Nonce[:],
		sale.CreatedAt)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "insert sale", err)
	}
	return nil
}

// GetSaleByHash looks up a sale by its content hash.
func (s *Store) GetSaleByHash(ctx context.Context, hash hashid.Hash) (model.Sale, error) {
	const q = `SELECT ` + saleColumns + ` FROM sales WHERE hash = $1`
	return scanSale(s.db.QueryRowContext(ctx, q, hash.String()))
}

// GetSaleByInvoiceHash looks up the (at most one) sale capturing invoiceHash.
func (s *Store) GetSaleByInvoiceHash(ctx context.Context, invoiceHash hashid.Hash) (model.Sale, bool, error) {
	const q = `SELECT ` + saleColumns + ` FROM sales WHERE invoice_hash = $1`
	sale, err := scanSale(s.db.QueryRowContext(ctx, q, invoiceHash.String()))
	if merr.KindOf(err) == merr.NotFound {
		return model.Sale{}, false, nil
	}
	if err != nil {
		return model.Sale{}, false, err
	}
	return sale, true, nil
}

func scanSale(row rowScanner) (model.Sale, error) {
	var (
		hash, merchantID, walletHash, invoiceHash, ticker, currency, network, pubkey, address string
		amount                                                                                 int64
		confirmations                                                                          int
		ekID, cipher                                                                           string
		blob, nonce                                                                            []byte
		createdAt                                                                              time.Time
	)
	if err := row.Scan(&hash, &merchantID, &walletHash, &invoiceHash, &ticker, &currency, &network, &pubkey, &address,
		&amount, &confirmations, &ekID, &cipher, &blob, &nonce, &createdAt); err != nil {
		return model.Sale{}, wrapNotFound(err, "sale not found")
	}
	hashHash, err := hashid.Parse(hash)
	if err != nil {
		return model.Sale{}, err
	}
	walletHashHash, err := hashid.Parse(walletHash)
	if err != nil {
		return model.Sale{}, err
	}
	invoiceHashHash, err := hashid.Parse(invoiceHash)
	if err != nil {
		return model.Sale{}, err
	}
	ekHash, err := hashid.Parse(ekID)
	if err != nil {
		return model.Sale{}, err
	}
	var nonceArr [aead.NonceSize]byte
	copy(nonceArr[:], nonce)
	return model.Sale{
		Hash:          hashHash,
		MerchantID:    merchantID,
		WalletHash:    walletHashHash,
		InvoiceHash:   invoiceHashHash,
		Ticker:        model.Ticker(ticker),
		Currency:      currency,
		Network:       network,
		Pubkey:        pubkey,
		Address:       address,
		Amount:        amount,
		Confirmations: confirmations,
		Sealed: model.Sealed{
			EncryptionKeyID: ekHash,
			Cipher:          aead.Algorithm(cipher),
			Blob:            blob,
			Nonce:           nonceArr,
		},
		CreatedAt: createdAt,
	}, nil
}
