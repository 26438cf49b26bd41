package sale

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/store"
)

func newMockReaper(t *testing.T) (*Reaper, sqlmock.Sqlmock, []error) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	var errs []error
	r := NewReaper(store.NewWithDB(db), func(e error) { errs = append(errs, e) })
	return r, mock, errs
}

func invoiceRowColumns() []string {
	return []string{"hash", "merchant_id", "wallet_hash", "ticker", "currency", "network", "status", "pubkey", "address",
		"amount", "uri", "encryption_key_id", "cipher", "blob", "nonce", "created_at", "updated_at", "expires_at"}
}

func TestReapOnceExpiresStillPendingInvoice(t *testing.T) {
	r, mock, _ := newMockReaper(t)
	hash := hashid.SumString("invoice", "expire-1")
	walletHash := hashid.SumString("wallet", "1")
	ekID := hashid.SumString("ek", "1")
	expiresAt := time.Now().Add(-time.Minute)

	scanRows := sqlmock.NewRows(invoiceRowColumns()).
		AddRow(hash.String(), "merchant-1", walletHash.String(), "BTC", "USD", "mainnet", "Pending", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), expiresAt)
	mock.ExpectQuery("SELECT hash, merchant_id, wallet_hash, ticker, currency, network, status, pubkey, address").
		WillReturnRows(scanRows)

	mock.ExpectBegin()
	lockRows := sqlmock.NewRows(invoiceRowColumns()).
		AddRow(hash.String(), "merchant-1", walletHash.String(), "BTC", "USD", "mainnet", "Pending", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), expiresAt)
	mock.ExpectQuery("FOR UPDATE").WithArgs(hash.String()).WillReturnRows(lockRows)
	mock.ExpectExec("UPDATE invoices SET status").WithArgs(hash.String(), "Expired", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	r.reapOnce(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReapOneSkipsInvoiceNoLongerPending(t *testing.T) {
	r, mock, _ := newMockReaper(t)
	hash := hashid.SumString("invoice", "expire-2")
	walletHash := hashid.SumString("wallet", "2")
	ekID := hashid.SumString("ek", "2")

	mock.ExpectBegin()
	lockRows := sqlmock.NewRows(invoiceRowColumns()).
		AddRow(hash.String(), "merchant-1", walletHash.String(), "BTC", "USD", "mainnet", "Funded", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), time.Now().Add(-time.Minute))
	mock.ExpectQuery("FOR UPDATE").WithArgs(hash.String()).WillReturnRows(lockRows)
	mock.ExpectCommit()

	if err := r.reapOne(context.Background(), hash); err != nil {
		t.Fatalf("reapOne: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
