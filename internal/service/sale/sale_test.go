package sale

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/service/program"
	"github.com/moonramp/moonramp/internal/store"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.NewWithDB(db)
	programs := program.New(st, nil, nil)
	return New(st, nil, nil, programs, nil, nil, nil), mock
}

func TestCaptureRejectsAnotherMerchantsInvoice(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.SumString("invoice", "1")
	walletHash := hashid.SumString("wallet", "1")
	ekID := hashid.SumString("ek", "1")

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "wallet_hash", "ticker", "currency", "network", "status", "pubkey", "address",
		"amount", "uri", "encryption_key_id", "cipher", "blob", "nonce", "created_at", "updated_at", "expires_at"}).
		AddRow(hash.String(), "merchant-other", walletHash.String(), "BTC", "USD", "mainnet", "Pending", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), time.Now().Add(time.Hour))
	mock.ExpectQuery("FOR UPDATE").WithArgs(hash.String()).WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := svc.Capture(context.Background(), "merchant-1", CaptureRequest{InvoiceHash: hash})
	if merr.KindOf(err) != merr.NotFound {
		t.Fatalf("got kind %v, want NotFound", merr.KindOf(err))
	}
}

func TestCaptureRejectsNonPendingInvoice(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.SumString("invoice", "2")
	walletHash := hashid.SumString("wallet", "2")
	ekID := hashid.SumString("ek", "2")

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "wallet_hash", "ticker", "currency", "network", "status", "pubkey", "address",
		"amount", "uri", "encryption_key_id", "cipher", "blob", "nonce", "created_at", "updated_at", "expires_at"}).
		AddRow(hash.String(), "merchant-1", walletHash.String(), "BTC", "USD", "mainnet", "Canceled", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), time.Now().Add(time.Hour))
	mock.ExpectQuery("FOR UPDATE").WithArgs(hash.String()).WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := svc.Capture(context.Background(), "merchant-1", CaptureRequest{InvoiceHash: hash})
	if merr.KindOf(err) != merr.Invalid {
		t.Fatalf("got kind %v, want Invalid", merr.KindOf(err))
	}
}

func TestCaptureReturnsExistingSaleWhenAlreadyFunded(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.SumString("invoice", "3")
	walletHash := hashid.SumString("wallet", "3")
	ekID := hashid.SumString("ek", "3")
	saleHash := hashid.SumString("sale", "3")

	mock.ExpectBegin()
	invRows := sqlmock.NewRows([]string{"hash", "merchant_id", "wallet_hash", "ticker", "currency", "network", "status", "pubkey", "address",
		"amount", "uri", "encryption_key_id", "cipher", "blob", "nonce", "created_at", "updated_at", "expires_at"}).
		AddRow(hash.String(), "merchant-1", walletHash.String(), "BTC", "USD", "mainnet", "Funded", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), time.Now().Add(time.Hour))
	mock.ExpectQuery("FOR UPDATE").WithArgs(hash.String()).WillReturnRows(invRows)

	saleRows := sqlmock.NewRows([]string{"hash", "merchant_id", "wallet_hash", "invoice_hash", "ticker", "currency", "network", "pubkey", "address",
		"amount", "confirmations", "encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(saleHash.String(), "merchant-1", walletHash.String(), hash.String(), "BTC", "USD", "mainnet", "pub", "addr",
			int64(1000), 3, ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, wallet_hash, invoice_hash").
		WithArgs(hash.String()).
		WillReturnRows(saleRows)
	mock.ExpectCommit()

	result, err := svc.Capture(context.Background(), "merchant-1", CaptureRequest{InvoiceHash: hash})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !result.Funded {
		t.Fatal("expected Funded=true for an already-funded invoice")
	}
	if result.Sale.Hash != saleHash {
		t.Fatalf("got sale hash %v, want %v", result.Sale.Hash, saleHash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInvoiceLookupRejectsAnotherMerchantsInvoice(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.SumString("invoice", "4")
	walletHash := hashid.SumString("wallet", "4")
	ekID := hashid.SumString("ek", "4")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "wallet_hash", "ticker", "currency", "network", "status", "pubkey", "address",
		"amount", "uri", "encryption_key_id", "cipher", "blob", "nonce", "created_at", "updated_at", "expires_at"}).
		AddRow(hash.String(), "merchant-other", walletHash.String(), "BTC", "USD", "mainnet", "Pending", "pub", "addr",
			int64(1000), "uri", ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize),
			time.Now(), time.Now(), time.Now().Add(time.Hour))
	mock.ExpectQuery("SELECT hash, merchant_id, wallet_hash").WithArgs(hash.String()).WillReturnRows(rows)

	_, _, err := svc.InvoiceLookup(context.Background(), "merchant-1", hash)
	if merr.KindOf(err) != merr.NotFound {
		t.Fatalf("got kind %v, want NotFound", merr.KindOf(err))
	}
}

func TestSaleLookupRejectsAnotherMerchantsSale(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.SumString("sale", "5")
	walletHash := hashid.SumString("wallet", "5")
	invoiceHash := hashid.SumString("invoice", "5")
	ekID := hashid.SumString("ek", "5")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "wallet_hash", "invoice_hash", "ticker", "currency", "network", "pubkey", "address",
		"amount", "confirmations", "encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(hash.String(), "merchant-other", walletHash.String(), invoiceHash.String(), "BTC", "USD", "mainnet", "pub", "addr",
			int64(1000), 2, ekID.String(), string(aead.ChaCha20Poly1305), []byte("ct"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, wallet_hash, invoice_hash").WithArgs(hash.String()).WillReturnRows(rows)

	_, _, err := svc.SaleLookup(context.Background(), "merchant-1", hash)
	if merr.KindOf(err) != merr.NotFound {
		t.Fatalf("got kind %v, want NotFound", merr.KindOf(err))
	}
}

// TestInvoiceRequestWireTagsBindSpecKeys guards the spec §4.4/§6 wire
// shape: a client-shaped JSON body must populate WalletHash/ExpiresIn via
// "hash"/"expires_in", not Go's case-insensitive fallback matching (which
// never matches "hash" against "WalletHash").
func TestInvoiceRequestWireTagsBindSpecKeys(t *testing.T) {
	wallet := hashid.SumString("wallet", "1")
	var req InvoiceRequest
	body := []byte(`{"hash":"` + wallet.String() + `","uuid":"u-1","currency":"USD","amount":"10.00","expires_in":300,"user_data":{"k":"v"}}`)
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.WalletHash != wallet {
		t.Fatalf("WalletHash = %v, want %v", req.WalletHash, wallet)
	}
	if req.UUID != "u-1" {
		t.Fatalf("UUID = %q, want u-1", req.UUID)
	}
	if req.ExpiresIn == nil || *req.ExpiresIn != 300 {
		t.Fatalf("ExpiresIn = %v, want 300", req.ExpiresIn)
	}
	if string(req.UserData) != `{"k":"v"}` {
		t.Fatalf("UserData = %s, want {\"k\":\"v\"}", req.UserData)
	}
}

// TestCaptureRequestWireTagsBindSpecKeys is the same guard for capture()'s
// payload, whose "hash" key is the invoice hash and which also carries a
// uuid used in the Sale row's content hash (spec §3, §4.4 step 7).
func TestCaptureRequestWireTagsBindSpecKeys(t *testing.T) {
	invoice := hashid.SumString("invoice", "1")
	var req CaptureRequest
	body := []byte(`{"hash":"` + invoice.String() + `","uuid":"u-2","confirmations":3,"user_data":{"k":"v"}}`)
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.InvoiceHash != invoice {
		t.Fatalf("InvoiceHash = %v, want %v", req.InvoiceHash, invoice)
	}
	if req.UUID != "u-2" {
		t.Fatalf("UUID = %q, want u-2", req.UUID)
	}
	if req.Confirmations != 3 {
		t.Fatalf("Confirmations = %d, want 3", req.Confirmations)
	}
}
