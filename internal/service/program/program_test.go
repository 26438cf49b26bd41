package program

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/store"
)

// emptyWASMModule is the minimal valid WASM binary: just the magic number
// and version, no sections.
var emptyWASMModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(store.NewWithDB(db), nil, nil), mock
}

func TestLookupRequiresHashOrName(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Lookup(context.Background(), "merchant-1", nil, nil)
	if merr.KindOf(err) != merr.Invalid {
		t.Fatalf("got kind %v, want Invalid", merr.KindOf(err))
	}
}

func TestLookupRejectsAnotherMerchantsPrivateProgram(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.Sum(emptyWASMModule)
	ekID := hashid.SumString("ek", "1")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "name", "version", "url", "description", "private", "revision",
		"encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(hash.String(), "merchant-other", "prog", "1", "", "", true, 1,
			ekID.String(), string(aead.ChaCha20Poly1305), []byte("ciphertext"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, name, version, url, description, private, revision").
		WithArgs(hash.String()).
		WillReturnRows(rows)

	_, err := svc.Lookup(context.Background(), "merchant-1", &hash, nil)
	if merr.KindOf(err) != merr.NotFound {
		t.Fatalf("got kind %v, want NotFound", merr.KindOf(err))
	}
}

func TestLookupAllowsAnotherMerchantsPublicProgram(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.Sum(emptyWASMModule)
	ekID := hashid.SumString("ek", "1")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "name", "version", "url", "description", "private", "revision",
		"encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(hash.String(), "merchant-other", "prog", "1", "", "", false, 1,
			ekID.String(), string(aead.ChaCha20Poly1305), []byte("ciphertext"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, name, version, url, description, private, revision").
		WithArgs(hash.String()).
		WillReturnRows(rows)

	prog, err := svc.Lookup(context.Background(), "merchant-1", &hash, nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if prog.MerchantID != "merchant-other" {
		t.Fatalf("got merchant %q, want merchant-other", prog.MerchantID)
	}
}

func TestCreateRejectsWhenProgramAlreadyExists(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("merchant-1", "prog").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))

	_, err := svc.Create(context.Background(), "merchant-1", CreateRequest{Name: "prog", Data: emptyWASMModule})
	if merr.KindOf(err) != merr.Invalid {
		t.Fatalf("got kind %v, want Invalid", merr.KindOf(err))
	}
}

func TestResolveForSaleRequiresRequestedProgramOwnedByMerchant(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.Sum(emptyWASMModule)
	ekID := hashid.SumString("ek", "1")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "name", "version", "url", "description", "private", "revision",
		"encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(hash.String(), "merchant-other", "prog", "1", "", "", false, 1,
			ekID.String(), string(aead.ChaCha20Poly1305), []byte("ciphertext"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, name, version, url, description, private, revision").
		WithArgs(hash.String()).
		WillReturnRows(rows)

	_, err := svc.ResolveForSale(context.Background(), "merchant-1", &hash)
	if merr.KindOf(err) != merr.Unauthorized {
		t.Fatalf("got kind %v, want Unauthorized", merr.KindOf(err))
	}
}

func TestResolveForSaleFallsBackToMasterMerchantDefault(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.Sum(emptyWASMModule)
	ekID := hashid.SumString("ek", "1")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "name", "version", "url", "description", "private", "revision",
		"encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(hash.String(), MasterMerchantID, DefaultSaleProgramName, "1", "", "", false, 1,
			ekID.String(), string(aead.ChaCha20Poly1305), []byte("ciphertext"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, name, version, url, description, private, revision").
		WithArgs(MasterMerchantID, DefaultSaleProgramName).
		WillReturnRows(rows)

	prog, err := svc.ResolveForSale(context.Background(), "merchant-1", nil)
	if err != nil {
		t.Fatalf("ResolveForSale: %v", err)
	}
	if prog.MerchantID != MasterMerchantID {
		t.Fatalf("got merchant %q, want %q", prog.MerchantID, MasterMerchantID)
	}
}
