package wallet

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/store"
)

func TestBuildWalletBlobColdBitcoinUsesSuppliedXPub(t *testing.T) {
	req := CreateRequest{Ticker: model.TickerBTC, WalletType: model.WalletCold, ColdPubkey: "xpub-from-merchant"}
	_, pubkey, err := buildWalletBlob(req)
	if err != nil {
		t.Fatalf("buildWalletBlob: %v", err)
	}
	if pubkey != "xpub-from-merchant" {
		t.Fatalf("pubkey = %q, want the supplied xpub", pubkey)
	}
}

func TestBuildWalletBlobColdMoneroUsesSuppliedKeys(t *testing.T) {
	req := CreateRequest{
		Ticker: model.TickerXMR, WalletType: model.WalletCold,
		ColdViewKey: "view-key-hex", ColdSpendPub: "spend-pub-hex",
	}
	_, pubkey, err := buildWalletBlob(req)
	if err != nil {
		t.Fatalf("buildWalletBlob: %v", err)
	}
	if pubkey != "spend-pub-hex" {
		t.Fatalf("pubkey = %q, want spend-pub-hex", pubkey)
	}
}

func TestBuildWalletBlobHotBitcoinGeneratesXPub(t *testing.T) {
	req := CreateRequest{Ticker: model.TickerBTC, WalletType: model.WalletHot, Network: "mainnet"}
	_, pubkey, err := buildWalletBlob(req)
	if err != nil {
		t.Fatalf("buildWalletBlob: %v", err)
	}
	if pubkey == "" {
		t.Fatal("expected a generated xpub")
	}
}

func TestBuildWalletBlobHotMoneroPubkeyIsHexEncoded(t *testing.T) {
	req := CreateRequest{Ticker: model.TickerXMR, WalletType: model.WalletHot}
	_, pubkey, err := buildWalletBlob(req)
	if err != nil {
		t.Fatalf("buildWalletBlob: %v", err)
	}
	if _, err := hex.DecodeString(pubkey); err != nil {
		t.Fatalf("expected hex-encoded spend pubkey, got %q: %v", pubkey, err)
	}
}

func TestBuildWalletBlobRejectsUnknownTicker(t *testing.T) {
	req := CreateRequest{Ticker: model.Ticker("DOGE"), WalletType: model.WalletHot}
	if _, _, err := buildWalletBlob(req); err == nil {
		t.Fatal("expected error for unknown ticker")
	}
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(store.NewWithDB(db), nil), mock
}

func TestLookupRejectsOtherMerchantsWallet(t *testing.T) {
	svc, mock := newMockService(t)
	hash := hashid.SumString("wallet", "pubkey-1")
	ekID := hashid.SumString("ek", "1")

	rows := sqlmock.NewRows([]string{"hash", "merchant_id", "ticker", "network", "wallet_type", "pubkey",
		"encryption_key_id", "cipher", "blob", "nonce", "created_at"}).
		AddRow(hash.String(), "merchant-other", "BTC", "mainnet", "Hot", "pubkey-1",
			ekID.String(), string(aead.ChaCha20Poly1305), []byte("ciphertext"), make([]byte, aead.NonceSize), time.Now())
	mock.ExpectQuery("SELECT hash, merchant_id, ticker, network, wallet_type, pubkey").
		WithArgs(hash.String()).
		WillReturnRows(rows)

	_, err := svc.Lookup(context.Background(), "merchant-1", &hash, nil)
	if merr.KindOf(err) != merr.NotFound {
		t.Fatalf("got kind %v, want NotFound", merr.KindOf(err))
	}
}

func TestLookupRequiresHashOrPubkey(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Lookup(context.Background(), "merchant-1", nil, nil)
	if merr.KindOf(err) != merr.Invalid {
		t.Fatalf("got kind %v, want Invalid", merr.KindOf(err))
	}
}
