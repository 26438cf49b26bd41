package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/custody"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/store"
)

func newTestKEK(t *testing.T) *custody.KEK {
	t.Helper()
	mkek, err := custody.NewMasterKEK(bytes.Repeat([]byte{0x11}, 32), custody.DeriveSHA3, aead.ChaCha20Poly1305)
	if err != nil {
		t.Fatalf("NewMasterKEK: %v", err)
	}
	secret, id, err := custody.GenerateKEKSecret()
	if err != nil {
		t.Fatalf("GenerateKEKSecret: %v", err)
	}
	return custody.NewKEK(id, mkek.ID(), secret, aead.ChaCha20Poly1305)
}

func newTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewWithDB(db), mock
}

// TestSealFreshInsertsWrappedEncryptionKeyRow checks SealFresh persists an
// EK row wrapped under the bound KEK and bound to merchantID.
func TestSealFreshInsertsWrappedEncryptionKeyRow(t *testing.T) {
	kek := newTestKEK(t)
	st, mock := newTestStore(t)
	custodian := NewCustodian(kek, st, aead.ChaCha20Poly1305)

	mock.ExpectExec("INSERT INTO encryption_keys").
		WithArgs(sqlmock.AnyArg(), "merchant-1", kek.ID().String(), string(aead.ChaCha20Poly1305), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sealed, err := custodian.SealFresh(context.Background(), "merchant-1", []byte("wallet secret blob"))
	if err != nil {
		t.Fatalf("SealFresh: %v", err)
	}
	if sealed.Cipher != aead.ChaCha20Poly1305 {
		t.Fatalf("got cipher %v, want %v", sealed.Cipher, aead.ChaCha20Poly1305)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestUnsealWithKeyRoundTrip mints an EK, wraps it under the bound KEK,
// seals a plaintext under it, and confirms UnsealWithKey recovers the
// original plaintext once GetEncryptionKey returns that wrapped row.
func TestUnsealWithKeyRoundTrip(t *testing.T) {
	kek := newTestKEK(t)
	st, mock := newTestStore(t)
	custodian := NewCustodian(kek, st, aead.ChaCha20Poly1305)

	ek, err := custody.GenerateEncryptionKey(aead.ChaCha20Poly1305)
	if err != nil {
		t.Fatalf("GenerateEncryptionKey: %v", err)
	}
	wrapped, err := ek.WrapUnder(kek, "merchant-1")
	if err != nil {
		t.Fatalf("WrapUnder: %v", err)
	}
	plain := []byte("wallet secret blob")
	rowSealed, err := ek.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "merchant_id", "key_encryption_key_id", "cipher", "key", "nonce", "created_at"}).
		AddRow(ek.ID().String(), "merchant-1", kek.ID().String(), string(aead.ChaCha20Poly1305),
			wrapped.Ciphertext, wrapped.Nonce[:], time.Now())
	mock.ExpectQuery("SELECT id, merchant_id, key_encryption_key_id, cipher, key, nonce, created_at").
		WithArgs(ek.ID().String()).
		WillReturnRows(rows)

	got, gotEK, err := custodian.UnsealWithKey(context.Background(), "merchant-1", model.Sealed{
		EncryptionKeyID: ek.ID(),
		Cipher:          aead.ChaCha20Poly1305,
		Blob:            rowSealed.Ciphertext,
		Nonce:           rowSealed.Nonce,
	})
	if err != nil {
		t.Fatalf("UnsealWithKey: %v", err)
	}
	if string(got) != string(plain) {
		t.Fatalf("got %q, want %q", got, plain)
	}
	if gotEK.ID() != ek.ID() {
		t.Fatal("expected the unwrapped EK to retain its original id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResealUsesSameEncryptionKeyAndFreshNonce(t *testing.T) {
	kek := newTestKEK(t)
	ek, err := custody.GenerateEncryptionKey(aead.AES256GCMSIV)
	if err != nil {
		t.Fatalf("GenerateEncryptionKey: %v", err)
	}
	custodian := NewCustodian(kek, nil, aead.ChaCha20Poly1305)

	first, err := custodian.Reseal(ek, []byte("plaintext-v1"))
	if err != nil {
		t.Fatalf("Reseal: %v", err)
	}
	second, err := custodian.Reseal(ek, []byte("plaintext-v1"))
	if err != nil {
		t.Fatalf("Reseal: %v", err)
	}
	if first.EncryptionKeyID != second.EncryptionKeyID {
		t.Fatal("Reseal should keep sealing under the same EK id")
	}
	if bytes.Equal(first.Nonce[:], second.Nonce[:]) {
		t.Fatal("Reseal should use a fresh nonce on every call")
	}
	if first.Cipher != ek.Algorithm() {
		t.Fatalf("Reseal cipher = %v, want the EK's own algorithm %v", first.Cipher, ek.Algorithm())
	}

	plain, err := ek.Decrypt(aead.Sealed{Nonce: second.Nonce, Ciphertext: second.Blob})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plain) != "plaintext-v1" {
		t.Fatalf("got %q, want plaintext-v1", plain)
	}
}

func TestUnsealWithKeyPropagatesNotFound(t *testing.T) {
	kek := newTestKEK(t)
	st, mock := newTestStore(t)
	custodian := NewCustodian(kek, st, aead.ChaCha20Poly1305)

	mock.ExpectQuery("SELECT id, merchant_id, key_encryption_key_id, cipher, key, nonce, created_at").
		WillReturnError(sql.ErrNoRows)

	missing := hashid.SumString("missing")
	_, _, err := custodian.UnsealWithKey(context.Background(), "merchant-1",
		model.Sealed{EncryptionKeyID: missing, Cipher: aead.ChaCha20Poly1305})
	if err == nil {
		t.Fatal("expected error for missing encryption key row")
	}
}
