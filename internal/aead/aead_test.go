package aead

import (
	"bytes"
	"io"
	"testing"
)

// repeatReader yields a fixed byte pattern, varying by an offset, so two
// sequential reads in a test never collide even with a non-crypto source.
type repeatReader struct {
	b   byte
	pos int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b + byte(r.pos)
		r.pos++
	}
	return len(p), nil
}

func TestSealOpenRoundTripBothCiphers(t *testing.T) {
	for _, alg := range []Algorithm{AES256GCMSIV, ChaCha20Poly1305} {
		key, err := GenerateKey()
		if err != nil {
			t.Fatalf("%s: GenerateKey: %v", alg, err)
		}
		plaintext := []byte("the quick brown fox jumps over the lazy dog")
		aad := []byte("associated-data")

		sealed, err := Seal(alg, key, plaintext, aad)
		if err != nil {
			t.Fatalf("%s: Seal: %v", alg, err)
		}
		got, err := Open(alg, key, sealed.Nonce, sealed.Ciphertext, aad)
		if err != nil {
			t.Fatalf("%s: Open: %v", alg, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("%s: round trip mismatch: got %q want %q", alg, got, plaintext)
		}
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	sealed, err := Seal(ChaCha20Poly1305, key, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := append([]byte(nil), sealed.Ciphertext...)
	tampered[0] ^= 0xFF
	if _, err := Open(ChaCha20Poly1305, key, sealed.Nonce, tampered, nil); err == nil {
		t.Fatal("expected AEAD verification failure on tampered ciphertext")
	}
}

func TestSealDrawsFreshNonceEveryCall(t *testing.T) {
	orig := RandSource
	RandSource = &repeatReader{b: 0x01}
	defer func() { RandSource = orig }()

	key := bytes.Repeat([]byte{0x42}, KeySize)
	s1, err := Seal(AES256GCMSIV, key, []byte("message one"), nil)
	if err != nil {
		t.Fatalf("Seal 1: %v", err)
	}
	s2, err := Seal(AES256GCMSIV, key, []byte("message two"), nil)
	if err != nil {
		t.Fatalf("Seal 2: %v", err)
	}
	if s1.Nonce == s2.Nonce {
		t.Fatal("expected distinct nonces across sequential Seal calls")
	}
}

func TestGenerateKeyLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("got key length %d, want %d", len(key), KeySize)
	}
}

func TestSealRejectsWrongKeyLength(t *testing.T) {
	if _, err := Seal(ChaCha20Poly1305, []byte("too-short"), []byte("x"), nil); err == nil {
		t.Fatal("expected error for undersized key")
	}
}

var _ io.Reader = (*repeatReader)(nil)
