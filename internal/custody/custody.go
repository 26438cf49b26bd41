// Package custody implements the three-level key-encryption hierarchy that
// protects every secret MoonRamp persists: a MasterKEK derived from
// operator-supplied bytes, a KEK wrapped under the MasterKEK, and a
// per-blob EncryptionKey wrapped under the current KEK (spec §4.1).
package custody

import (
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
)

const (
	hkdfInfo  = "MoonRamp"
	hkdfIters = 1000
)

// DerivationMode selects how a MasterKEK turns operator bytes into a
// working key (spec §4.1: "implementation-selectable").
type DerivationMode int

const (
	// DeriveSHA3 hashes the operator bytes once with SHA3-256.
	DeriveSHA3 DerivationMode = iota
	// DeriveHKDF expands the operator bytes through HKDF-SHA3-512 with
	// info label "MoonRamp", iterated 1000 times, zeroing the input
	// buffer once the expansion is complete.
	DeriveHKDF
)

// MasterKEK is the top of the key hierarchy. It is never persisted; the
// node reconstructs it from operator-supplied bytes on every boot.
type MasterKEK struct {
	id  hashid.Hash
	key []byte // 32 bytes, zeroed on Close
	alg aead.Algorithm
}

// NewMasterKEK derives a MasterKEK's working key from operator-supplied
// bytes according to mode, and binds it to alg for subsequent lock/unlock
// calls.
func NewMasterKEK(operatorBytes []byte, mode DerivationMode, alg aead.Algorithm) (*MasterKEK, error) {
	var key []byte
	switch mode {
	case DeriveSHA3:
		sum := sha3.Sum256(operatorBytes)
		key = sum[:]
	case DeriveHKDF:
		expanded, err := hkdfExpand(operatorBytes, hkdfIters)
		if err != nil {
			return nil, err
		}
		for i := range operatorBytes {
			operatorBytes[i] = 0
		}
		key = expanded
	default:
		return nil, merr.New(merr.CryptoFailure, "unknown MasterKEK derivation mode")
	}
	return &MasterKEK{
		id:  hashid.Sum(key),
		key: key,
		alg: alg,
	}, nil
}

// hkdfExpand runs HKDF-SHA3-512 over secret with the MoonRamp info label,
// re-keying iters times so the final 32-byte output reflects iters rounds
// of expansion (spec §4.1).
func hkdfExpand(secret []byte, iters int) ([]byte, error) {
	cur := secret
	out := make([]byte, aead.KeySize)
	for i := 0; i < iters; i++ {
		r := hkdf.New(sha3.New512, cur, nil, []byte(hkdfInfo))
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, merr.Wrap(merr.CryptoFailure, "HKDF expansion", err)
		}
		cur = out
	}
	final := make([]byte, aead.KeySize)
	copy(final, out)
	return final, nil
}

// ID returns the content identifier of the MasterKEK's working key.
func (m *MasterKEK) ID() hashid.Hash { return m.id }

// Lock seals a fresh KEK secret under the MasterKEK.
func (m *MasterKEK) Lock(secret []byte) (aead.Sealed, error) {
	return aead.Seal(m.alg, m.key, secret, m.id[:])
}

// Unlock reverses Lock, recovering the original KEK secret.
func (m *MasterKEK) Unlock(sealed aead.Sealed) ([]byte, error) {
	return aead.Open(m.alg, m.key, sealed.Nonce, sealed.Ciphertext, m.id[:])
}

// Close zeroes the in-memory working key. Safe to call multiple times.
func (m *MasterKEK) Close() {
	for i := range m.key {
		m.key[i] = 0
	}
}

// KEK is the middle tier: a single 32-byte secret shared by every EK minted
// while it is current. merchant_id is bound as associated data so a KEK row
// cannot be unwrapped under the wrong merchant's identity.
type KEK struct {
	id          hashid.Hash
	masterKEKID hashid.Hash
	key         []byte
	alg         aead.Algorithm
}

// NewKEK wraps an already-unwrapped KEK secret with its identity metadata.
func NewKEK(id, masterKEKID hashid.Hash, secret []byte, alg aead.Algorithm) *KEK {
	return &KEK{id: id, masterKEKID: masterKEKID, key: secret, alg: alg}
}

// GenerateKEKSecret draws a fresh 32-byte KEK secret and its content id.
// The caller (boot protocol) seals it under the MasterKEK before persisting.
func GenerateKEKSecret() (secret []byte, id hashid.Hash, err error) {
	secret, err = aead.GenerateKey()
	if err != nil {
		return nil, hashid.Hash{}, err
	}
	id = hashid.Sum(secret)
	return secret, id, nil
}

// ID returns the KEK's content identifier.
func (k *KEK) ID() hashid.Hash { return k.id }

// MasterKEKID returns the id of the MasterKEK this KEK is wrapped under.
func (k *KEK) MasterKEKID() hashid.Hash { return k.masterKEKID }

// Lock seals a freshly minted EK secret under this KEK, binding merchantID
// as associated data.
func (k *KEK) Lock(merchantID string, secret []byte) (aead.Sealed, error) {
	return aead.Seal(k.alg, k.key, secret, []byte(merchantID))
}

// Unlock reverses Lock, recovering the EK secret for merchantID.
func (k *KEK) Unlock(merchantID string, sealed aead.Sealed) ([]byte, error) {
	return aead.Open(k.alg, k.key, sealed.Nonce, sealed.Ciphertext, []byte(merchantID))
}

// EncryptionKey is the bottom tier: a single-use data key protecting
// exactly one encrypted blob (spec §4.1).
type EncryptionKey struct {
	id  hashid.Hash
	key []byte
	alg aead.Algorithm
}

// NewEncryptionKey wraps an already-unwrapped EK secret with its identity.
func NewEncryptionKey(id hashid.Hash, secret []byte, alg aead.Algorithm) *EncryptionKey {
	return &EncryptionKey{id: id, key: secret, alg: alg}
}

// GenerateEncryptionKey mints a fresh EK secret and its content id, ready
// to be sealed under a KEK via KEK.Lock.
func GenerateEncryptionKey(alg aead.Algorithm) (*EncryptionKey, error) {
	secret, err := aead.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &EncryptionKey{id: hashid.Sum(secret), key: secret, alg: alg}, nil
}

// ID returns the EK's content identifier.
func (e *EncryptionKey) ID() hashid.Hash { return e.id }

// Algorithm returns the cipher this EK encrypts under.
func (e *EncryptionKey) Algorithm() aead.Algorithm { return e.alg }

// Encrypt seals plain under this EK, drawing a fresh nonce.
func (e *EncryptionKey) Encrypt(plain []byte) (aead.Sealed, error) {
	return aead.Seal(e.alg, e.key, plain, e.id[:])
}

// Decrypt reverses Encrypt.
func (e *EncryptionKey) Decrypt(sealed aead.Sealed) ([]byte, error) {
	return aead.Open(e.alg, e.key, sealed.Nonce, sealed.Ciphertext, e.id[:])
}

// WrapUnder seals this EK's own secret under kek, binding merchantID — the
// form persisted in the encryption_keys table (spec §3's EncryptionKey
// row: "key, encrypted under the current KEK").
func (e *EncryptionKey) WrapUnder(kek *KEK, merchantID string) (aead.Sealed, error) {
	return kek.Lock(merchantID, e.key)
}

// UnwrapEncryptionKey reverses WrapUnder: given the KEK a persisted EK row
// claims to be wrapped under, recover the usable EncryptionKey.
func UnwrapEncryptionKey(kek *KEK, merchantID string, id hashid.Hash, sealed aead.Sealed, alg aead.Algorithm) (*EncryptionKey, error) {
	secret, err := kek.Unlock(merchantID, sealed)
	if err != nil {
		return nil, err
	}
	return NewEncryptionKey(id, secret, alg), nil
}
