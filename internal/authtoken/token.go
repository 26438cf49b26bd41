// Package authtoken implements MoonRamp's bearer-token authentication
// (spec §6, C13): opaque random tokens whose Argon2id hash is the only
// thing ever persisted, verified against a presented plaintext token to
// recover (merchant_id, role, scopes).
package authtoken

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/moonramp/moonramp/internal/merr"
)

// Scope is a Resource/Access pair, e.g. "Program/Write" (spec §6's
// "role-scope pairs" table).
type Scope string

const (
	ProgramRead  Scope = "Program/Read"
	ProgramWrite Scope = "Program/Write"
	WalletRead   Scope = "Wallet/Read"
	WalletWrite  Scope = "Wallet/Write"
	SaleRead     Scope = "Sale/Read"
	SaleWrite    Scope = "Sale/Write"
)

// Principal is what a verified token resolves to.
type Principal struct {
	MerchantID string
	Role       string
	Scopes     []Scope
}

// Has reports whether the principal carries scope.
func (p Principal) Has(scope Scope) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

const (
	saltLen    = 16
	argonTime  = 1
	argonMemKB = 64 * 1024
	argonLanes = 4
	keyLen     = 32
)

// Hash derives the Argon2id digest stored for a freshly minted token.
// The plaintext itself is returned to the caller exactly once, by
// Generate; Hash is never given a chance to leak it back out.
func Hash(plaintext string) (salt, digest []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, merr.Wrap(merr.CryptoFailure, "generate token salt", err)
	}
	digest = argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemKB, argonLanes, keyLen)
	return salt, digest, nil
}

// Verify reports whether plaintext hashes to digest under salt, using a
// constant-time comparison.
func Verify(plaintext string, salt, digest []byte) bool {
	candidate := argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemKB, argonLanes, keyLen)
	return subtle.ConstantTimeCompare(candidate, digest) == 1
}

// Generate mints a fresh opaque bearer token: 32 random bytes, base64url
// encoded. The caller is responsible for hashing it via Hash before
// persisting and printing the plaintext to the operator exactly once.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", merr.Wrap(merr.CryptoFailure, "generate bearer token", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Record is the persisted shape of one api_tokens row.
type Record struct {
	ID         string
	MerchantID string
	Role       string
	Scopes     []Scope
	Salt       []byte
	Digest     []byte
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Lookup resolves a token id (the portion of the bearer token used as a
// lookup key, not the secret itself) to its stored record.
type Lookup interface {
	TokenRecord(ctx context.Context, tokenID string) (Record, bool, error)
}

// Verifier authenticates presented bearer tokens against a Lookup.
// Tokens are formatted "<id>.<secret>" so verification is an O(1) lookup
// followed by a constant-time digest comparison, rather than scanning
// every stored hash.
type Verifier struct {
	store Lookup
}

func NewVerifier(store Lookup) *Verifier {
	return &Verifier{store: store}
}

// Authenticate verifies presented and, on success, returns the Principal
// it resolves to (spec §4.7: "verifies a presented token against the
// stored hash and returns (merchant_id, role, scopes)").
func (v *Verifier) Authenticate(ctx context.Context, presented string) (Principal, error) {
	id, secret, ok := splitToken(presented)
	if !ok {
		return Principal{}, merr.New(merr.Unauthorized, "malformed bearer token")
	}
	rec, found, err := v.store.TokenRecord(ctx, id)
	if err != nil {
		return Principal{}, merr.Wrap(merr.StoreFailure, "look up token record", err)
	}
	if !found || rec.RevokedAt != nil {
		return Principal{}, merr.New(merr.Unauthorized, "unknown or revoked token")
	}
	if !Verify(secret, rec.Salt, rec.Digest) {
		return Principal{}, merr.New(merr.Unauthorized, "token does not match stored hash")
	}
	return Principal{MerchantID: rec.MerchantID, Role: rec.Role, Scopes: rec.Scopes}, nil
}

// Issue mints a new bearer token of the form "<id>.<secret>" and its
// Record, ready for the store to persist. The plaintext is the only copy
// of secret that will ever exist outside this call.
func Issue(merchantID, role string, scopes []Scope, id string) (plaintext string, rec Record, err error) {
	secret, err := Generate()
	if err != nil {
		return "", Record{}, err
	}
	salt, digest, err := Hash(secret)
	if err != nil {
		return "", Record{}, err
	}
	rec = Record{
		ID:         id,
		MerchantID: merchantID,
		Role:       role,
		Scopes:     scopes,
		Salt:       salt,
		Digest:     digest,
		CreatedAt:  time.Now(),
	}
	return id + "." + secret, rec, nil
}

func splitToken(presented string) (id, secret string, ok bool) {
	parts := strings.SplitN(presented, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
