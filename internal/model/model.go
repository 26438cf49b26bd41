// Package model defines the row shapes persisted by internal/store: every
// secret-bearing entity carries the common envelope-encryption fields
// (cipher, encryption key id, nonce, blob) alongside its domain columns
// (spec §3).
package model

import (
	"time"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/custody"
	"github.com/moonramp/moonramp/internal/hashid"
)

// Sealed is the common envelope-encryption footer every secret row carries.
type Sealed struct {
	EncryptionKeyID hashid.Hash
	Cipher          aead.Algorithm
	Blob            []byte
	Nonce           [aead.NonceSize]byte
}

// Seal encrypts plain under a freshly minted EK and returns both the Sealed
// footer and the EK itself, which the caller persists alongside the row.
func Seal(alg aead.Algorithm, plain []byte) (Sealed, *custody.EncryptionKey, error) {
	ek, err := custody.GenerateEncryptionKey(alg)
	if err != nil {
		return Sealed{}, nil, err
	}
	sealed, err := ek.Encrypt(plain)
	if err != nil {
		return Sealed{}, nil, err
	}
	return Sealed{
		EncryptionKeyID: ek.ID(),
		Cipher:          alg,
		Blob:            sealed.Ciphertext,
		Nonce:           sealed.Nonce,
	}, ek, nil
}

// Open decrypts s using the already-unwrapped EK that sealed it. Callers
// are responsible for looking up and unwrapping that EK (via
// internal/store and internal/custody) before calling Open.
func Open(s Sealed, ek *custody.EncryptionKey) ([]byte, error) {
	return ek.Decrypt(aead.Sealed{Nonce: s.Nonce, Ciphertext: s.Blob})
}

// Merchant is the immutable tenant root. Unlike every other entity it keeps
// a plain operator-assigned id rather than a content Hash (spec §3, §9
// Open Question 1).
type Merchant struct {
	ID        string
	Name      string
	Contact   string
	CreatedAt time.Time
}

// KeyEncryptionKey is the persisted row for a KEK: its secret, sealed under
// the MasterKEK that minted it.
type KeyEncryptionKey struct {
	ID                       hashid.Hash
	MasterKeyEncryptionKeyID hashid.Hash
	Sealed                   Sealed
	CreatedAt                time.Time
}

// EncryptionKey is the persisted row for an EK: its secret, sealed under
// the KEK current when it was minted.
type EncryptionKey struct {
	ID                 hashid.Hash
	MerchantID         string
	KeyEncryptionKeyID hashid.Hash
	Sealed             Sealed
	CreatedAt          time.Time
}

// WalletType distinguishes hot wallets (MoonRamp holds derivation secrets)
// from cold wallets (merchant supplies an xpub/viewkey only).
type WalletType string

const (
	WalletHot  WalletType = "Hot"
	WalletCold WalletType = "Cold"
)

// Ticker identifies the supported chains.
type Ticker string

const (
	TickerBTC Ticker = "BTC"
	TickerBCH Ticker = "BCH"
	TickerXMR Ticker = "XMR"
)

// Wallet is a merchant's receive-address source for one chain. Blob is the
// JSON-serialized wallet secret; Pubkey is globally unique (I5) and Hash =
// SHA3-256(Pubkey).
type Wallet struct {
	Hash       hashid.Hash
	MerchantID string
	Ticker     Ticker
	Network    string
	WalletType WalletType
	Pubkey     string
	Sealed     Sealed
	CreatedAt  time.Time
}

// Program is a merchant-supplied, pre-compiled WASM module. Hash =
// SHA3-256(source wasm bytes); Revision is unique per (MerchantID, Name)
// and strictly increases by 1 on update (I4).
type Program struct {
	Hash        hashid.Hash
	MerchantID  string
	Name        string
	Version     string
	URL         string
	Description string
	Private     bool
	Revision    int
	Sealed      Sealed
	CreatedAt   time.Time
}

// InvoiceStatus is the Invoice state machine (I3): Pending transitions to
// exactly one of Funded, Canceled, Expired; Funded is terminal.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "Pending"
	InvoiceStatusFunded   InvoiceStatus = "Funded"
	InvoiceStatusCanceled InvoiceStatus = "Canceled"
	InvoiceStatusExpired  InvoiceStatus = "Expired"
)

// Invoice is a single receive request: an address issued off a Wallet, with
// an expiry after which an unfunded invoice is reaped. Hash =
// SHA3-256(uuid || address).
type Invoice struct {
	Hash       hashid.Hash
	MerchantID string
	WalletHash hashid.Hash
	Ticker     Ticker
	Currency   string
	Network    string
	Status     InvoiceStatus
	Pubkey     string
	Address    string
	Amount     int64 // minor units: satoshis (BTC/BCH) or piconero (XMR)
	URI        string
	Sealed     Sealed
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

// Sale is the terminal record of a captured Invoice; at most one Sale per
// Invoice (I3). Hash = SHA3-256(uuid || invoice_hash).
type Sale struct {
	Hash          hashid.Hash
	MerchantID    string
	WalletHash    hashid.Hash
	InvoiceHash   hashid.Hash
	Ticker        Ticker
	Currency      string
	Network       string
	Pubkey        string
	Address       string
	Amount        int64
	Confirmations int
	Sealed        Sealed
	CreatedAt     time.Time
}
