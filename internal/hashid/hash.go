// Package hashid implements the 32-byte content identifiers used for every
// immutable MoonRamp row (Wallet, Program, Invoice, Sale): a SHA3-256 digest
// of the row's content-defining fields, displayed as base58 text and stored
// as raw bytes at the database boundary.
package hashid

import (
	"database/sql/driver"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

// Size is the fixed byte length of a Hash.
const Size = 32

// Hash is a 32-byte SHA3-256 content identifier.
type Hash [Size]byte

// Sum returns the SHA3-256 digest of the concatenation of parts.
func Sum(parts ...[]byte) Hash {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// SumString is a convenience wrapper over Sum for string inputs, used for
// the common "uuid || other-field" hash-folding pattern (spec §3).
func SumString(parts ...string) Hash {
	b := make([][]byte, len(parts))
	for i, p := range parts {
		b[i] = []byte(p)
	}
	return Sum(b...)
}

// IsZero reports whether h is the zero value (never a valid content hash,
// since SHA3-256 over any real input is practically never all-zero).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String renders h as base58 text, matching the on-wire identity-column
// format from spec §6.
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// Parse decodes base58 text back into a Hash.
func Parse(s string) (Hash, error) {
	b := base58.Decode(s)
	if len(b) != Size {
		return Hash{}, fmt.Errorf("hashid: decoded length %d, want %d", len(b), Size)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MarshalJSON renders the hash as its base58 string form.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON parses a base58 string form back into a Hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("hashid: invalid JSON hash literal %q", data)
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Value implements database/sql/driver.Valuer, storing the hash as its
// base58 text form (identity columns store 32-byte hashes as base58 text
// per spec §6).
func (h Hash) Value() (driver.Value, error) {
	if h.IsZero() {
		return nil, nil
	}
	return h.String(), nil
}

// Scan implements sql.Scanner.
func (h *Hash) Scan(src interface{}) error {
	if src == nil {
		*h = Hash{}
		return nil
	}
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	default:
		return fmt.Errorf("hashid: cannot scan %T into Hash", src)
	}
}
