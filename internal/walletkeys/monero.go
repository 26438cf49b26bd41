package walletkeys

import (
	"crypto/rand"
	"encoding/json"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/sha3"

	"github.com/moonramp/moonramp/internal/merr"
)

// MoneroWalletBlob is the JSON shape persisted as a hot Monero wallet's
// encrypted blob: a single 32-byte spend key, from which the view key and
// both public keys are rederivable.
type MoneroWalletBlob struct {
	SpendKey string `json:"spend_key"`
}

// MoneroColdWalletBlob is the JSON shape for a cold Monero wallet: only the
// view key is held, enough to observe funding, never to spend.
type MoneroColdWalletBlob struct {
	ViewKey  string `json:"view_key"`
	SpendPub string `json:"spend_pub"`
}

// GenerateMoneroSpendKey draws a fresh spend key: 64 bytes of entropy wide-
// reduced mod the Ed25519 group order l (spec §4.3; monero_wallet.rs's
// Scalar::from_bytes_mod_order_wide over a 64-byte random buffer).
func GenerateMoneroSpendKey() ([32]byte, error) {
	var entropy [64]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return [32]byte{}, merr.Wrap(merr.CryptoFailure, "generate Monero spend key", err)
	}
	return reduceWide(entropy[:])
}

// DeriveMoneroViewKey derives the view key as Keccak-256(spend) reduced mod
// l (spec §4.3; monero_wallet.rs hashes with Monero's cryptonote Hash, which
// is Keccak-256, not the NIST-standardized SHA3-256, then runs
// Scalar::from_bytes_mod_order over the 32-byte digest).
func DeriveMoneroViewKey(spend [32]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(spend[:])
	digest := h.Sum(nil)

	var wide [64]byte
	copy(wide[:32], digest)
	view, err := reduceWide(wide[:])
	if err != nil {
		// wide is always exactly 64 bytes; SetUniformBytes only rejects a
		// wrong-length input.
		panic(err)
	}
	return view
}

// reduceWide reduces a 64-byte little-endian integer mod the Ed25519 group
// order l, returning its canonical 32-byte scalar encoding.
func reduceWide(wide []byte) ([32]byte, error) {
	var out [32]byte
	s, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return out, merr.Wrap(merr.CryptoFailure, "reduce Monero scalar", err)
	}
	copy(out[:], s.Bytes())
	return out, nil
}

// MoneroPublicKeys computes the spend and view public keys for a spend/view
// key pair as Ed25519 (twisted-Edwards) scalar multiples of the basepoint —
// monero::PublicKey::from_private_key, not Curve25519/X25519
// Diffie-Hellman, which is a different, incompatible primitive.
func MoneroPublicKeys(spend, view [32]byte) (spendPub, viewPub [32]byte, err error) {
	spendScalar, err := edwards25519.NewScalar().SetCanonicalBytes(spend[:])
	if err != nil {
		return spendPub, viewPub, merr.Wrap(merr.CryptoFailure, "decode Monero spend key", err)
	}
	viewScalar, err := edwards25519.NewScalar().SetCanonicalBytes(view[:])
	if err != nil {
		return spendPub, viewPub, merr.Wrap(merr.CryptoFailure, "decode Monero view key", err)
	}

	sp := new(edwards25519.Point).ScalarBaseMult(spendScalar)
	vp := new(edwards25519.Point).ScalarBaseMult(viewScalar)
	copy(spendPub[:], sp.Bytes())
	copy(viewPub[:], vp.Bytes())
	return spendPub, viewPub, nil
}

// MoneroStandardAddress encodes (spendPub, viewPub, network) as a
// base58Check string: a one-byte network prefix, the two 32-byte public
// keys, and a 4-byte checksum (the standard envelope this module's other
// identity strings already use via internal/hashid's base58 convention).
func MoneroStandardAddress(spendPub, viewPub [32]byte, network string) string {
	prefix := moneroNetworkPrefix(network)
	payload := make([]byte, 0, 65)
	payload = append(payload, spendPub[:]...)
	payload = append(payload, viewPub[:]...)
	return base58.CheckEncode(payload, prefix)
}

func moneroNetworkPrefix(network string) byte {
	switch network {
	case "testnet":
		return 53
	case "stagenet":
		return 24
	default:
		return 18
	}
}

// GenerateHotMoneroWallet produces a fresh spend key and the blob to seal.
func GenerateHotMoneroWallet() (MoneroWalletBlob, [32]byte, error) {
	spend, err := GenerateMoneroSpendKey()
	if err != nil {
		return MoneroWalletBlob{}, spend, err
	}
	return MoneroWalletBlob{SpendKey: base58.Encode(spend[:])}, spend, nil
}

// MarshalBlob is a convenience wrapper used by the wallet service when
// sealing the freshly generated secret.
func (b MoneroWalletBlob) MarshalBlob() ([]byte, error) { return json.Marshal(b) }

// MarshalBlob for a cold Monero wallet.
func (b MoneroColdWalletBlob) MarshalBlob() ([]byte, error) { return json.Marshal(b) }
