// Package walletkeys implements HD key derivation for the chains MoonRamp
// issues receive addresses on: Bitcoin and Bitcoin Cash via BIP32/BIP39
// (spec §4.3), and Monero spend/view key pairs.
package walletkeys

import (
	"crypto/rand"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/gcash/bchutil"
	"github.com/tyler-smith/go-bip39"

	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
)

// entropyBits is the BIP-39 entropy size backing the 24-word mnemonic used
// for every hot wallet (spec §4.3: "32-byte random entropy").
const entropyBits = 256

// passwordChars is the alphabet the random BIP-39 seed password is drawn
// from.
const passwordChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// HotWalletBlob is the JSON shape persisted as a hot Wallet's encrypted
// blob: enough to re-derive any address at any index without re-running
// BIP-39 entropy generation.
type HotWalletBlob struct {
	Mnemonic string `json:"mnemonic"`
	Password string `json:"password"`
	XPub     string `json:"xpub"`
}

// ColdWalletBlob is the JSON shape for a cold wallet: the merchant supplies
// the xpub directly, no secret material is ever held.
type ColdWalletBlob struct {
	XPub string `json:"xpub"`
}

func chainParams(network string) *chaincfg.Params {
	switch network {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

func randomPassword(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", merr.Wrap(merr.CryptoFailure, "generate seed password", err)
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = passwordChars[int(v)%len(passwordChars)]
	}
	return string(out), nil
}

// GenerateHotWallet mints a fresh BIP-39 mnemonic, derives a BIP-32 master
// extended key, and returns the blob to seal plus the Pubkey value that
// becomes the Wallet row's unique identity column.
func GenerateHotWallet(network string) (HotWalletBlob, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return HotWalletBlob{}, merr.Wrap(merr.CryptoFailure, "generate BIP-39 entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return HotWalletBlob{}, merr.Wrap(merr.CryptoFailure, "generate BIP-39 mnemonic", err)
	}
	password, err := randomPassword(32)
	if err != nil {
		return HotWalletBlob{}, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, password)
	if err != nil {
		return HotWalletBlob{}, merr.Wrap(merr.CryptoFailure, "derive BIP-39 seed", err)
	}
	master, err := hdkeychain.NewMaster(seed, chainParams(network))
	if err != nil {
		return HotWalletBlob{}, merr.Wrap(merr.CryptoFailure, "derive BIP-32 master key", err)
	}
	neutered, err := master.Neuter()
	if err != nil {
		return HotWalletBlob{}, merr.Wrap(merr.CryptoFailure, "neuter master key", err)
	}
	return HotWalletBlob{Mnemonic: mnemonic, Password: password, XPub: neutered.String()}, nil
}

// MarshalBlob is a convenience wrapper used by the wallet service when
// sealing the freshly generated secret.
func (b HotWalletBlob) MarshalBlob() ([]byte, error) { return json.Marshal(b) }

// MarshalBlob for a cold wallet.
func (b ColdWalletBlob) MarshalBlob() ([]byte, error) { return json.Marshal(b) }

// deriveChildPubKey walks m/1/0/idx from an xpub (spec §4.3), returning the
// compressed public key at that leaf.
func deriveChildPubKey(xpub string, network string, idx uint32) (*btcec.PublicKey, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, merr.Wrap(merr.Invalid, "parse xpub", err)
	}
	for _, n := range []uint32{1, 0, idx} {
		key, err = key.Derive(n)
		if err != nil {
			return nil, merr.Wrap(merr.CryptoFailure, "derive child key", err)
		}
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return nil, merr.Wrap(merr.CryptoFailure, "extract child public key", err)
	}
	return pub, nil
}

// NextAddress derives the address at HD index idx for ticker (BTC: P2WPKH,
// BCH: P2PKH/cashaddr), per spec §4.3.
func NextAddress(ticker model.Ticker, xpub, network string, idx uint32) (string, error) {
	pub, err := deriveChildPubKey(xpub, network, idx)
	if err != nil {
		return "", err
	}
	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())
	params := chainParams(network)

	switch ticker {
	case model.TickerBTC:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
		if err != nil {
			return "", merr.Wrap(merr.CryptoFailure, "derive P2WPKH address", err)
		}
		return addr.EncodeAddress(), nil
	case model.TickerBCH:
		addr, err := bchutil.NewAddressPubKeyHash(pubKeyHash, params)
		if err != nil {
			return "", merr.Wrap(merr.CryptoFailure, "derive P2PKH address", err)
		}
		return addr.EncodeAddress(), nil
	default:
		return "", merr.New(merr.Invalid, "NextAddress: unsupported ticker for BIP32 derivation")
	}
}
