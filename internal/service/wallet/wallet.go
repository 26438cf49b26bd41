// Package wallet implements the Wallet RPC service (spec §4.3, C8):
// creating hot/cold BTC/BCH/XMR wallets and looking them up, sealing the
// wallet secret blob under a freshly minted EK.
package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/service"
	"github.com/moonramp/moonramp/internal/store"
	"github.com/moonramp/moonramp/internal/walletkeys"
)

// Version is this service's build identifier (wallet.version isn't in
// spec §6's method table, but the sibling services expose one; kept for
// symmetry at the HTTP edge's capability probe).
const Version = "moonramp-wallet/1"

// Service implements wallet.create/lookup.
type Service struct {
	store     *store.Store
	custodian *service.Custodian
}

func New(st *store.Store, custodian *service.Custodian) *Service {
	return &Service{store: st, custodian: custodian}
}

// CreateRequest is wallet.create's payload: exactly one of the hot/cold
// variants per ticker is populated (spec §6: "variant: BtcHot /
// BtcCold{pubkey,coldType} / BchHot / BchCold{...} / XmrHot").
type CreateRequest struct {
	Ticker     model.Ticker
	Network    string
	WalletType model.WalletType
	// ColdPubkey/ColdViewKey/ColdSpendPub are only populated for cold
	// wallets, where the merchant supplies its own key material.
	ColdPubkey   string
	ColdViewKey  string
	ColdSpendPub string
}

// Create generates (hot) or registers (cold) a wallet and persists it
// sealed under a fresh EK (spec §4.3).
func (s *Service) Create(ctx context.Context, merchantID string, req CreateRequest) (model.Wallet, error) {
	blob, pubkey, err := buildWalletBlob(req)
	if err != nil {
		return model.Wallet{}, err
	}
	plain, err := json.Marshal(blob)
	if err != nil {
		return model.Wallet{}, merr.Wrap(merr.Invalid, "marshal wallet secret", err)
	}
	sealed, err := s.custodian.SealFresh(ctx, merchantID, plain)
	if err != nil {
		return model.Wallet{}, err
	}
	w := model.Wallet{
		Hash:       hashid.SumString(pubkey),
		MerchantID: merchantID,
		Ticker:     req.Ticker,
		Network:    req.Network,
		WalletType: req.WalletType,
		Pubkey:     pubkey,
		Sealed:     sealed,
		CreatedAt:  time.Now(),
	}
	if err := s.store.InsertWallet(ctx, w, 0); err != nil {
		return model.Wallet{}, err
	}
	return w, nil
}

func buildWalletBlob(req CreateRequest) (interface{}, string, error) {
	if req.WalletType == model.WalletCold {
		switch req.Ticker {
		case model.TickerBTC, model.TickerBCH:
			return walletkeys.ColdWalletBlob{XPub: req.ColdPubkey}, req.ColdPubkey, nil
		case model.TickerXMR:
			return walletkeys.MoneroColdWalletBlob{ViewKey: req.ColdViewKey, SpendPub: req.ColdSpendPub}, req.ColdSpendPub, nil
		default:
			return nil, "", merr.New(merr.Invalid, "unknown ticker")
		}
	}

	switch req.Ticker {
	case model.TickerBTC, model.TickerBCH:
		hot, err := walletkeys.GenerateHotWallet(req.Network)
		if err != nil {
			return nil, "", err
		}
		return hot, hot.XPub, nil
	case model.TickerXMR:
		hot, spend, err := walletkeys.GenerateHotMoneroWallet()
		if err != nil {
			return nil, "", err
		}
		view := walletkeys.DeriveMoneroViewKey(spend)
		spendPub, _, err := walletkeys.MoneroPublicKeys(spend, view)
		if err != nil {
			return nil, "", err
		}
		return hot, hex.EncodeToString(spendPub[:]), nil
	default:
		return nil, "", merr.New(merr.Invalid, "unknown ticker")
	}
}

// Lookup resolves a wallet by hash or pubkey, merchant-scoped.
func (s *Service) Lookup(ctx context.Context, merchantID string, hash *hashid.Hash, pubkey *string) (model.Wallet, error) {
	var (
		w   model.Wallet
		err error
	)
	switch {
	case hash != nil:
		w, err = s.store.GetWalletByHash(ctx, *hash)
	case pubkey != nil:
		w, err = s.store.GetWalletByHash(ctx, hashid.SumString(*pubkey))
	default:
		return model.Wallet{}, merr.New(merr.Invalid, "wallet.lookup requires hash or pubkey")
	}
	if err != nil {
		return model.Wallet{}, err
	}
	if w.MerchantID != merchantID {
		return model.Wallet{}, merr.New(merr.NotFound, "wallet not found")
	}
	return w, nil
}
