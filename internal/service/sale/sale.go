// Package sale implements the Sale RPC service (spec §4.4, C9): the hard
// path that orchestrates the key custodian (C3), the WASM sandbox (C5),
// the blockchain gateway (C6), and the store's row-lock discipline (C12)
// to issue invoices and capture funded sales.
package sale

import (
	"context"
	"encoding/json"
	"time"

	"github.com/moonramp/moonramp/internal/gateway"
	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/sandbox"
	"github.com/moonramp/moonramp/internal/service"
	"github.com/moonramp/moonramp/internal/service/program"
	"github.com/moonramp/moonramp/internal/store"
)

// Version is this service's build identifier.
const Version = "moonramp-sale/1"

// invoiceSandboxTimeout is the per-call sandbox timeout for invoice()
// (spec §4.4 step 5: "a per-call timeout (>= 55s)").
const invoiceSandboxTimeout = 55 * time.Second

// captureSandboxTimeout bounds capture()'s funding poll (spec §4.4 step 4:
// "The outer timeout bounds this poll").
const captureSandboxTimeout = 55 * time.Second

// defaultInvoiceExpiry is invoice()'s fallback expiry window (spec §4.4
// step 8: "expires_in or 900 s").
const defaultInvoiceExpiry = 900 * time.Second

// Service implements sale.invoice/invoiceLookup/capture/lookup.
type Service struct {
	store     *store.Store
	custodian *service.Custodian
	engine    *sandbox.Engine
	programs  *program.Service

	bitcoin *gateway.BitcoinGateway
	bch     *gateway.BitcoinGateway
	monero  *gateway.MoneroGateway
}

func New(st *store.Store, custodian *service.Custodian, engine *sandbox.Engine, programs *program.Service, btc, bch *gateway.BitcoinGateway, xmr *gateway.MoneroGateway) *Service {
	return &Service{store: st, custodian: custodian, engine: engine, programs: programs, bitcoin: btc, bch: bch, monero: xmr}
}

func (s *Service) gatewaysFor(ticker model.Ticker) (bitcoin sandbox.GatewayCaller, monero sandbox.GatewayCaller) {
	switch ticker {
	case model.TickerBTC:
		if s.bitcoin != nil {
			bitcoin = bitcoinGatewayCaller(s.bitcoin)
		}
	case model.TickerBCH:
		if s.bch != nil {
			bitcoin = bitcoinGatewayCaller(s.bch)
		}
	case model.TickerXMR:
		if s.monero != nil {
			monero = moneroGatewayCaller(s.monero)
		}
	}
	return bitcoin, monero
}

// InvoiceRequest is invoice()'s payload (spec §4.4).
type InvoiceRequest struct {
	WalletHash hashid.Hash     `json:"hash"`
	UUID       string          `json:"uuid"`
	Currency   string          `json:"currency"`
	Amount     string          `json:"amount"`
	ExpiresIn  *time.Duration  `json:"expires_in"`
	UserData   json.RawMessage `json:"user_data"`
	Program    *hashid.Hash    `json:"program"`
}

// Invoice runs invoice() end to end: resolve program, lock the wallet,
// run the sandbox, advance HD derivation, commit, then mint and persist
// the Invoice row (spec §4.4 invoice()).
func (s *Service) Invoice(ctx context.Context, merchantID string, req InvoiceRequest) (model.Invoice, error) {
	prog, err := s.programs.ResolveForSale(ctx, merchantID, req.Program)
	if err != nil {
		return model.Invoice{}, err
	}
	programBytes, err := s.programs.Unseal(ctx, prog)
	if err != nil {
		return model.Invoice{}, err
	}

	var (
		result ExitInvoiceResult
		wallet model.Wallet
	)
	err = s.store.Tx(ctx, func(ctx context.Context, q store.Querier) error {
		locked, err := s.store.LockWalletForUpdate(ctx, q, req.WalletHash)
		if err != nil {
			return err
		}
		if locked.MerchantID != merchantID {
			return merr.New(merr.NotFound, "wallet not found")
		}
		wallet = locked.Wallet

		walletPlain, walletEK, err := s.custodian.UnsealWithKey(ctx, merchantID, locked.Sealed)
		if err != nil {
			return err
		}

		entry := invoiceEntryJSON(locked, walletPlain, req)
		bitcoin, monero := s.gatewaysFor(locked.Ticker)
		exit, err := s.engine.Execute(programBytes, entry, sandbox.ExecOptions{
			Timeout:        invoiceSandboxTimeout,
			BitcoinGateway: bitcoin,
			MoneroGateway:  monero,
		})
		if err != nil {
			return err
		}
		if exit.Err != nil {
			return merr.New(merr.SandboxFailure, exit.Err.Message)
		}
		var exitInvoice exitInvoiceWire
		if err := json.Unmarshal(exit.Ok, &exitInvoice); err != nil {
			return merr.Wrap(merr.SandboxFailure, "decode ExitData::Invoice", err)
		}
		result = ExitInvoiceResult{
			Pubkey:          exitInvoice.Pubkey,
			Address:         exitInvoice.Address,
			URI:             exitInvoice.URI,
			UserData:        exitInvoice.UserData,
			DerivationIndex: exitInvoice.Wallet.DerivationIndex,
		}

		sealed, err := s.custodian.Reseal(walletEK, exitInvoice.Wallet.Secret)
		if err != nil {
			return err
		}
		return s.store.AdvanceWalletDerivation(ctx, q, req.WalletHash, sealed, result.DerivationIndex)
	})
	if err != nil {
		return model.Invoice{}, err
	}

	userData := result.UserData
	if userData == nil {
		userData = json.RawMessage(`null`)
	}
	sealedUserData, err := s.custodian.SealFresh(ctx, merchantID, userData)
	if err != nil {
		return model.Invoice{}, err
	}

	expiresIn := defaultInvoiceExpiry
	if req.ExpiresIn != nil {
		expiresIn = *req.ExpiresIn
	}
	amount, err := model.ParseAmount(wallet.Ticker, req.Amount)
	if err != nil {
		return model.Invoice{}, merr.Wrap(merr.Invalid, "parse invoice amount", err)
	}
	now := time.Now()
	inv := model.Invoice{
		Hash:       hashid.SumString(req.UUID, result.Address),
		MerchantID: merchantID,
		WalletHash: req.WalletHash,
		Ticker:     wallet.Ticker,
		Currency:   req.Currency,
		Network:    wallet.Network,
		Status:     model.InvoiceStatusPending,
		Pubkey:     result.Pubkey,
		Address:    result.Address,
		Amount:     amount.Units,
		URI:        result.URI,
		Sealed:     sealedUserData,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(expiresIn),
	}
	if err := s.store.InsertInvoice(ctx, inv); err != nil {
		return model.Invoice{}, err
	}
	return inv, nil
}

// ExitInvoiceResult is the trimmed-down result of running EntryData::Invoice
// through the sandbox, carried across the Tx boundary.
type ExitInvoiceResult struct {
	Pubkey          string
	Address         string
	URI             string
	UserData        json.RawMessage
	DerivationIndex uint32
}

type exitInvoiceWire struct {
	Wallet   service.SandboxWallet `json:"wallet"`
	Pubkey   string                `json:"pubkey"`
	Address  string                `json:"address"`
	URI      string                `json:"uri"`
	UserData json.RawMessage       `json:"user_data,omitempty"`
}

func invoiceEntryJSON(locked store.LockedWallet, walletPlain []byte, req InvoiceRequest) []byte {
	entry := service.EntryInvoice{
		Kind: "Invoice",
		Wallet: service.SandboxWallet{
			Ticker:          locked.Ticker,
			Network:         locked.Network,
			WalletType:      locked.WalletType,
			Pubkey:          locked.Pubkey,
			DerivationIndex: locked.DerivationIndex,
			Secret:          json.RawMessage(walletPlain),
		},
		Currency: req.Currency,
		Amount:   req.Amount,
		UserData: req.UserData,
	}
	out, _ := json.Marshal(entry)
	return out
}

// InvoiceLookup is invoiceLookup(): read-only, merchant-scoped, unsealing
// user_data on success (spec §4.4).
func (s *Service) InvoiceLookup(ctx context.Context, merchantID string, hash hashid.Hash) (model.Invoice, json.RawMessage, error) {
	inv, err := s.store.GetInvoiceByHash(ctx, hash)
	if err != nil {
		return model.Invoice{}, nil, err
	}
	if inv.MerchantID != merchantID {
		return model.Invoice{}, nil, merr.New(merr.NotFound, "invoice not found")
	}
	userData, err := s.custodian.Unseal(ctx, merchantID, inv.Sealed)
	if err != nil {
		return model.Invoice{}, nil, err
	}
	return inv, userData, nil
}

// CaptureRequest is capture()'s payload (spec §4.4).
type CaptureRequest struct {
	InvoiceHash   hashid.Hash     `json:"hash"`
	UUID          string          `json:"uuid"`
	Confirmations int             `json:"confirmations"`
	UserData      json.RawMessage `json:"user_data"`
	Program       *hashid.Hash    `json:"program"`
}

// CaptureResult reports whether the funding condition was met; when it
// wasn't, Sale is the zero value and the caller should retry later rather
// than treat this as an error (spec §4.4 capture() doesn't name an error
// for "not yet funded" — decided and recorded in DESIGN.md).
type CaptureResult struct {
	Funded bool
	Sale   model.Sale
}

// Capture runs capture(): lock the invoice, poll the sandbox for funding,
// and atomically transition the invoice to Funded and mint the Sale row
// when it is (spec §4.4 capture()).
func (s *Service) Capture(ctx context.Context, merchantID string, req CaptureRequest) (CaptureResult, error) {
	var (
		exitSale exitSaleWire
		inv      model.Invoice
		existing model.Sale
		already  bool
		funded   bool
	)
	err := s.store.Tx(ctx, func(ctx context.Context, q store.Querier) error {
		locked, err := s.store.LockInvoiceForUpdate(ctx, q, req.InvoiceHash)
		if err != nil {
			return err
		}
		if locked.MerchantID != merchantID {
			return merr.New(merr.NotFound, "invoice not found")
		}
		inv = locked

		if inv.Status == model.InvoiceStatusFunded {
			sale, ok, err := s.store.GetSaleByInvoiceHash(ctx, inv.Hash)
			if err != nil {
				return err
			}
			if !ok {
				return merr.New(merr.StoreFailure, "funded invoice has no sale row")
			}
			existing, already = sale, true
			return nil
		}
		if inv.Status != model.InvoiceStatusPending {
			return merr.New(merr.Invalid, "invoice is not pending capture")
		}

		wallet, err := s.store.GetWalletByHash(ctx, inv.WalletHash)
		if err != nil {
			return err
		}
		if wallet.MerchantID != merchantID {
			return merr.New(merr.NotFound, "wallet not found")
		}
		walletPlain, err := s.custodian.Unseal(ctx, merchantID, wallet.Sealed)
		if err != nil {
			return err
		}

		prog, err := s.programs.ResolveForSale(ctx, merchantID, req.Program)
		if err != nil {
			return err
		}
		programBytes, err := s.programs.Unseal(ctx, prog)
		if err != nil {
			return err
		}

		entry := saleEntryJSON(wallet, walletPlain, inv, req)
		bitcoin, monero := s.gatewaysFor(wallet.Ticker)
		exit, err := s.engine.Execute(programBytes, entry, sandbox.ExecOptions{
			Timeout:        captureSandboxTimeout,
			BitcoinGateway: bitcoin,
			MoneroGateway:  monero,
		})
		if err != nil {
			return err
		}
		if exit.Err != nil {
			return merr.New(merr.SandboxFailure, exit.Err.Message)
		}
		if err := json.Unmarshal(exit.Ok, &exitSale); err != nil {
			return merr.Wrap(merr.SandboxFailure, "decode ExitData::Sale", err)
		}
		funded = exitSale.Funded
		if !funded {
			return nil
		}
		return s.store.UpdateInvoiceStatus(ctx, q, inv.Hash, model.InvoiceStatusFunded, time.Now())
	})
	if err != nil {
		return CaptureResult{}, err
	}
	if already {
		return CaptureResult{Funded: true, Sale: existing}, nil
	}
	if !funded {
		return CaptureResult{Funded: false}, nil
	}

	userData := exitSale.UserData
	if userData == nil {
		userData = json.RawMessage(`null`)
	}
	sealedUserData, err := s.custodian.SealFresh(ctx, merchantID, userData)
	if err != nil {
		return CaptureResult{}, err
	}
	amount, err := model.ParseAmount(inv.Ticker, exitSale.Amount)
	if err != nil {
		return CaptureResult{}, merr.Wrap(merr.Invalid, "parse sale amount", err)
	}
	sale := model.Sale{
		Hash:          hashid.SumString(req.UUID, inv.Hash.String()),
		MerchantID:    merchantID,
		WalletHash:    inv.WalletHash,
		InvoiceHash:   inv.Hash,
		Ticker:        inv.Ticker,
		Currency:      inv.Currency,
		Network:       inv.Network,
		Pubkey:        inv.Pubkey,
		Address:       inv.Address,
		Amount:        amount.Units,
		Confirmations: req.Confirmations,
		Sealed:        sealedUserData,
		CreatedAt:     time.Now(),
	}
	if err := s.store.InsertSale(ctx, sale); err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{Funded: true, Sale: sale}, nil
}

type exitSaleWire struct {
	Funded   bool            `json:"funded"`
	Amount   string          `json:"amount"`
	UserData json.RawMessage `json:"user_data,omitempty"`
}

func saleEntryJSON(wallet model.Wallet, walletPlain []byte, inv model.Invoice, req CaptureRequest) []byte {
	entry := service.EntrySale{
		Kind: "Sale",
		Wallet: service.SandboxWallet{
			Ticker:     wallet.Ticker,
			Network:    wallet.Network,
			WalletType: wallet.WalletType,
			Pubkey:     wallet.Pubkey,
			Secret:     json.RawMessage(walletPlain),
		},
		Currency:      inv.Currency,
		Amount:        model.Amount{Ticker: inv.Ticker, Units: inv.Amount}.String(),
		Address:       inv.Address,
		Confirmations: req.Confirmations,
		UserData:      req.UserData,
	}
	out, _ := json.Marshal(entry)
	return out
}

// SaleLookup is sale.lookup: read-only, merchant-scoped, unsealing
// user_data on success (spec §4.4).
func (s *Service) SaleLookup(ctx context.Context, merchantID string, hash hashid.Hash) (model.Sale, json.RawMessage, error) {
	sale, err := s.store.GetSaleByHash(ctx, hash)
	if err != nil {
		return model.Sale{}, nil, err
	}
	return s.finishSaleLookup(ctx, merchantID, sale)
}

// SaleLookupByInvoice is the invoiceHash variant of sale.lookup (spec §6:
// "{hash} or {invoiceHash}").
func (s *Service) SaleLookupByInvoice(ctx context.Context, merchantID string, invoiceHash hashid.Hash) (model.Sale, json.RawMessage, error) {
	sale, found, err := s.store.GetSaleByInvoiceHash(ctx, invoiceHash)
	if err != nil {
		return model.Sale{}, nil, err
	}
	if !found {
		return model.Sale{}, nil, merr.New(merr.NotFound, "sale not found")
	}
	return s.finishSaleLookup(ctx, merchantID, sale)
}

func (s *Service) finishSaleLookup(ctx context.Context, merchantID string, sale model.Sale) (model.Sale, json.RawMessage, error) {
	if sale.MerchantID != merchantID {
		return model.Sale{}, nil, merr.New(merr.NotFound, "sale not found")
	}
	userData, err := s.custodian.Unseal(ctx, merchantID, sale.Sealed)
	if err != nil {
		return model.Sale{}, nil, err
	}
	return sale, userData, nil
}
