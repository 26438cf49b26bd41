package main

import (
	"encoding/json"

	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/model"
)

// The DTOs in this file mirror the model rows the services return, minus
// the envelope-encryption footer (model.Sealed) — ciphertext, nonce, and
// the wrapping EK id never belong in a client response.

type programDTO struct {
	Hash        hashid.Hash `json:"hash"`
	MerchantID  string      `json:"merchant_id"`
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	URL         string      `json:"url,omitempty"`
	Description string      `json:"description,omitempty"`
	Private     bool        `json:"private"`
	Revision    int         `json:"revision"`
}

func toProgramDTO(p model.Program) programDTO {
	return programDTO{
		Hash:        p.Hash,
		MerchantID:  p.MerchantID,
		Name:        p.Name,
		Version:     p.Version,
		URL:         p.URL,
		Description: p.Description,
		Private:     p.Private,
		Revision:    p.Revision,
	}
}

type walletDTO struct {
	Hash       hashid.Hash `json:"hash"`
	MerchantID string      `json:"merchant_id"`
	Ticker     string      `json:"ticker"`
	Network    string      `json:"network"`
	WalletType string      `json:"wallet_type"`
	Pubkey     string      `json:"pubkey"`
}

func toWalletDTO(w model.Wallet) walletDTO {
	return walletDTO{
		Hash:       w.Hash,
		MerchantID: w.MerchantID,
		Ticker:     string(w.Ticker),
		Network:    w.Network,
		WalletType: string(w.WalletType),
		Pubkey:     w.Pubkey,
	}
}

type invoiceDTO struct {
	Hash       hashid.Hash     `json:"hash"`
	MerchantID string          `json:"merchant_id"`
	WalletHash hashid.Hash     `json:"wallet_hash"`
	Ticker     string          `json:"ticker"`
	Currency   string          `json:"currency"`
	Network    string          `json:"network"`
	Status     string          `json:"status"`
	Address    string          `json:"address"`
	Amount     int64           `json:"amount"`
	URI        string          `json:"uri"`
	UserData   json.RawMessage `json:"user_data,omitempty"`
}

func toInvoiceDTO(inv model.Invoice, userData json.RawMessage) invoiceDTO {
	return invoiceDTO{
		Hash:       inv.Hash,
		MerchantID: inv.MerchantID,
		WalletHash: inv.WalletHash,
		Ticker:     string(inv.Ticker),
		Currency:   inv.Currency,
		Network:    inv.Network,
		Status:     string(inv.Status),
		Address:    inv.Address,
		Amount:     inv.Amount,
		URI:        inv.URI,
		UserData:   userData,
	}
}

type saleDTO struct {
	Hash          hashid.Hash     `json:"hash"`
	MerchantID    string          `json:"merchant_id"`
	WalletHash    hashid.Hash     `json:"wallet_hash"`
	InvoiceHash   hashid.Hash     `json:"invoice_hash"`
	Ticker        string          `json:"ticker"`
	Currency      string          `json:"currency"`
	Network       string          `json:"network"`
	Address       string          `json:"address"`
	Amount        int64           `json:"amount"`
	Confirmations int             `json:"confirmations"`
	UserData      json.RawMessage `json:"user_data,omitempty"`
}

func toSaleDTO(s model.Sale, userData json.RawMessage) saleDTO {
	return saleDTO{
		Hash:          s.Hash,
		MerchantID:    s.MerchantID,
		WalletHash:    s.WalletHash,
		InvoiceHash:   s.InvoiceHash,
		Ticker:        string(s.Ticker),
		Currency:      s.Currency,
		Network:       s.Network,
		Address:       s.Address,
		Amount:        s.Amount,
		Confirmations: s.Confirmations,
		UserData:      userData,
	}
}

type captureResultDTO struct {
	Funded bool     `json:"funded"`
	Sale   *saleDTO `json:"sale,omitempty"`
}
