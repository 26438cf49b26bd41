package service

import (
	"encoding/json"

	"github.com/moonramp/moonramp/internal/model"
)

// SandboxWallet is the plaintext wallet view a program receives/returns
// through EntryData::Invoice/ExitData::Invoice (spec §4.4): enough of the
// wallet row's secret and metadata for the program to derive a receive
// address without touching the store directly.
type SandboxWallet struct {
	Ticker          model.Ticker    `json:"ticker"`
	Network         string          `json:"network"`
	WalletType      model.WalletType `json:"wallet_type"`
	Pubkey          string          `json:"pubkey"`
	DerivationIndex uint32          `json:"derivation_index"`
	Secret          json.RawMessage `json:"secret"`
}

// EntryInvoice is EntryData::Invoice (spec §4.4 invoice() step 5).
type EntryInvoice struct {
	Kind     string          `json:"kind"`
	Wallet   SandboxWallet   `json:"wallet"`
	Currency string          `json:"currency"`
	Amount   string          `json:"amount"`
	UserData json.RawMessage `json:"user_data,omitempty"`
}

// ExitInvoice is ExitData::Invoice (spec §4.4 invoice() step 6).
type ExitInvoice struct {
	Wallet   SandboxWallet   `json:"wallet"`
	Pubkey   string          `json:"pubkey"`
	Address  string          `json:"address"`
	URI      string          `json:"uri"`
	UserData json.RawMessage `json:"user_data,omitempty"`
}

// EntrySale is EntryData::Sale (spec §4.4 capture() step 4).
type EntrySale struct {
	Kind          string          `json:"kind"`
	Wallet        SandboxWallet   `json:"wallet"`
	Currency      string          `json:"currency"`
	Amount        string          `json:"amount"`
	Address       string          `json:"address"`
	Confirmations int             `json:"confirmations"`
	UserData      json.RawMessage `json:"user_data,omitempty"`
}

// ExitSale is ExitData::Sale (spec §4.4 capture() step 4).
type ExitSale struct {
	Funded   bool            `json:"funded"`
	Amount   string          `json:"amount"`
	UserData json.RawMessage `json:"user_data,omitempty"`
}
