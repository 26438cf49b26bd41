package httpedge

import (
	"time"

	"github.com/moonramp/moonramp/internal/authtoken"
)

// Per-RPC timeouts (spec §5): 30s for program/wallet, 60s for sale.
const (
	programWalletTimeout = 30 * time.Second
	saleTimeout          = 60 * time.Second
)

// ProgramMethods is the method/scope/timeout table for the program edge
// (spec §6).
func ProgramMethods() map[string]MethodSpec {
	return map[string]MethodSpec{
		"program.version": {Timeout: programWalletTimeout},
		"program.create":  {Scope: authtoken.ProgramWrite, Timeout: programWalletTimeout},
		"program.update":  {Scope: authtoken.ProgramWrite, Timeout: programWalletTimeout},
		"program.lookup":  {Scope: authtoken.ProgramRead, Timeout: programWalletTimeout},
	}
}

// WalletMethods is the method/scope/timeout table for the wallet edge.
func WalletMethods() map[string]MethodSpec {
	return map[string]MethodSpec{
		"wallet.create": {Scope: authtoken.WalletWrite, Timeout: programWalletTimeout},
		"wallet.lookup": {Scope: authtoken.WalletRead, Timeout: programWalletTimeout},
	}
}

// SaleMethods is the method/scope/timeout table for the sale edge.
func SaleMethods() map[string]MethodSpec {
	return map[string]MethodSpec{
		"sale.invoice":       {Scope: authtoken.SaleWrite, Timeout: saleTimeout},
		"sale.invoiceLookup": {Scope: authtoken.SaleRead, Timeout: saleTimeout},
		"sale.capture":       {Scope: authtoken.SaleWrite, Timeout: saleTimeout},
		"sale.lookup":        {Scope: authtoken.SaleRead, Timeout: saleTimeout},
	}
}
