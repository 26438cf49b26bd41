// Package gateway implements host-side JSON-RPC egress to the blockchain
// daemons MoonRamp observes funding against: bitcoind/bchd-compatible
// nodes via btcd/rpcclient, and monerod via an in-house JSON-RPC client
// (spec §4/C6). It is linked into the sandbox as the backing transport for
// the bitcoin_gateway/monero_gateway host imports.
package gateway

import (
	"encoding/json"

	"github.com/btcsuite/btcd/rpcclient"

	"github.com/moonramp/moonramp/internal/merr"
)

// BitcoinConfig configures a BTC/BCH RPC gateway. The same adapter serves
// both chains — a bitcoind-compatible node is reachable the same way as a
// BCH full node.
type BitcoinConfig struct {
	Host         string
	User         string
	Pass         string
	DisableTLS   bool
	HTTPPostMode bool
}

// BitcoinGateway wraps rpcclient.Client for generic passthrough plus the
// typed calls the gateway itself needs for health checks and confirmation
// counting.
type BitcoinGateway struct {
	client *rpcclient.Client
}

// NewBitcoinGateway dials a bitcoind/bchd-compatible node in HTTP POST
// (non-websocket) mode, the mode rpcclient.RawRequest requires.
func NewBitcoinGateway(cfg BitcoinConfig) (*BitcoinGateway, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "dial bitcoin RPC node", err)
	}
	return &BitcoinGateway{client: client}, nil
}

// Call performs a generic JSON-RPC passthrough for whatever method/params a
// sandboxed program supplies (spec §4/C6).
func (g *BitcoinGateway) Call(method string, params ...json.RawMessage) (json.RawMessage, error) {
	resp, err := g.client.RawRequest(method, params)
	if err != nil {
		return nil, merr.Wrap(merr.SandboxFailure, "bitcoin gateway call "+method, err)
	}
	return json.RawMessage(resp), nil
}

// BlockCount is a typed helper used by the gateway's own health checks.
func (g *BitcoinGateway) BlockCount() (int64, error) {
	count, err := g.client.GetBlockCount()
	if err != nil {
		return 0, merr.Wrap(merr.StoreFailure, "get block count", err)
	}
	return count, nil
}

// TxOutStatus reports confirmations for an outpoint, used by sale capture
// to count confirmations toward the merchant-requested threshold.
func (g *BitcoinGateway) TxOutStatus(txid string, vout uint32) (confirmations int64, found bool, err error) {
	hash, decErr := chainHashFromString(txid)
	if decErr != nil {
		return 0, false, merr.Wrap(merr.Invalid, "parse txid", decErr)
	}
	out, rpcErr := g.client.GetTxOut(hash, vout, true)
	if rpcErr != nil {
		return 0, false, merr.Wrap(merr.StoreFailure, "get tx out", rpcErr)
	}
	if out == nil {
		return 0, false, nil
	}
	return out.Confirmations, true, nil
}

// Close releases the underlying RPC client.
func (g *BitcoinGateway) Close() { g.client.Shutdown() }
