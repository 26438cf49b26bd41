package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/monero-ecosystem/go-monero-rpc-client/daemon"

	"github.com/moonramp/moonramp/internal/merr"
)

// MoneroConfig configures the monerod JSON-RPC gateway.
type MoneroConfig struct {
	Addr string // e.g. "http://127.0.0.1:18081"
}

// MoneroGateway performs generic JSON-RPC passthrough to monerod's
// /json_rpc endpoint (mirroring rpcclient.RawRequest's role for Bitcoin),
// plus typed daemon calls for boot-time health checks.
type MoneroGateway struct {
	addr   string
	http   *http.Client
	daemon daemon.IDaemonRpcClient
}

// NewMoneroGateway constructs a gateway against monerod at cfg.Addr.
func NewMoneroGateway(cfg MoneroConfig) *MoneroGateway {
	return &MoneroGateway{
		addr:   cfg.Addr,
		http:   &http.Client{},
		daemon: daemon.NewClient(cfg.Addr),
	}
}

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call performs a generic JSON-RPC passthrough against monerod's
// /json_rpc endpoint for whatever method/params a sandboxed program
// supplies (spec §4/C6).
func (g *MoneroGateway) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	reqBody, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params})
	if err != nil {
		return nil, merr.Wrap(merr.Invalid, "marshal monero RPC request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.addr+"/json_rpc", bytes.NewReader(reqBody))
	if err != nil {
		return nil, merr.Wrap(merr.SandboxFailure, "build monero RPC request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, merr.Wrap(merr.SandboxFailure, "monero gateway call "+method, err)
	}
	defer resp.Body.Close()

	var out jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, merr.Wrap(merr.SandboxFailure, "decode monero RPC response", err)
	}
	if out.Error != nil {
		return nil, merr.New(merr.SandboxFailure, "monero RPC error: "+out.Error.Message)
	}
	return out.Result, nil
}

// Info reports monerod's chain state for boot-time health checks.
func (g *MoneroGateway) Info() (*daemon.GetInfoResult, error) {
	info, err := g.daemon.GetInfo()
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "monero get_info", err)
	}
	return &info, nil
}

// BlockCount reports the current chain height, used for confirmation
// counting.
func (g *MoneroGateway) BlockCount() (uint64, error) {
	count, err := g.daemon.GetBlockCount()
	if err != nil {
		return 0, merr.Wrap(merr.StoreFailure, "monero get_block_count", err)
	}
	return count.Count, nil
}
