package httpedge

import (
	"encoding/json"

	"github.com/moonramp/moonramp/internal/merr"
)

// request is the inbound JSON-RPC 2.0 envelope (spec §6): params.request
// carries the method's own payload, which the edge stamps with merchant_id
// before handing it to the registry.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  params          `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type params struct {
	Request json.RawMessage `json:"request"`
}

// response is the outbound envelope on success.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// errResponse is the outbound envelope on failure — spec §6: "Error body is
// {id:"-", jsonrpc:"2.0", error:<kind>}".
type errResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Kind    merr.Kind `json:"kind"`
	Message string    `json:"message"`
}

// clientSafeMessage hides the underlying cause for kinds that may carry
// store/crypto/sandbox internals (spec §7: "crypto and store failures
// collapse to ServerError ... with the underlying message in server logs
// only").
func clientSafeMessage(err error) string {
	kind := merr.KindOf(err)
	switch kind {
	case merr.StoreFailure, merr.CryptoFailure, merr.SandboxFailure:
		return "internal server error"
	default:
		return err.Error()
	}
}

var rawNullID = json.RawMessage("null")

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return rawNullID
	}
	return id
}
