package sale

import (
	"context"
	"encoding/json"

	"github.com/moonramp/moonramp/internal/gateway"
	"github.com/moonramp/moonramp/internal/sandbox"
)

// gatewayRequest/gatewayResponse are the wire shapes a sandboxed program
// sends through bitcoin_gateway/monero_gateway: a generic JSON-RPC
// method+params passthrough (spec §4.2's host ABI row for those two
// imports: "deserialize a request, perform it via C6").
type gatewayRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

type gatewayResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// bitcoinGatewayCaller adapts a gateway.BitcoinGateway (used for both BTC
// and BCH, per SPEC_FULL §4.1–4.5's btcsuite/rpcclient concretization)
// into the sandbox.GatewayCaller the host ABI invokes.
func bitcoinGatewayCaller(gw *gateway.BitcoinGateway) sandbox.GatewayCaller {
	return func(requestJSON []byte) ([]byte, error) {
		var req gatewayRequest
		if err := json.Unmarshal(requestJSON, &req); err != nil {
			return marshalGatewayError(err)
		}
		result, err := gw.Call(req.Method, req.Params...)
		if err != nil {
			return marshalGatewayError(err)
		}
		return json.Marshal(gatewayResponse{Result: result})
	}
}

// moneroGatewayCaller adapts a gateway.MoneroGateway into the sandbox's
// GatewayCaller for monero_gateway.
func moneroGatewayCaller(gw *gateway.MoneroGateway) sandbox.GatewayCaller {
	return func(requestJSON []byte) ([]byte, error) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params,omitempty"`
		}
		if err := json.Unmarshal(requestJSON, &req); err != nil {
			return marshalGatewayError(err)
		}
		result, err := gw.Call(context.Background(), req.Method, req.Params)
		if err != nil {
			return marshalGatewayError(err)
		}
		return json.Marshal(gatewayResponse{Result: result})
	}
}

func marshalGatewayError(err error) ([]byte, error) {
	return json.Marshal(gatewayResponse{Error: err.Error()})
}
