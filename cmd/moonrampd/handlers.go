package main

import (
	"context"
	"encoding/json"

	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/rpcfabric"
	"github.com/moonramp/moonramp/internal/service/program"
	"github.com/moonramp/moonramp/internal/service/sale"
	"github.com/moonramp/moonramp/internal/service/wallet"
)

// merchantEnvelope pulls the merchant_id httpedge stamped into the
// payload; everything else is decoded by the caller into the
// method-specific request type.
type merchantEnvelope struct {
	MerchantID string `json:"merchant_id"`
}

// rpcFunc is what each method's business logic boils down to once the
// envelope's merchant_id has been split out.
type rpcFunc func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error)

// wrap turns an rpcFunc into an rpcfabric.Handler: decode the envelope,
// call fn, marshal the result.
func wrap(fn rpcFunc) rpcfabric.Handler {
	return func(t rpcfabric.Tunnel) (json.RawMessage, error) {
		var env merchantEnvelope
		if err := json.Unmarshal(t.JSON, &env); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode merchant_id", err)
		}
		result, err := fn(context.Background(), env.MerchantID, t.JSON)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, merr.Wrap(merr.Invalid, "marshal response", err)
		}
		return out, nil
	}
}

// registerHandlers binds every RPC method name (spec §6's method table) to
// the fabric topic of the same name. Each registered name is also the
// topic httpedge.Server dispatches to (internal/httpedge's design note).
func registerHandlers(registry *rpcfabric.Registry, programs *program.Service, wallets *wallet.Service, sales *sale.Service) {
	registry.Register("program.version", wrap(func(_ context.Context, _ string, _ json.RawMessage) (interface{}, error) {
		return struct {
			Version string `json:"version"`
		}{Version: program.Version}, nil
	}))

	registry.Register("program.create", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req program.CreateRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode program.create request", err)
		}
		prog, err := programs.Create(ctx, merchantID, req)
		if err != nil {
			return nil, err
		}
		return toProgramDTO(prog), nil
	}))

	registry.Register("program.update", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req program.UpdateRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode program.update request", err)
		}
		prog, err := programs.Update(ctx, merchantID, req)
		if err != nil {
			return nil, err
		}
		return toProgramDTO(prog), nil
	}))

	registry.Register("program.lookup", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req struct {
			Hash *hashid.Hash `json:"hash"`
			Name *string      `json:"name"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode program.lookup request", err)
		}
		prog, err := programs.Lookup(ctx, merchantID, req.Hash, req.Name)
		if err != nil {
			return nil, err
		}
		return toProgramDTO(prog), nil
	}))

	registry.Register("wallet.create", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req wallet.CreateRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode wallet.create request", err)
		}
		w, err := wallets.Create(ctx, merchantID, req)
		if err != nil {
			return nil, err
		}
		return toWalletDTO(w), nil
	}))

	registry.Register("wallet.lookup", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req struct {
			Hash   *hashid.Hash `json:"hash"`
			Pubkey *string      `json:"pubkey"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode wallet.lookup request", err)
		}
		w, err := wallets.Lookup(ctx, merchantID, req.Hash, req.Pubkey)
		if err != nil {
			return nil, err
		}
		return toWalletDTO(w), nil
	}))

	registry.Register("sale.invoice", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req sale.InvoiceRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode sale.invoice request", err)
		}
		inv, err := sales.Invoice(ctx, merchantID, req)
		if err != nil {
			return nil, err
		}
		return toInvoiceDTO(inv, req.UserData), nil
	}))

	registry.Register("sale.invoiceLookup", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req struct {
			Hash hashid.Hash `json:"hash"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode sale.invoiceLookup request", err)
		}
		inv, userData, err := sales.InvoiceLookup(ctx, merchantID, req.Hash)
		if err != nil {
			return nil, err
		}
		return toInvoiceDTO(inv, userData), nil
	}))

	registry.Register("sale.capture", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req sale.CaptureRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode sale.capture request", err)
		}
		result, err := sales.Capture(ctx, merchantID, req)
		if err != nil {
			return nil, err
		}
		out := captureResultDTO{Funded: result.Funded}
		if result.Funded {
			dto := toSaleDTO(result.Sale, req.UserData)
			out.Sale = &dto
		}
		return out, nil
	}))

	registry.Register("sale.lookup", wrap(func(ctx context.Context, merchantID string, raw json.RawMessage) (interface{}, error) {
		var req struct {
			Hash        *hashid.Hash `json:"hash"`
			InvoiceHash *hashid.Hash `json:"invoiceHash"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, merr.Wrap(merr.Invalid, "decode sale.lookup request", err)
		}
		switch {
		case req.Hash != nil:
			s, userData, err := sales.SaleLookup(ctx, merchantID, *req.Hash)
			if err != nil {
				return nil, err
			}
			return toSaleDTO(s, userData), nil
		case req.InvoiceHash != nil:
			s, userData, err := sales.SaleLookupByInvoice(ctx, merchantID, *req.InvoiceHash)
			if err != nil {
				return nil, err
			}
			return toSaleDTO(s, userData), nil
		default:
			return nil, merr.New(merr.Invalid, "sale.lookup requires hash or invoiceHash")
		}
	}))
}
