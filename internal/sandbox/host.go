package sandbox

import (
	"encoding/json"
	"sync/atomic"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// registerHost builds the lunar_* host ABI import object a module links
// against (spec §4.2 "Host ABI"). Functions close over hctx, which is
// populated with the live instance's memory/allocate export once
// instantiation completes — the closures only dereference those fields
// when actually invoked, which is always after that point.
func registerHost(store *wasmer.Store, hctx *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32))
	i32i32 := wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32))
	noResult := wasmer.NewValueTypes()

	lunarPtrLen := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr := args[0].I32()
			length, ok := hctx.sideTable.take(ptr)
			if !ok {
				return nil, fmtError("lunar_ptr_len: unknown pointer")
			}
			return []wasmer.Value{wasmer.NewI32(length)}, nil
		},
	)

	lunarExit := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32i32, noResult),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			raw, err := hctx.readMem(ptr, length)
			if err != nil {
				return nil, err
			}
			var rec ExitRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmtError("lunar_exit: invalid exit record JSON")
			}
			hctx.exitMu.Lock()
			hctx.exit = &rec
			hctx.exitSet = true
			hctx.exitMu.Unlock()
			return []wasmer.Value{}, nil
		},
	)

	bitcoinGateway := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return callGateway(hctx, hctx.bitcoinGateway, args)
		},
	)

	moneroGateway := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return callGateway(hctx, hctx.moneroGateway, args)
		},
	)

	moonrampConsumeFuel := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			units := int64(args[0].I32())
			remaining := atomic.AddInt64(&hctx.fuel, -units)
			if remaining <= 0 {
				return nil, fmtError("fuel exhausted")
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"lunar_ptr_len":         lunarPtrLen,
		"lunar_exit":            lunarExit,
		"bitcoin_gateway":       bitcoinGateway,
		"monero_gateway":        moneroGateway,
		"moonramp_consume_fuel": moonrampConsumeFuel,
	})

	return imports
}

// callGateway is shared by bitcoin_gateway/monero_gateway: read the
// request bytes from guest memory, invoke the bound GatewayCaller,
// allocate a response buffer in the guest, and return its pointer (spec
// §4.2's bitcoin_gateway/monero_gateway semantics).
func callGateway(hctx *hostCtx, call GatewayCaller, args []wasmer.Value) ([]wasmer.Value, error) {
	if call == nil {
		return nil, fmtError("gateway not configured for this execution")
	}
	ptr, length := args[0].I32(), args[1].I32()
	reqBytes, err := hctx.readMem(ptr, length)
	if err != nil {
		return nil, err
	}
	respBytes, err := call(reqBytes)
	if err != nil {
		return nil, err
	}
	newPtr, err := hctx.allocateGuestBuffer(respBytes)
	if err != nil {
		return nil, err
	}
	return []wasmer.Value{wasmer.NewI32(newPtr)}, nil
}

type sandboxError string

func (e sandboxError) Error() string { return string(e) }

func fmtError(msg string) error { return sandboxError(msg) }
