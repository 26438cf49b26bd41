// Package sandbox implements the WASM execution engine merchant-supplied
// "programs" run inside (spec §4.2/C5): compile/serialize/deserialize on
// wasmer-go, fuel-metered and wall-clock-timeout-bounded execution, and the
// lunar_* host ABI that is the sandbox's only egress path.
package sandbox

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/metrics"
)

// Engine owns the wasmer engine instance modules are compiled/deserialized
// against. One Engine per process; module bytes serialized under one
// Engine version are only valid for deserialization against a
// compatible one.
type Engine struct {
	engine *wasmer.Engine
}

// NewEngine constructs a fresh sandbox engine.
func NewEngine() *Engine {
	return &Engine{engine: wasmer.NewEngine()}
}

// Compile accepts raw WASM bytes and produces an opaque serialized module
// suitable for later deserialization on this engine version (spec §4.2:
// "Compile path"). The serialized bytes are what gets sealed as a
// Program's blob.
func (e *Engine) Compile(raw []byte) ([]byte, error) {
	store := wasmer.NewStore(e.engine)
	mod, err := wasmer.NewModule(store, raw)
	if err != nil {
		return nil, merr.Wrap(merr.SandboxFailure, "compile WASM module", err)
	}
	serialized, err := mod.Serialize()
	if err != nil {
		return nil, merr.Wrap(merr.SandboxFailure, "serialize compiled module", err)
	}
	return serialized, nil
}

// GatewayCaller performs a blockchain gateway egress call on behalf of a
// running program; internal/gateway's adapters implement this.
type GatewayCaller func(requestJSON []byte) (responseJSON []byte, err error)

// ExitRecord is the Result<ExitData, LunarError> a program returns through
// lunar_exit (spec §4.2).
type ExitRecord struct {
	Ok  json.RawMessage `json:"Ok,omitempty"`
	Err *LunarError     `json:"Err,omitempty"`
}

// LunarError is the error shape a program may return in place of exit data.
type LunarError struct {
	Message string `json:"message"`
}

// FuelBudget is the default per-execution fuel budget (spec §4.2: "on the
// order of 10^7 units").
const FuelBudget = 10_000_000

// sideTableEntry records the length of a host->guest buffer transfer so
// the guest can later reclaim it via lunar_ptr_len.
type sideTable struct {
	mu      sync.Mutex
	lengths map[int32]int32
}

func newSideTable() *sideTable {
	return &sideTable{lengths: make(map[int32]int32)}
}

func (t *sideTable) put(ptr, length int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lengths[ptr] = length
}

// take returns the recorded length for ptr and deletes the entry (spec
// §4.2: lunar_ptr_len "deletes the entry from the side table").
func (t *sideTable) take(ptr int32) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.lengths[ptr]
	if ok {
		delete(t.lengths, ptr)
	}
	return l, ok
}

// hostCtx is the shared state every host import closure reads/writes.
// mem and allocate are nil until instantiation completes; the closures
// only dereference them once lunar_main is actually invoked.
type hostCtx struct {
	mem       *wasmer.Memory
	allocate  func(...interface{}) (interface{}, error)
	sideTable *sideTable
	fuel      int64

	exitMu  sync.Mutex
	exit    *ExitRecord
	exitSet bool

	bitcoinGateway GatewayCaller
	moneroGateway  GatewayCaller
}

func (h *hostCtx) readMem(ptr, length int32) ([]byte, error) {
	data := h.mem.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil, merr.New(merr.SandboxFailure, "out-of-range guest memory read")
	}
	out := make([]byte, length)
	copy(out, data[ptr:ptr+length])
	return out, nil
}

func (h *hostCtx) writeMem(ptr int32, buf []byte) error {
	data := h.mem.Data()
	if ptr < 0 || int(ptr)+len(buf) > len(data) {
		return merr.New(merr.SandboxFailure, "out-of-range guest memory write")
	}
	copy(data[ptr:], buf)
	return nil
}

// allocateGuestBuffer reserves len(buf) bytes of instance memory via the
// guest's lunar_allocate export, writes buf into it, and records its
// length in the side table (spec §4.2 "Memory discipline").
func (h *hostCtx) allocateGuestBuffer(buf []byte) (int32, error) {
	res, err := h.allocate(int32(len(buf)))
	if err != nil {
		return 0, merr.Wrap(merr.SandboxFailure, "lunar_allocate", err)
	}
	ptr, ok := asI32(res)
	if !ok {
		return 0, merr.New(merr.SandboxFailure, "lunar_allocate returned unexpected type")
	}
	if err := h.writeMem(ptr, buf); err != nil {
		return 0, err
	}
	h.sideTable.put(ptr, int32(len(buf)))
	return ptr, nil
}

func asI32(v interface{}) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case []wasmer.Value:
		if len(n) != 1 {
			return 0, false
		}
		return n[0].I32(), true
	default:
		return 0, false
	}
}

// ExecOptions configures one Execute call.
type ExecOptions struct {
	Timeout        time.Duration
	FuelBudget     int64
	BitcoinGateway GatewayCaller
	MoneroGateway  GatewayCaller
}

// Execute deserializes moduleBytes, instantiates it, invokes
// lunar_main(entryData) under the given timeout/fuel budget, and returns
// the program's ExitRecord (spec §4.2 "Execute path").
func (e *Engine) Execute(moduleBytes, entryData []byte, opts ExecOptions) (_ ExitRecord, err error) {
	if opts.FuelBudget <= 0 {
		opts.FuelBudget = FuelBudget
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	entry := entryKind(entryData)
	start := time.Now()
	var fuelConsumed int64
	defer func() {
		metrics.SandboxExecutionDuration.WithLabelValues(entry).Observe(time.Since(start).Seconds())
		metrics.SandboxFuelConsumed.WithLabelValues(entry).Observe(float64(fuelConsumed))
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.SandboxExecutionsTotal.WithLabelValues(entry, outcome).Inc()
	}()

	store := wasmer.NewStore(e.engine)
	mod, err := wasmer.DeserializeModule(store, moduleBytes)
	if err != nil {
		return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "deserialize module", err)
	}

	hctx := &hostCtx{
		sideTable:      newSideTable(),
		fuel:           opts.FuelBudget,
		bitcoinGateway: opts.BitcoinGateway,
		moneroGateway:  opts.MoneroGateway,
	}
	defer func() { fuelConsumed = opts.FuelBudget - atomic.LoadInt64(&hctx.fuel) }()
	imports := registerHost(store, hctx)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "instantiate module", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "module does not export linear memory", err)
	}
	hctx.mem = mem

	lunarMain, err := instance.Exports.GetFunction("lunar_main")
	if err != nil {
		return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "module does not export lunar_main", err)
	}
	lunarAllocate, err := instance.Exports.GetFunction("lunar_allocate")
	if err != nil {
		return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "module does not export lunar_allocate", err)
	}
	if _, err := instance.Exports.GetFunction("lunar_deallocate"); err != nil {
		return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "module does not export lunar_deallocate", err)
	}
	hctx.allocate = lunarAllocate

	entryJSON, err := json.Marshal(json.RawMessage(entryData))
	if err != nil {
		return ExitRecord{}, merr.Wrap(merr.Invalid, "marshal entry data", err)
	}
	ptr, err := hctx.allocateGuestBuffer(entryJSON)
	if err != nil {
		return ExitRecord{}, err
	}
	// The entry buffer belongs to the guest for the duration of the call;
	// it does not need a lunar_ptr_len lookup, so drop its side-table
	// registration immediately.
	hctx.sideTable.take(ptr)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, callErr := lunarMain(ptr, int32(len(entryJSON)))
		done <- result{err: callErr}
	}()

	select {
	case <-ctx.Done():
		return ExitRecord{}, merr.New(merr.Timeout, "sandbox execution exceeded wall-clock timeout")
	case r := <-done:
		if r.err != nil {
			return ExitRecord{}, merr.Wrap(merr.SandboxFailure, "lunar_main trapped", r.err)
		}
	}

	hctx.exitMu.Lock()
	defer hctx.exitMu.Unlock()
	if !hctx.exitSet {
		return ExitRecord{}, merr.New(merr.SandboxFailure, "program returned without calling lunar_exit")
	}
	return *hctx.exit, nil
}

// entryKind pulls entryData's "Kind" discriminant for metric labeling,
// falling back to "unknown" rather than failing the call over a label.
func entryKind(entryData []byte) string {
	var tagged struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(entryData, &tagged); err != nil || tagged.Kind == "" {
		return "unknown"
	}
	return tagged.Kind
}
