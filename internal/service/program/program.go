// Package program implements the Program RPC service (spec §4, C7):
// upload/update/lookup of merchant-supplied, pre-compiled WASM programs.
package program

import (
	"context"
	"time"

	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/sandbox"
	"github.com/moonramp/moonramp/internal/service"
	"github.com/moonramp/moonramp/internal/store"
)

// DefaultSaleProgramName is the well-known program invoice() falls back
// to when a request doesn't name one explicitly (spec §4.4 invoice()
// step 2).
const DefaultSaleProgramName = "moonramp-program-default-sale"

// MasterMerchantID is the tenant the default sale program is published
// under (spec §4.4: "the highest-revision program named
// moonramp-program-default-sale under the master merchant"). Every node
// provisions this merchant row at first boot (moonrampctl bootstrap).
const MasterMerchantID = "moonramp-master"

// Version is the program service's own build identifier, returned by the
// no-op program.version method (spec §6's method table).
const Version = "moonramp-program/1"

// Service implements program.create/update/lookup.
type Service struct {
	store     *store.Store
	custodian *service.Custodian
	engine    *sandbox.Engine
}

func New(st *store.Store, custodian *service.Custodian, engine *sandbox.Engine) *Service {
	return &Service{store: st, custodian: custodian, engine: engine}
}

// CreateRequest is program.create's payload (spec §6).
type CreateRequest struct {
	Name        string
	Version     string
	URL         string
	Description string
	Data        []byte
	Private     bool
}

// Create compiles and persists revision 1 of a new program (I4: revision
// is unique per (merchant_id, name) and starts the sequence at 1).
func (s *Service) Create(ctx context.Context, merchantID string, req CreateRequest) (model.Program, error) {
	existing, err := s.store.LatestRevision(ctx, merchantID, req.Name)
	if err != nil {
		return model.Program{}, err
	}
	if existing != 0 {
		return model.Program{}, merr.New(merr.Invalid, "program already exists, use program.update")
	}
	return s.compileAndStore(ctx, merchantID, req.Name, req.Version, req.URL, req.Description, req.Private, req.Data, 1)
}

// UpdateRequest is program.update's payload — as CreateRequest minus
// Private, which is carried over from the prior revision (spec §6).
type UpdateRequest struct {
	Name        string
	Version     string
	URL         string
	Description string
	Data        []byte
}

// Update compiles and persists the next revision of an existing program
// (I4: strictly increases by 1).
func (s *Service) Update(ctx context.Context, merchantID string, req UpdateRequest) (model.Program, error) {
	latest, err := s.store.GetLatestProgram(ctx, merchantID, req.Name)
	if err != nil {
		return model.Program{}, err
	}
	return s.compileAndStore(ctx, merchantID, req.Name, req.Version, req.URL, req.Description, latest.Private, req.Data, latest.Revision+1)
}

func (s *Service) compileAndStore(ctx context.Context, merchantID, name, version, url, description string, private bool, data []byte, revision int) (model.Program, error) {
	compiled, err := s.engine.Compile(data)
	if err != nil {
		return model.Program{}, err
	}
	sealed, err := s.custodian.SealFresh(ctx, merchantID, compiled)
	if err != nil {
		return model.Program{}, err
	}
	prog := model.Program{
		Hash:        hashid.Sum(data),
		MerchantID:  merchantID,
		Name:        name,
		Version:     version,
		URL:         url,
		Description: description,
		Private:     private,
		Revision:    revision,
		Sealed:      sealed,
		CreatedAt:   time.Now(),
	}
	if err := s.store.InsertProgram(ctx, prog); err != nil {
		return model.Program{}, err
	}
	return prog, nil
}

// Lookup resolves a program by hash or by (merchantID, name), rejecting
// another merchant's private program (a non-private program is visible
// to any authenticated caller — spec §9 doesn't resolve this, decided and
// recorded in DESIGN.md).
func (s *Service) Lookup(ctx context.Context, merchantID string, hash *hashid.Hash, name *string) (model.Program, error) {
	var (
		prog model.Program
		err  error
	)
	switch {
	case hash != nil:
		prog, err = s.store.GetProgramByHash(ctx, *hash)
	case name != nil:
		prog, err = s.store.GetLatestProgram(ctx, merchantID, *name)
	default:
		return model.Program{}, merr.New(merr.Invalid, "program.lookup requires hash or name")
	}
	if err != nil {
		return model.Program{}, err
	}
	if prog.MerchantID != merchantID && prog.Private {
		return model.Program{}, merr.New(merr.NotFound, "program not found")
	}
	return prog, nil
}

// ResolveForSale returns the program a sale orchestration step should run:
// the explicitly requested hash, or the merchant's default sale program
// if none is given (spec §4.4 invoice()/capture() step 2/3).
func (s *Service) ResolveForSale(ctx context.Context, merchantID string, requested *hashid.Hash) (model.Program, error) {
	if requested != nil {
		prog, err := s.store.GetProgramByHash(ctx, *requested)
		if err != nil {
			return model.Program{}, err
		}
		if prog.MerchantID != merchantID {
			return model.Program{}, merr.New(merr.Unauthorized, "program does not belong to this merchant")
		}
		return prog, nil
	}
	return s.store.GetLatestProgram(ctx, MasterMerchantID, DefaultSaleProgramName)
}

// Unseal decrypts a compiled program's blob back into wasmer-serialized
// module bytes, ready for sandbox.Execute. Callers must pass prog's own
// MerchantID (not necessarily the requesting merchant's, since the
// default sale program is owned by MasterMerchantID) — that's the
// identity the owning EK was wrapped under.
func (s *Service) Unseal(ctx context.Context, prog model.Program) ([]byte, error) {
	return s.custodian.Unseal(ctx, prog.MerchantID, prog.Sealed)
}
