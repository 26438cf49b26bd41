// Package httpedge implements the JSON-RPC 2.0 HTTP surface in front of the
// RPC fabric (spec §4.8, C14): one server per service, each exposing a
// single POST endpoint that authenticates the caller, stamps merchant_id
// from the token, dispatches through the fabric, and maps the typed error
// kind onto an HTTP status.
package httpedge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/moonramp/moonramp/internal/authtoken"
	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/metrics"
)

// MethodSpec names the scope and timeout a registered method is dispatched
// under. A zero Scope means the method requires a valid token but no
// particular scope (spec §6's program.version row: "Resource/Scope: —").
type MethodSpec struct {
	Scope   authtoken.Scope
	Timeout time.Duration
}

// Dispatcher is the subset of *rpcfabric.Registry the edge depends on.
type Dispatcher interface {
	Dispatch(name string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
}

// Authenticator is the subset of *authtoken.Verifier the edge depends on.
type Authenticator interface {
	Authenticate(ctx context.Context, presented string) (authtoken.Principal, error)
}

// Server is one service's JSON-RPC edge.
type Server struct {
	name     string
	dispatch Dispatcher
	auth     Authenticator
	methods  map[string]MethodSpec
}

// New builds a Server that dispatches through dispatch, authenticates via
// auth, and accepts exactly the methods named in methods. name is used only
// for logging.
func New(name string, dispatch Dispatcher, auth Authenticator, methods map[string]MethodSpec) *Server {
	return &Server{name: name, dispatch: dispatch, auth: auth, methods: methods}
}

// Router builds the chi router this server listens on, following the
// teacher's request-id/real-ip/logger/recoverer middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handleRPC)
	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, nil, merr.Wrap(merr.Invalid, "read request body", err))
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, merr.Wrap(merr.Invalid, "malformed JSON-RPC envelope", err))
		return
	}

	spec, known := s.methods[req.Method]
	if !known {
		s.writeError(w, req.ID, merr.New(merr.NotFound, "unknown method"))
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		s.writeError(w, req.ID, merr.New(merr.Unauthorized, "missing bearer token"))
		return
	}
	principal, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		s.writeError(w, req.ID, err)
		return
	}
	if spec.Scope != "" && !principal.Has(spec.Scope) {
		s.writeError(w, req.ID, merr.New(merr.Unauthorized, "token lacks required scope"))
		return
	}

	injected, err := carriesMerchantID(req.Params.Request)
	if err != nil {
		s.writeError(w, req.ID, merr.Wrap(merr.Invalid, "decode request payload", err))
		return
	}
	if injected {
		s.writeError(w, req.ID, merr.New(merr.Unauthorized, "clients must not supply merchant_id"))
		return
	}

	stamped, err := stampMerchantID(req.Params.Request, principal.MerchantID)
	if err != nil {
		s.writeError(w, req.ID, merr.Wrap(merr.Invalid, "stamp merchant_id", err))
		return
	}

	dispatchStart := time.Now()
	result, err := s.dispatch.Dispatch(req.Method, stamped, spec.Timeout)
	metrics.FabricMethodDuration.WithLabelValues(req.Method).Observe(time.Since(dispatchStart).Seconds())
	if err != nil {
		s.writeError(w, req.ID, err)
		return
	}

	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: idOrNull(id), Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, err error) {
	kind := merr.KindOf(err)
	log.Error().Str("service", s.name).Str("kind", string(kind)).Err(err).Msg("rpc edge error")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(errResponse{
		JSONRPC: "2.0",
		ID:      "-",
		Error:   errorBody{Kind: kind, Message: clientSafeMessage(err)},
	})
}

// statusFor maps a merr.Kind to the HTTP status table in spec §6: 401
// unauthorized, 404 not found, 504 gateway-timeout, 500 everything else.
func statusFor(kind merr.Kind) int {
	switch kind {
	case merr.Unauthorized:
		return http.StatusUnauthorized
	case merr.NotFound:
		return http.StatusNotFound
	case merr.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(h, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

func carriesMerchantID(payload json.RawMessage) (bool, error) {
	if len(payload) == 0 {
		return false, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false, err
	}
	_, ok := fields["merchant_id"]
	return ok, nil
}

func stampMerchantID(payload json.RawMessage, merchantID string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, err
		}
	}
	stampedID, err := json.Marshal(merchantID)
	if err != nil {
		return nil, err
	}
	fields["merchant_id"] = stampedID
	return json.Marshal(fields)
}
