// Command moonrampd is the MoonRamp payment gateway node: it boots the
// custodian, the three domain services, the RPC fabric, and one JSON-RPC
// HTTP edge per service (spec §4, §6).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/moonramp/moonramp/internal/aead"
	"github.com/moonramp/moonramp/internal/authtoken"
	"github.com/moonramp/moonramp/internal/config"
	"github.com/moonramp/moonramp/internal/custody"
	"github.com/moonramp/moonramp/internal/gateway"
	"github.com/moonramp/moonramp/internal/health"
	"github.com/moonramp/moonramp/internal/httpedge"
	"github.com/moonramp/moonramp/internal/metrics"
	"github.com/moonramp/moonramp/internal/ratelimit"
	"github.com/moonramp/moonramp/internal/rpcfabric"
	"github.com/moonramp/moonramp/internal/sandbox"
	"github.com/moonramp/moonramp/internal/service"
	"github.com/moonramp/moonramp/internal/service/program"
	"github.com/moonramp/moonramp/internal/service/sale"
	"github.com/moonramp/moonramp/internal/service/wallet"
	"github.com/moonramp/moonramp/internal/store"
)

const kekAlgorithm = aead.AES256GCMSIV

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log.Info().Str("node", cfg.NodeID).Str("network", string(cfg.Network)).Msg("starting moonrampd")

	st, err := store.New(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	mkek, err := custody.NewMasterKEK(cfg.MasterKeyEncryptionKey, custody.DeriveHKDF, kekAlgorithm)
	if err != nil {
		log.Fatal().Err(err).Msg("derive master kek")
	}
	kek, err := custody.Boot(ctx, mkek, st, kekAlgorithm)
	if err != nil {
		log.Fatal().Err(err).Msg("boot kek")
	}

	custodian := service.NewCustodian(kek, st, kekAlgorithm)
	engine := sandbox.NewEngine()

	btcGateway, err := gateway.NewBitcoinGateway(gateway.BitcoinConfig{
		Host:         cfg.Bitcoin.Host,
		User:         cfg.Bitcoin.User,
		Pass:         cfg.Bitcoin.Pass,
		DisableTLS:   true,
		HTTPPostMode: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("dial bitcoin gateway")
	}
	defer btcGateway.Close()

	var bchGateway *gateway.BitcoinGateway
	if cfg.BCH.Host != "" {
		bchGateway, err = gateway.NewBitcoinGateway(gateway.BitcoinConfig{
			Host:         cfg.BCH.Host,
			User:         cfg.BCH.User,
			Pass:         cfg.BCH.Pass,
			DisableTLS:   true,
			HTTPPostMode: true,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("dial bch gateway")
		}
		defer bchGateway.Close()
	}

	var xmrGateway *gateway.MoneroGateway
	if cfg.Monero.Addr != "" {
		xmrGateway = gateway.NewMoneroGateway(gateway.MoneroConfig{Addr: cfg.Monero.Addr})
	}

	programs := program.New(st, custodian, engine)
	wallets := wallet.New(st, custodian)
	sales := sale.New(st, custodian, engine, programs, btcGateway, bchGateway, xmrGateway)

	registry := rpcfabric.NewRegistry()
	registerHandlers(registry, programs, wallets, sales)

	housekeeping := rpcfabric.NewHousekeeping(registry, metrics.FabricSink)
	housekeeping.Start()
	defer housekeeping.Stop()

	reaper := sale.NewReaper(st, func(err error) {
		log.Error().Err(err).Msg("sale reaper")
	})
	reaper.Start()
	defer reaper.Stop()

	verifier := authtoken.NewVerifier(st)

	checker := health.NewChecker(cfg.NodeID)
	checker.Register("store", health.StoreCheck(st.Ping))
	checker.Register("bitcoin", health.GatewayCheck(func() (uint64, error) {
		height, err := btcGateway.BlockCount()
		return uint64(height), err
	}))
	if bchGateway != nil {
		checker.Register("bch", health.GatewayCheck(func() (uint64, error) {
			height, err := bchGateway.BlockCount()
			return uint64(height), err
		}))
	}
	if xmrGateway != nil {
		checker.Register("monero", health.GatewayCheck(xmrGateway.BlockCount))
	}

	tokenLimiter := ratelimit.NewKeyedLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	ipLimiter := ratelimit.NewKeyedLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)

	servers := []*http.Server{
		edgeServer(cfg.ProgramHTTPAddr, "program", registry, verifier, httpedge.ProgramMethods(), checker, tokenLimiter, ipLimiter),
		edgeServer(cfg.WalletHTTPAddr, "wallet", registry, verifier, httpedge.WalletMethods(), checker, tokenLimiter, ipLimiter),
		edgeServer(cfg.SaleHTTPAddr, "sale", registry, verifier, httpedge.SaleMethods(), checker, tokenLimiter, ipLimiter),
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Str("addr", srv.Addr).Msg("http server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("http server shutdown error")
		}
	}

	cancel()
	log.Info().Msg("moonrampd stopped")
}

// edgeServer wraps an httpedge.Server's router with rate limiting and
// mounts the node's health and metrics endpoints alongside it, so every
// listening port answers liveness/readiness probes and scrapes.
func edgeServer(addr, name string, registry *rpcfabric.Registry, verifier *authtoken.Verifier, methods map[string]httpedge.MethodSpec, checker *health.Checker, tokenLimiter, ipLimiter *ratelimit.KeyedLimiter) *http.Server {
	edge := httpedge.New(name, registry, verifier, methods)

	r := chi.NewRouter()
	r.Get("/healthz", checker.LivenessHandler())
	r.Get("/readyz", checker.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.With(ratelimit.IPMiddleware(ipLimiter), ratelimit.TokenMiddleware(tokenLimiter)).Mount("/", edge.Router())

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
