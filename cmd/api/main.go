package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/config"
	"github.com/ariefcatur/atee-topup/internal/httpx"
	"github.com/ariefcatur/atee-topup/internal/installments"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/orders"
	"github.com/ariefcatur/atee-topup/internal/payment"
	"github.com/ariefcatur/atee-topup/internal/platform"
	"github.com/ariefcatur/atee-topup/internal/verify"
)

// collections read by the storefront on start
var prewarm = []string{
	model.CollectionGames,
	model.CollectionPackages,
	model.CollectionPromos,
	model.CollectionCoupons,
	model.CollectionAPIConfigs,
	model.CollectionSettings,
	model.CollectionForms,
	model.CollectionOrders,
	model.CollectionInstallments,
}

func main() {
	configPath := flag.String("config", "config", "directory holding config.yaml")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	platform.SetupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, closeLocal, err := platform.OpenLocal(ctx, cfg.Local)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Local.Driver).Msg("Failed to open local cache")
	}
	defer closeLocal()

	rem, closeRemote, err := platform.OpenRemote(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Remote.Driver).Msg("Failed to open remote store")
	}
	defer closeRemote()

	store := platform.NewSyncStore(local, rem, cfg.Outbox)
	if err := store.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start outbox")
	}
	defer func() { _ = store.Close() }()

	for _, c := range prewarm {
		docs := store.FetchOnce(ctx, c)
		log.Debug().Str("collection", c).Int("docs", len(docs)).Msg("prewarmed")
	}

	slips := payment.NewSimulator(cfg.Slip.Delay, cfg.Slip.SuccessRate)
	h := &httpx.Handler{
		Store:  store,
		Orders: orders.NewLedger(store, slips),
		Plans:  installments.NewTracker(store, time.Now),
		Players: verify.NewClient(store, verify.Config{
			Timeout: cfg.Verify.Timeout,
			Breaker: verify.BreakerSettings{
				MinRequests:  cfg.Verify.BreakerMinRequests,
				FailureRatio: cfg.Verify.BreakerFailureRatio,
				OpenTimeout:  cfg.Verify.BreakerOpenTimeout,
			},
		}),
		Timeout: cfg.HTTP.RequestTimeout,
	}
	router := httpx.NewRouter()
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("remote", cfg.Remote.Driver).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if n := store.Flush(shutdownCtx); n > 0 {
		log.Info().Int("confirmed", n).Msg("flushed pending writes")
	}
	cancel()
}
