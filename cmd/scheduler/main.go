package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/gassaver/internal/config"
	"github.com/example/gassaver/internal/feemodel"
	"github.com/example/gassaver/internal/logging"
	"github.com/example/gassaver/internal/metrics"
	"github.com/example/gassaver/internal/nonce"
	"github.com/example/gassaver/internal/ratelimit"
	"github.com/example/gassaver/internal/scheduler"
	"github.com/example/gassaver/internal/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Msg("starting scheduler")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	model := feemodel.New(cfg.FeeModel.MaxHistory)
	nonces := nonce.New()
	limiter := ratelimit.New(cfg.RateLimit.Rate, cfg.RateLimit.Max)

	decisions := make(chan types.Decision, 256)
	gasEvents := make(chan types.GasEvent, 64)
	txRequests := make(chan types.TransactionRequest, 64)

	sched := scheduler.New(cfg.Scheduler, model, nonces, limiter, decisions, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsRouter(reg)}
	go func() {
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go sched.Run(ctx, gasEvents, txRequests)
	go logDecisions(ctx, logger, decisions)
	go simulateGasEvents(ctx, cfg.Scheduler, gasEvents)
	go simulateTxRequests(ctx, cfg.Scheduler, txRequests)

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown failed")
	}

	logger.Info().Msg("scheduler stopped")
}

func metricsRouter(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	return mux
}

func logDecisions(ctx context.Context, logger zerolog.Logger, decisions <-chan types.Decision) {
	for {
		select {
		case d := <-decisions:
			logger.Info().Str("decision", d.String()).Msg("decision emitted")
		case <-ctx.Done():
			return
		}
	}
}

// simulateGasEvents stands in for the live fee-market feed: a random walk
// around the configured target base fee, paced so it doesn't outrun a
// realistic block interval. This is the simulated external collaborator
// SPEC_FULL §2 calls out as non-core.
func simulateGasEvents(ctx context.Context, cfg config.SchedulerConfig, out chan<- types.GasEvent) {
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	baseFee := cfg.TargetBaseFee
	blockNum := uint64(0)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		delta := int64(rand.Intn(9)) - 4 // -4..4
		next := int64(baseFee) + delta
		if next < 1 {
			next = 1
		}
		baseFee = uint64(next)
		blockNum++

		ev := types.NewBlockEvent(blockNum, baseFee, 12_000_000, 30_000_000)
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// simulateTxRequests stands in for a stream of user-submitted transactions.
func simulateTxRequests(ctx context.Context, cfg config.SchedulerConfig, out chan<- types.TransactionRequest) {
	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)
	sender := common.HexToAddress("0xA11CE")
	recipient := common.HexToAddress("0xB0B")
	id := uint64(0)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		id++

		req := types.TransactionRequest{
			ID:                   id,
			From:                 sender,
			To:                   recipient,
			MaxFeePerGas:         cfg.TargetBaseFee + cfg.MaxPriorityFee + 20,
			MaxPriorityFeePerGas: cfg.MaxPriorityFee,
		}
		select {
		case out <- req:
		case <-ctx.Done():
			return
		}
	}
}
