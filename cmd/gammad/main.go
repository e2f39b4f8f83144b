package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opynfinance/OpynV2/config"
	"github.com/opynfinance/OpynV2/core"
	"github.com/opynfinance/OpynV2/observability/logging"
	"github.com/opynfinance/OpynV2/rpc"
	"github.com/opynfinance/OpynV2/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	riskFile := flag.String("risk", "", "Path to a risk configuration file (overrides config RiskConfigFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("OPYN_ENV"))
	logger := logging.Setup("gammad", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Environment != "" && env == "" {
		logger = logging.Setup("gammad", cfg.Environment)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.String("path", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db)
	node.SetAuctionLength(cfg.AuctionLengthSeconds)
	node.SetOraclePeriods(cfg.LockingPeriodSeconds, cfg.DisputePeriodSeconds)

	riskPath := strings.TrimSpace(*riskFile)
	if riskPath == "" {
		riskPath = strings.TrimSpace(cfg.RiskConfigFile)
	}
	if riskPath != "" {
		risk, err := config.LoadRisk(riskPath)
		if err != nil {
			logger.Error("Failed to load risk config", slog.String("path", riskPath), slog.Any("error", err))
			os.Exit(1)
		}
		if err := node.ApplyRiskConfig(risk.Apply); err != nil {
			logger.Error("Failed to apply risk config", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Risk configuration applied",
			slog.String("path", riskPath),
			slog.Int("products", len(risk.Products)),
			slog.Int("assets", len(risk.Assets)))
	}

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Method(http.MethodPost, "/", rpc.NewServer(node))

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
