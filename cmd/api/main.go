package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josh-kwaku/pawn-settlement/internal/config"
	"github.com/josh-kwaku/pawn-settlement/internal/events"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
	"github.com/josh-kwaku/pawn-settlement/internal/repository"
	"github.com/josh-kwaku/pawn-settlement/internal/service/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("pawn-settlement", cfg.LogLevel, cfg.AppEnv)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if cfg.MigrateOnStart {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrated")
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, 30*time.Second)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("failed to close event publisher", "error", err)
		}
	}()

	svc := settlement.NewService(settlement.Repositories{
		Loans:       repository.NewLoanRepository(db),
		Schedule:    repository.NewScheduleItemRepository(db),
		Payments:    repository.NewPaymentRepository(db),
		Collaterals: repository.NewCollateralRepository(db),
		Events:      repository.NewSettlementEventRepository(db),
	}, db, settlement.Options{
		MaxRetries: cfg.SettlementMaxRetries,
		RetryBase:  cfg.RetryBase(),
		Publisher:  publisher,
	})

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runStatusSweep(ctx, svc, cfg.StatusRefreshInterval)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /health/ready", handleReady(db))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "kafka", cfg.KafkaEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	<-sweepDone
	slog.Info("server stopped")
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.KafkaEnabled() {
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return events.NewLogPublisher(logger)
}

// runStatusSweep moves loans with unpaid past-due installments to DELINQUENT
// on a fixed interval until ctx is done.
func runStatusSweep(ctx context.Context, svc *settlement.Service, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RefreshOpenLoans(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
				logging.FromContext(ctx).Error("status sweep failed", "error", err)
			}
		}
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

func handleReady(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}
