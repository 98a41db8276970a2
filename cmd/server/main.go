package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/walletpay/backend/internal/audit"
	"github.com/walletpay/backend/internal/config"
	"github.com/walletpay/backend/internal/database"
	"github.com/walletpay/backend/internal/handlers"
	mW "github.com/walletpay/backend/internal/middleware"
	"github.com/walletpay/backend/internal/repository"
	"github.com/walletpay/backend/internal/services"
)

func main() {
	cfg, err := config.Load(viper.GetViper(), ".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.InitDatabase(ctx, cfg.Database)
	defer db.Close()

	if cfg.Database.ApplySchema {
		if err := database.ApplySchema(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		if _, err := database.SeedAccounts(ctx, db, services.SeedAccounts()); err != nil {
			log.Fatalf("Failed to seed chart of accounts: %v", err)
		}
	}

	store := repository.NewPostgresStore(db)

	// Every scenario must resolve to two active accounts before any request
	// is served.
	accounts, err := store.Accounts(ctx)
	if err != nil {
		log.Fatalf("Failed to load chart of accounts: %v", err)
	}
	chart, err := services.NewChartOfAccounts(accounts)
	if err != nil {
		log.Fatalf("Chart of accounts is incomplete: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)
	auditLogger := audit.NewAuditLogger(nil)

	ledger := services.NewDoubleLedgerService(store, chart, cfg.Ledger.Currency)
	transactions := services.NewTransactionService(store, ledger, auditLogger, metrics)

	gate, review, redisClient := idempotencyBackend(ctx, cfg, db)
	if redisClient != nil {
		defer redisClient.Close()
	}
	if pg, ok := gate.(*services.PostgresGate); ok {
		go purgeGateKeys(ctx, pg, metrics, cfg.Idempotency)
	}

	webhooks := services.NewWebhookService(transactions, store, gate, review, auditLogger, metrics, cfg.Razorpay.WebhookSecret)

	r := handlers.NewRouter(handlers.RouterConfig{
		Transactions:   handlers.NewTransactionHandler(transactions),
		Ledger:         handlers.NewLedgerHandler(ledger, chart),
		Webhooks:       handlers.NewWebhookHandler(webhooks),
		Auth:           mW.AuthMiddleware(cfg.JWT.SecretKey),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server stopped")
}

// idempotencyBackend prefers Redis for the webhook gate and review queue and
// falls back to PostgreSQL when Redis is unreachable.
func idempotencyBackend(ctx context.Context, cfg *config.Config, db *sql.DB) (services.IdempotencyGate, services.ReviewQueue, *redis.Client) {
	if client := database.InitRedis(ctx, cfg.Redis); client != nil {
		return services.NewRedisGate(client, cfg.Idempotency.TTL, cfg.Idempotency.ClaimLease), services.NewRedisReviewQueue(client), client
	}

	log.Println("Warning: using PostgreSQL idempotency gate; review items are kept in memory")
	return services.NewPostgresGate(db, cfg.Idempotency.ClaimLease), &services.MemoryReviewQueue{}, nil
}

func purgeGateKeys(ctx context.Context, gate *services.PostgresGate, metrics *services.Metrics, cfg config.IdempotencyConfig) {
	if cfg.PurgeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deleted, err := gate.PurgeExpired(ctx, now.Add(-cfg.TTL))
			if err != nil {
				log.Printf("[WEBHOOK] idempotency purge failed: %v", err)
				continue
			}
			metrics.ObservePurge(deleted, now.Unix())
			if deleted > 0 {
				log.Printf("[WEBHOOK] purged %d idempotency keys older than %s", deleted, cfg.TTL)
			}
		}
	}
}
