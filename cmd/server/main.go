package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"railbook/config"
	"railbook/internal/handler"
	"railbook/internal/ledger"
	"railbook/internal/middleware"
	"railbook/internal/service"
	"railbook/pkg/cache"
	"railbook/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Ledger backend ──────────────────────────────────
	var store ledger.Store
	var pgPool *pgxpool.Pool
	switch cfg.Store.Backend {
	case "postgres":
		pgPool, err = db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			log.Fatalf("failed to connect to PostgreSQL: %v", err)
		}
		defer pgPool.Close()
		store = ledger.NewPostgresStore(pgPool)
		log.Println("✓ PostgreSQL ledger connected")
	case "memory":
		store = ledger.NewMemoryStore()
		log.Println("✓ in-memory ledger initialized")
	}

	if cfg.Store.SeedDemo {
		if err := ledger.SeedDemo(ctx, store); err != nil {
			log.Fatalf("failed to seed demo catalog: %v", err)
		}
		log.Println("✓ demo catalog seeded")
	}

	// ── Redis availability cache (optional) ─────────────
	var redisClient *redis.Client
	var avail *cache.AvailabilityCache
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		avail = cache.NewAvailabilityCache(redisClient)
		log.Println("✓ Redis connected")
	} else {
		log.Println("– Redis disabled; availability served from the ledger")
	}

	// ── Initialize layers ───────────────────────────────
	stats := service.NewStatsAggregator(store)
	engine := service.NewBookingEngine(store, stats, avail)
	catalog := service.NewCatalogService(store)
	query := service.NewQueryService(store, avail)

	trainHandler := handler.NewTrainHandler(catalog, query)
	bookingHandler := handler.NewBookingHandler(engine)
	queryHandler := handler.NewQueryHandler(query)
	statsHandler := handler.NewStatsHandler(query, stats)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	// Catalog & availability
	api.HandleFunc("/trains", trainHandler.AddTrain).Methods(http.MethodPost)
	api.HandleFunc("/trains", trainHandler.SearchTrains).Methods(http.MethodGet)
	api.HandleFunc("/trains/{train_id}", trainHandler.GetTrain).Methods(http.MethodGet)
	api.HandleFunc("/trains/{train_id}/price", trainHandler.UpdatePrice).Methods(http.MethodPut)
	api.HandleFunc("/trains/{train_id}/availability", trainHandler.Availability).Methods(http.MethodGet)
	api.HandleFunc("/availability", trainHandler.AvailabilityAll).Methods(http.MethodGet)
	// Booking, refund, change
	api.HandleFunc("/tickets", bookingHandler.Book).Methods(http.MethodPost)
	api.HandleFunc("/tickets/{ticket_id}/refund", bookingHandler.Refund).Methods(http.MethodPost)
	api.HandleFunc("/tickets/{ticket_id}/change", bookingHandler.Change).Methods(http.MethodPost)
	// Queries & reports
	api.HandleFunc("/tickets/{ticket_id}", queryHandler.GetTicket).Methods(http.MethodGet)
	api.HandleFunc("/tickets", queryHandler.SearchTickets).Methods(http.MethodGet)
	api.HandleFunc("/passengers/{id_number}/orders", queryHandler.PassengerOrders).Methods(http.MethodGet)
	api.HandleFunc("/reports/sales", queryHandler.SalesReport).Methods(http.MethodGet)
	api.HandleFunc("/statistics", statsHandler.Statistics).Methods(http.MethodGet)
	api.HandleFunc("/statistics/recompute", statsHandler.Recompute).Methods(http.MethodPost)

	// Outermost first: recover → request ID → logging → CORS.
	h := middleware.Recoverer(middleware.RequestID(middleware.RequestLogger(middleware.CORS(router))))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚂 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks the backing services.
// Either client may be nil (memory backend, Redis disabled).
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if pgPool != nil {
			if err := db.HealthCheck(r.Context(), pgPool); err != nil {
				resp.Status = "degraded"
				resp.Services["postgres"] = "unhealthy: " + err.Error()
			} else {
				resp.Services["postgres"] = "healthy"
			}
		} else {
			resp.Services["ledger"] = "in-memory"
		}

		if redisClient != nil {
			if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
				resp.Status = "degraded"
				resp.Services["redis"] = "unhealthy: " + err.Error()
			} else {
				resp.Services["redis"] = "healthy"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
