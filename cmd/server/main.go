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

	"github.com/iamsogoodlo/QuickNurse/config"
	"github.com/iamsogoodlo/QuickNurse/internal/handler"
	"github.com/iamsogoodlo/QuickNurse/internal/middleware"
	"github.com/iamsogoodlo/QuickNurse/internal/notify"
	"github.com/iamsogoodlo/QuickNurse/internal/repository"
	"github.com/iamsogoodlo/QuickNurse/internal/service"
	"github.com/iamsogoodlo/QuickNurse/pkg/cache"
	"github.com/iamsogoodlo/QuickNurse/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Notification gateways ───────────────────────────
	hub := notify.NewHub()
	defer hub.Close()

	gateways := notify.Multi{hub}
	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
		gateways = append(gateways, publisher)
		log.Println("✓ RabbitMQ connected")
	}

	// ── Initialize layers ───────────────────────────────
	requestStore := repository.NewPostgresRequestStore(pgPool)
	accountStore := repository.NewPostgresAccountStore(pgPool)
	trackingCache := repository.NewTrackingCache(redisClient)

	pricing := service.NewPricingEngine()
	registry := service.NewNurseRegistry(accountStore)
	ledger := service.NewRequestLedger(requestStore, pricing, trackingCache)
	matcher := service.NewMatchingService(registry, ledger, pricing, gateways, cfg.Dispatch.DefaultRadiusMiles)
	tracker := service.NewTrackingService(registry, ledger, gateways)

	if err := ledger.RebuildPendingIndex(ctx); err != nil {
		log.Fatalf("failed to rebuild pending index: %v", err)
	}

	nurseHandler := handler.NewNurseHandler(registry, matcher, ledger)
	requestHandler := handler.NewRequestHandler(ledger, matcher, pricing)
	trackingHandler := handler.NewTrackingHandler(tracker)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// Websocket endpoint. Clients send {"role","id"} right after upgrade.
	router.HandleFunc("/ws", hub.ServeWS)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	// Catalog and pricing
	api.HandleFunc("/services", requestHandler.Catalog).Methods(http.MethodGet)
	api.HandleFunc("/pricing/quote", requestHandler.Quote).Methods(http.MethodGet)
	// Nurse presence and feeds
	api.HandleFunc("/nurses/nearby", requestHandler.Nearby).Methods(http.MethodGet)
	api.HandleFunc("/nurses/{nurse_id}", nurseHandler.GetNurse).Methods(http.MethodGet)
	api.HandleFunc("/nurses/{nurse_id}/online", nurseHandler.SetOnline).Methods(http.MethodPost)
	api.HandleFunc("/nurses/{nurse_id}/status", nurseHandler.SetStatus).Methods(http.MethodPut)
	api.HandleFunc("/nurses/{nurse_id}/location", nurseHandler.UpdateLocation).Methods(http.MethodPut)
	api.HandleFunc("/nurses/{nurse_id}/availability", nurseHandler.VerifyOnline).Methods(http.MethodGet)
	api.HandleFunc("/nurses/{nurse_id}/requests", nurseHandler.History).Methods(http.MethodGet)
	api.HandleFunc("/nurses/{nurse_id}/requests/pending", nurseHandler.PendingFeed).Methods(http.MethodGet)
	api.HandleFunc("/nurses/{nurse_id}/stats", nurseHandler.Stats).Methods(http.MethodGet)
	api.HandleFunc("/nurses/{nurse_id}/tracking/position", trackingHandler.Position).Methods(http.MethodPost)
	api.HandleFunc("/nurses/{nurse_id}/tracking/stop", trackingHandler.Stop).Methods(http.MethodPost)
	// Requests: discovery, creation, lifecycle
	api.HandleFunc("/requests/discover", requestHandler.Discover).Methods(http.MethodPost)
	api.HandleFunc("/requests", requestHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/requests/{request_id}", requestHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/requests/{request_id}/accept", requestHandler.Accept).Methods(http.MethodPost)
	api.HandleFunc("/requests/{request_id}/decline", requestHandler.Decline).Methods(http.MethodPost)
	api.HandleFunc("/requests/{request_id}/status", requestHandler.UpdateStatus).Methods(http.MethodPut)
	api.HandleFunc("/requests/{request_id}/cancel", requestHandler.Cancel).Methods(http.MethodPost)
	// Tracking
	api.HandleFunc("/requests/{request_id}/tracking", trackingHandler.Readout).Methods(http.MethodGet)
	api.HandleFunc("/requests/{request_id}/tracking/start", trackingHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/requests/{request_id}/tracking/arrived", trackingHandler.Arrived).Methods(http.MethodPost)
	// Patient history
	api.HandleFunc("/patients/{patient_id}/requests", requestHandler.PatientHistory).Methods(http.MethodGet)

	// Wrap with logging, panic recovery, and CORS.
	root := middleware.CORS(middleware.Recoverer(middleware.RequestLogger(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
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

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
