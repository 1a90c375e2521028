package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"crmcore/internal/api"
	"crmcore/internal/api/handlers"
	"crmcore/internal/api/middleware"
	"crmcore/internal/engine/admission"
	"crmcore/internal/engine/breaker"
	"crmcore/internal/engine/webhooks"
	"crmcore/internal/pkg/logger"
	"crmcore/internal/platform/auth"
	"crmcore/internal/platform/config"
	"crmcore/internal/platform/database"
	"crmcore/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Repositories
	orgRepo := repositories.NewOrganizationRepository(db)
	userRepo := repositories.NewUserRepository(db)
	accountRepo := repositories.NewAccountRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)

	// Admission controller: Redis for cluster-wide counters, in-memory
	// fallback when disabled.
	ctx := context.Background()
	var counters admission.CounterStore
	if cfg.Redis.Enabled {
		redisStore := admission.NewRedisCounterStore(cfg.Redis)
		defer redisStore.Close()
		counters = redisStore
	} else {
		memStore := admission.NewMemoryCounterStore()
		memStore.StartJanitor(ctx, cfg.RateLimit.SweepInterval)
		counters = memStore
	}

	bruteForce := admission.NewBruteForceStore(cfg.RateLimit.BruteForceThreshold, cfg.RateLimit.BruteForceWindow)
	bruteForce.StartSweeper(ctx, cfg.RateLimit.SweepInterval)

	limiter := admission.NewLimiter(admission.NewPolicyResolver(cfg.RateLimit), counters, bruteForce)

	// Circuit breaker guarding the primary store
	cb := breaker.New(cfg.Breaker.Threshold, cfg.Breaker.RecoveryTimeout)

	// Webhook delivery
	dispatcher := webhooks.NewDispatcher(webhookRepo, cfg.Webhooks)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, orgRepo, tokenSvc, bruteForce)
	accountHandler := handlers.NewAccountHandler(accountRepo, cb, dispatcher)
	webhookHandler := handlers.NewWebhookHandler(webhookRepo)
	billingHandler := handlers.NewBillingHandler(orgRepo, cfg.Billing.WebhookSecret)
	healthHandler := handlers.NewHealthHandler(db, cb)
	metricsHandler := handlers.NewMetricsHandler(cb)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	admissionMiddleware := middleware.NewAdmissionMiddleware(limiter)

	router := api.NewRouter(&api.Dependencies{
		AuthHandler:         authHandler,
		AccountHandler:      accountHandler,
		WebhookHandler:      webhookHandler,
		BillingHandler:      billingHandler,
		HealthHandler:       healthHandler,
		MetricsHandler:      metricsHandler,
		AuthMiddleware:      authMiddleware,
		AdmissionMiddleware: admissionMiddleware,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
