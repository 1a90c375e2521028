package main

import (
	"flag"
	"log"
	"time"

	"crmcore/internal/engine/webhooks"
	"crmcore/internal/pkg/logger"
	"crmcore/internal/platform/config"
	"crmcore/internal/platform/database"
	"crmcore/internal/platform/repositories"
	"crmcore/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	webhookRepo := repositories.NewWebhookRepository(db)
	dispatcher := webhooks.NewDispatcher(webhookRepo, cfg.Webhooks)

	interval := cfg.Webhooks.RetryInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log.Printf("Starting webhook retry worker (interval %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		workers.RetryFailedWebhooks(dispatcher, cfg.Webhooks.RetryLookbackHrs)
	}
}
