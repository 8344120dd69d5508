package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailburst/mailburst-backend/internal/cache"
	"github.com/mailburst/mailburst-backend/internal/config"
	"github.com/mailburst/mailburst-backend/internal/db"
	"github.com/mailburst/mailburst-backend/internal/mailer"
	"github.com/mailburst/mailburst-backend/internal/queue"
	"github.com/mailburst/mailburst-backend/internal/ratelimit"
	"github.com/mailburst/mailburst-backend/internal/repository"
	"github.com/mailburst/mailburst-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Connect to DB
	db.Init(cfg.DatabaseURL)

	// Redis: rate-limit counters + queue dedup
	store, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect to Redis:", err)
	}
	defer store.Close()

	// Connect to RabbitMQ
	policy := queue.RetryPolicy{
		MaxAttempts: cfg.MaxSendAttempts,
		BackoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
	}
	q, err := queue.NewAMQPQueue(cfg.AmqpURL, store, policy)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	var sender mailer.Sender
	if cfg.ResendAPIKey != "" {
		sender = mailer.NewResendSender(cfg.ResendAPIKey, cfg.FromAddress)
	} else {
		log.Println("⚠️ RESEND_API_KEY not set, running with dry-run sender")
		sender = mailer.LogSender{}
	}

	dispatcher := &service.Dispatcher{
		EmailRepo:   &repository.EmailRepository{DB: db.DB},
		Limiter:     ratelimit.NewLimiter(store, cfg.MaxEmailsPerHour),
		Sender:      sender,
		PacingDelay: time.Duration(cfg.DelayBetweenEmailsMs) * time.Millisecond,
		SendTimeout: time.Duration(cfg.SendTimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Worker running with concurrency", cfg.WorkerConcurrency, ", waiting for messages...")

	// Consume returns once ctx is cancelled and in-flight deliveries finish,
	// so a shutdown never orphans a half-delivered email
	if err := q.Consume(ctx, cfg.WorkerConcurrency, dispatcher.HandleJob); err != nil {
		log.Fatal("consumer stopped:", err)
	}

	log.Println("✅ Worker drained, exiting")
}
