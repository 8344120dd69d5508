// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailburst/mailburst-backend/internal/cache"
	"github.com/mailburst/mailburst-backend/internal/config"
	"github.com/mailburst/mailburst-backend/internal/controller"
	"github.com/mailburst/mailburst-backend/internal/db"
	"github.com/mailburst/mailburst-backend/internal/queue"
	"github.com/mailburst/mailburst-backend/internal/repository"
	"github.com/mailburst/mailburst-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Init DB
	db.Init(cfg.DatabaseURL)

	// Redis backs the queue dedup guard (and the worker's rate counters)
	store, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect to Redis:", err)
	}
	defer store.Close()

	policy := queue.RetryPolicy{
		MaxAttempts: cfg.MaxSendAttempts,
		BackoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
	}
	q, err := queue.NewAMQPQueue(cfg.AmqpURL, store, policy)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	emailRepo := &repository.EmailRepository{DB: db.DB}
	userRepo := &repository.UserRepository{DB: db.DB}

	emailService := &service.EmailService{
		EmailRepo: emailRepo,
		Queue:     q,
	}

	emailController := &controller.EmailController{
		EmailService: emailService,
		UserRepo:     userRepo,
	}

	r := chi.NewRouter()

	// Email routes
	r.Post("/api/emails/schedule", emailController.ScheduleEmails)
	r.Get("/api/emails/scheduled", emailController.GetScheduledEmails)
	r.Get("/api/emails/sent", emailController.GetSentEmails)
	r.Get("/api/emails/stats", emailController.GetStats)
	r.Post("/api/emails/parse-csv", emailController.ParseCSV)

	log.Println("🚀 Server running on :" + cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
