//cmd/seeder/main.go
package main

import (
    "fmt"
    "log"
    "os"

    "github.com/mailburst/mailburst-backend/internal/config"
    "github.com/mailburst/mailburst-backend/internal/db"
    "github.com/mailburst/mailburst-backend/internal/repository"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatal("failed to load config:", err)
    }

    db.Init(cfg.DatabaseURL)
    defer db.DB.Close()

    schema, err := os.ReadFile("seed/schema.sql")
    if err != nil {
        log.Fatalf("failed to read seed/schema.sql: %v", err)
    }
    if _, err := db.DB.Exec(string(schema)); err != nil {
        log.Fatalf("failed to execute seed/schema.sql: %v", err)
    }
    fmt.Println("Seeded: seed/schema.sql")

    userRepo := &repository.UserRepository{DB: db.DB}
    demo, err := userRepo.GetOrCreateByEmail("demo@mailburst.dev", "Demo User")
    if err != nil {
        log.Fatalf("failed to seed demo user: %v", err)
    }
    fmt.Printf("Seeded: demo user %s (%s)\n", demo.Email, demo.ID)

    fmt.Println("Database seeding completed successfully!")
}
