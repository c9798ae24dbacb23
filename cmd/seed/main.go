package main

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/oggyb/campus-connect/internal/auth"
	"github.com/oggyb/campus-connect/internal/config"
	"github.com/oggyb/campus-connect/internal/db"
	"github.com/oggyb/campus-connect/internal/logger"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	users, err := db.SeedTestData(database, logger.L())
	if err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	// dev tokens so the seeded accounts can be used from grpcurl or curl
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, 24*time.Hour)
	for _, u := range users {
		tok, err := verifier.Sign(u.ID)
		if err != nil {
			log.Fatalf("failed to sign token for %d: %v", u.ID, err)
		}
		fmt.Printf("%-4d %-16s %s\n", u.ID, u.Username, tok)
	}

	log.Println("Seeding completed.")
}
