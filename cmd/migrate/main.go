package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/wada/backend/internal/config"
	"github.com/wada/backend/internal/database"
	"github.com/wada/backend/internal/db"
	"github.com/wada/backend/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	logger.Initialize()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Connect to database
	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(conn); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if cfg.RecordStore == "mongo" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		mongoDB, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer database.Disconnect(context.Background(), mongoDB)

		log.Println("Creating record store indexes...")
		if err := database.EnsureIndexes(ctx, mongoDB); err != nil {
			log.Fatalf("Index creation failed: %v", err)
		}
	}

	log.Println("✅ Database migrations completed successfully!")
}
