package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/wada/backend/internal/config"
	"github.com/wada/backend/internal/db"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/repository"
)

// GuestData represents a guest and its chat rooms in the JSON file
type GuestData struct {
	SessionID string   `json:"sessionId"`
	ChatRooms []string `json:"chatRooms"`
}

// JSONData represents the structure of the JSON files
type JSONData struct {
	Guests []GuestData `json:"guests"`
}

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

	// Run migrations first
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(conn); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Seeding database with sample guests...")
	if err := seedGuests(context.Background(), repository.NewIdentityStore(conn)); err != nil {
		log.Printf("Error seeding guests: %v", err)
	}

	log.Println("✅ Database seeding completed successfully!")
}

func seedGuests(ctx context.Context, identity repository.IdentityStore) error {
	guestsData, err := os.ReadFile("data/initial-guests.json")
	if err != nil {
		return err
	}

	var jsonData JSONData
	if err := json.Unmarshal(guestsData, &jsonData); err != nil {
		return err
	}

	for _, guestData := range jsonData.Guests {
		guest, err := identity.GetOrCreateGuest(ctx, guestData.SessionID)
		if err != nil {
			log.Printf("Error creating guest %s: %v", guestData.SessionID, err)
			continue
		}
		for _, chatRoomID := range guestData.ChatRooms {
			if _, err := identity.GetOrCreateChatRoom(ctx, guest.ID, chatRoomID); err != nil {
				log.Printf("⚠️  Chat room %s not created for %s: %v", chatRoomID, guest.ID, err)
				continue
			}
		}
		log.Printf("✅ Seeded guest: %s (%d chat rooms)", guest.ID, len(guestData.ChatRooms))
	}
	return nil
}
