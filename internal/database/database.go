package database

import (
	"context"
	"fmt"
	"time"

	"github.com/wada/backend/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RecordsCollection  = "analysis_records"
	CountersCollection = "analysis_counters"
)

// Connect opens the document database holding analysis records.
func Connect(ctx context.Context, uri, name string) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("Document database connected successfully", map[string]interface{}{
		"database": name,
	})
	return client.Database(name), nil
}

// EnsureIndexes creates the unique (chatRoomId, requestId) index.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(RecordsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chatRoomId", Value: 1}, {Key: "requestId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("chat_room_request_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create record index: %w", err)
	}
	logger.Info("Document indexes ensured", map[string]interface{}{"collection": RecordsCollection})
	return nil
}

// Disconnect closes the client behind db.
func Disconnect(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return nil
	}
	return db.Client().Disconnect(ctx)
}
