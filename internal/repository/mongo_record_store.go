package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wada/backend/internal/database"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// requestCounter holds a chat room's requestId sequence and its running
// usage total.
type requestCounter struct {
	ChatRoomID string    `bson:"_id"`
	Seq        int       `bson:"seq"`
	TokenUsage int64     `bson:"tokenUsage"`
	Cost       float64   `bson:"cost"`
	UpdateTime time.Time `bson:"update_time"`
}

type mongoRecordStore struct {
	records  *mongo.Collection
	counters *mongo.Collection
	log      *logrus.Entry
}

func NewMongoRecordStore(db *mongo.Database) RecordStore {
	return &mongoRecordStore{
		records:  db.Collection(database.RecordsCollection),
		counters: db.Collection(database.CountersCollection),
		log:      logger.WithContext(map[string]interface{}{"repo": "MongoRecordStore"}),
	}
}

func recordKey(chatRoomID string, requestID int) bson.M {
	return bson.M{"chatRoomId": chatRoomID, "requestId": requestID}
}

func (s *mongoRecordStore) Count(ctx context.Context, chatRoomID string) (int64, error) {
	n, err := s.records.CountDocuments(ctx, bson.M{"chatRoomId": chatRoomID})
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *mongoRecordStore) FindOne(ctx context.Context, chatRoomID string, requestID int) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	err := s.records.FindOne(ctx, recordKey(chatRoomID, requestID)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return &rec, nil
}

func (s *mongoRecordStore) FindByChatRoom(ctx context.Context, chatRoomID string) ([]*models.AnalysisRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "requestId", Value: 1}})
	return s.findMany(ctx, bson.M{"chatRoomId": chatRoomID}, opts)
}

func (s *mongoRecordStore) FindFirstByChatRooms(ctx context.Context, chatRoomIDs []string) ([]*models.AnalysisRecord, error) {
	if len(chatRoomIDs) == 0 {
		return []*models.AnalysisRecord{}, nil
	}
	filter := bson.M{"chatRoomId": bson.M{"$in": chatRoomIDs}, "requestId": 1}
	opts := options.Find().SetSort(bson.D{{Key: "createdTime", Value: 1}})
	return s.findMany(ctx, filter, opts)
}

func (s *mongoRecordStore) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.AnalysisRecord, error) {
	cur, err := s.records.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cur.Close(ctx)

	out := []*models.AnalysisRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return out, nil
}

func (s *mongoRecordStore) Latest(ctx context.Context, chatRoomID string) (*models.AnalysisRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "requestId", Value: -1}})
	var rec models.AnalysisRecord
	err := s.records.FindOne(ctx, bson.M{"chatRoomId": chatRoomID}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest record: %w", err)
	}
	return &rec, nil
}

// ensureCounter creates a chat room's counter document the first time the
// chat room is seen, seeded from the records it already has.
func (s *mongoRecordStore) ensureCounter(ctx context.Context, chatRoomID string) error {
	existing, err := s.Count(ctx, chatRoomID)
	if err != nil {
		return err
	}
	seed := bson.M{"seq": int(existing), "tokenUsage": int64(0), "cost": float64(0)}
	if existing > 0 {
		latest, err := s.Latest(ctx, chatRoomID)
		if err != nil {
			return err
		}
		seed["tokenUsage"] = latest.TokenUsage
		seed["cost"] = latest.Cost
	}

	_, err = s.counters.UpdateOne(ctx,
		bson.M{"_id": chatRoomID},
		bson.M{"$setOnInsert": seed},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("seed request counter: %w", err)
	}
	return nil
}

func (s *mongoRecordStore) incCounter(ctx context.Context, chatRoomID string, inc bson.M) (*requestCounter, error) {
	if err := s.ensureCounter(ctx, chatRoomID); err != nil {
		return nil, err
	}
	var counter requestCounter
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": chatRoomID},
		bson.M{
			"$inc": inc,
			"$set": bson.M{"update_time": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return nil, fmt.Errorf("update request counter: %w", err)
	}
	return &counter, nil
}

func (s *mongoRecordStore) NextRequestID(ctx context.Context, chatRoomID string) (int, error) {
	counter, err := s.incCounter(ctx, chatRoomID, bson.M{"seq": 1})
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (s *mongoRecordStore) ChargeUsage(ctx context.Context, chatRoomID string, usage Usage) (Usage, error) {
	counter, err := s.incCounter(ctx, chatRoomID, bson.M{"tokenUsage": usage.Tokens, "cost": usage.Cost})
	if err != nil {
		return Usage{}, err
	}
	return Usage{Tokens: counter.TokenUsage, Cost: counter.Cost}, nil
}

// stamp raises a record's totals to the chat room's running total. $max keeps
// a late writer from lowering them.
func (s *mongoRecordStore) stamp(ctx context.Context, chatRoomID string, requestID int, total Usage) error {
	_, err := s.records.UpdateOne(ctx, recordKey(chatRoomID, requestID), bson.M{
		"$max": bson.M{
			"tokenUsage": total.Tokens,
			"cost":       total.Cost,
		},
	})
	if err != nil {
		return fmt.Errorf("stamp usage: %w", err)
	}
	return nil
}

func (s *mongoRecordStore) Insert(ctx context.Context, record *models.AnalysisRecord) error {
	if record.ConversationRecord == nil {
		record.ConversationRecord = []models.ConversationEntry{}
	}
	if _, err := s.records.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert record: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"chat_room_id": record.ChatRoomID,
		"request_id":   record.RequestID,
	}).Debug("Record inserted")
	return nil
}

func (s *mongoRecordStore) ApplyDispatch(ctx context.Context, chatRoomID string, requestID int, update DispatchUpdate) error {
	filter := recordKey(chatRoomID, requestID)
	filter["selectedModel"] = bson.M{"$exists": false}

	res, err := s.records.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{
			"modelRecommendations": update.Recommendations,
			"selectedModel":        update.SelectedModel,
			"resultFromModel":      update.Result,
			"resultDescription":    update.Description,
			"updatedTime":          update.UpdatedTime,
		},
	})
	if err != nil {
		return fmt.Errorf("apply dispatch: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.FindOne(ctx, chatRoomID, requestID); err != nil {
			return err
		}
		return ErrNotModified
	}

	total, err := s.ChargeUsage(ctx, chatRoomID, update.Usage)
	if err != nil {
		return err
	}
	return s.stamp(ctx, chatRoomID, requestID, total)
}

func (s *mongoRecordStore) AppendConversation(ctx context.Context, chatRoomID string, requestID int, entry models.ConversationEntry, usage Usage) error {
	res, err := s.records.UpdateOne(ctx, recordKey(chatRoomID, requestID), bson.M{
		"$push": bson.M{"conversationRecord": entry},
		"$set":  bson.M{"updatedTime": entry.Timestamp},
	})
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	total, err := s.ChargeUsage(ctx, chatRoomID, usage)
	if err != nil {
		return err
	}
	return s.stamp(ctx, chatRoomID, requestID, total)
}
