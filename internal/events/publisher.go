package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wada/backend/internal/logger"
)

const (
	TypeRecommended = "analysis.recommended"
	TypeDispatched  = "analysis.dispatched"
	TypeConversed   = "analysis.conversed"
	TypeRegenerated = "analysis.regenerated"
)

// Event announces a state change of an analysis record.
type Event struct {
	Type            string    `json:"type"`
	ChatRoomID      string    `json:"chatRoomId"`
	RequestID       int       `json:"requestId"`
	SourceRequestID int       `json:"sourceRequestId,omitempty"`
	ModelChoice     string    `json:"modelChoice,omitempty"`
	At              time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type redisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(addr, channel string) (Publisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if channel == "" {
		channel = "analysis-events"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Event publisher connected", map[string]interface{}{"addr": addr, "channel": channel})
	return &redisPublisher{rdb: rdb, channel: channel}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, evt Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *redisPublisher) Close() error {
	return p.rdb.Close()
}

// NoopPublisher drops events. It is used when REDIS_ADDR is unset.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingPublisher) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

func (r *RecordingPublisher) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
