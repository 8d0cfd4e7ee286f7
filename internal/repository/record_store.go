package repository

import (
	"context"
	"time"

	"github.com/wada/backend/internal/models"
)

// Usage is a token and cost amount. As an argument it is an increment; as a
// result it is a chat room's running total.
type Usage struct {
	Tokens int64
	Cost   float64
}

// DispatchUpdate is written in a single operation once a model has been executed.
type DispatchUpdate struct {
	Recommendations []models.ModelRecommendation
	SelectedModel   models.ImplementationRequest
	Result          map[string]any
	Description     map[string]any
	Usage           Usage
	UpdatedTime     time.Time
}

// RecordStore persists analysis records keyed by (chatRoomId, requestId).
// Records are never deleted.
//
// Each chat room keeps one running usage total. Every charge adds to it and
// every record written is stamped with the total at that moment, so the
// newest write always carries the whole chat room's usage.
type RecordStore interface {
	// Count returns how many records a chat room has. Counters for chat rooms
	// that predate the counter document are seeded from it.
	Count(ctx context.Context, chatRoomID string) (int64, error)
	FindOne(ctx context.Context, chatRoomID string, requestID int) (*models.AnalysisRecord, error)
	// FindByChatRoom returns every record of a chat room ordered by requestId.
	FindByChatRoom(ctx context.Context, chatRoomID string) ([]*models.AnalysisRecord, error)
	// FindFirstByChatRooms returns the requestId 1 record of each listed chat room.
	FindFirstByChatRooms(ctx context.Context, chatRoomIDs []string) ([]*models.AnalysisRecord, error)
	Latest(ctx context.Context, chatRoomID string) (*models.AnalysisRecord, error)
	// NextRequestID atomically allocates the next requestId for a chat room.
	NextRequestID(ctx context.Context, chatRoomID string) (int, error)
	// ChargeUsage adds usage to the chat room's running total and returns the
	// new total. A zero usage reads the current total.
	ChargeUsage(ctx context.Context, chatRoomID string, usage Usage) (Usage, error)
	Insert(ctx context.Context, record *models.AnalysisRecord) error
	// ApplyDispatch updates a record only if it has not been dispatched yet,
	// charges update.Usage and stamps the record with the new running total.
	ApplyDispatch(ctx context.Context, chatRoomID string, requestID int, update DispatchUpdate) error
	// AppendConversation appends entry, charges usage and stamps the record
	// with the new running total.
	AppendConversation(ctx context.Context, chatRoomID string, requestID int, entry models.ConversationEntry, usage Usage) error
}
