package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wada/backend/internal/models"
	"github.com/wada/backend/internal/repository"
)

// HistorySummary describes a chat room by its first record.
type HistorySummary struct {
	ChatRoomID        string         `json:"chatRoomId"`
	FileName          string         `json:"fileName"`
	Requirement       string         `json:"requirement"`
	ResultDescription map[string]any `json:"resultDescription,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// HistoryService lists a guest's chat rooms and their records, and checks
// chat room ownership for the other workflows.
type HistoryService struct {
	identity repository.IdentityStore
	records  repository.RecordStore
}

func NewHistoryService(identity repository.IdentityStore, records repository.RecordStore) *HistoryService {
	return &HistoryService{identity: identity, records: records}
}

// Authorize fails unless the chat room exists and belongs to the session.
func (s *HistoryService) Authorize(ctx context.Context, sessionID, chatRoomID string) error {
	const op = "Authorize"
	room, err := s.identity.FindChatRoom(ctx, chatRoomID)
	if err != nil {
		return storeError(op, err)
	}
	if room.GuestID != sessionID {
		return newError(KindForbidden, op, "chat room %s belongs to another session", chatRoomID)
	}
	return nil
}

// List returns one summary per chat room owned by the session, oldest first.
func (s *HistoryService) List(ctx context.Context, sessionID string) ([]HistorySummary, error) {
	const op = "HistoryList"
	guest, err := s.identity.FindGuestWithChatRooms(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return []HistorySummary{}, nil
	}
	if err != nil {
		return nil, storeError(op, err)
	}

	ids := make([]string, 0, len(guest.ChatRooms))
	for _, room := range guest.ChatRooms {
		ids = append(ids, room.ID)
	}
	firsts, err := s.records.FindFirstByChatRooms(ctx, ids)
	if err != nil {
		return nil, storeError(op, err)
	}

	out := make([]HistorySummary, 0, len(firsts))
	for _, r := range firsts {
		out = append(out, HistorySummary{
			ChatRoomID:        r.ChatRoomID,
			FileName:          strings.Join(r.FileNames, ", "),
			Requirement:       r.Requirement,
			ResultDescription: r.ResultDescription,
			CreatedAt:         r.CreatedTime,
		})
	}
	return out, nil
}

// Detail returns every record of an owned chat room in requestId order.
func (s *HistoryService) Detail(ctx context.Context, sessionID, chatRoomID string) ([]*models.AnalysisRecord, error) {
	const op = "HistoryDetail"
	if err := s.Authorize(ctx, sessionID, chatRoomID); err != nil {
		return nil, err
	}
	records, err := s.records.FindByChatRoom(ctx, chatRoomID)
	if err != nil {
		return nil, storeError(op, err)
	}
	for _, r := range records {
		for i := range r.ConversationRecord {
			r.ConversationRecord[i].Answer = normalizeLegacyAnswer(r.ConversationRecord[i].Answer)
		}
	}
	return records, nil
}
