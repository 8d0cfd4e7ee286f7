package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/wada/backend/internal/models"
)

// MemoryRecordStore keeps records in process memory. It backs local
// development (RECORD_STORE=memory) and service tests.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	records  map[string][]*models.AnalysisRecord
	counters map[string]int
	totals   map[string]Usage
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records:  make(map[string][]*models.AnalysisRecord),
		counters: make(map[string]int),
		totals:   make(map[string]Usage),
	}
}

func (s *MemoryRecordStore) Count(_ context.Context, chatRoomID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records[chatRoomID])), nil
}

func (s *MemoryRecordStore) find(chatRoomID string, requestID int) *models.AnalysisRecord {
	for _, r := range s.records[chatRoomID] {
		if r.RequestID == requestID {
			return r
		}
	}
	return nil
}

func (s *MemoryRecordStore) FindOne(_ context.Context, chatRoomID string, requestID int) (*models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.find(chatRoomID, requestID)
	if r == nil {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryRecordStore) FindByChatRoom(_ context.Context, chatRoomID string) ([]*models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AnalysisRecord, 0, len(s.records[chatRoomID]))
	for _, r := range s.records[chatRoomID] {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

func (s *MemoryRecordStore) FindFirstByChatRooms(_ context.Context, chatRoomIDs []string) ([]*models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.AnalysisRecord{}
	for _, id := range chatRoomIDs {
		if r := s.find(id, 1); r != nil {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTime.Before(out[j].CreatedTime) })
	return out, nil
}

func (s *MemoryRecordStore) latest(chatRoomID string) *models.AnalysisRecord {
	var latest *models.AnalysisRecord
	for _, r := range s.records[chatRoomID] {
		if latest == nil || r.RequestID > latest.RequestID {
			latest = r
		}
	}
	return latest
}

func (s *MemoryRecordStore) Latest(_ context.Context, chatRoomID string) (*models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.latest(chatRoomID)
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

// charge must be called with mu held. The total is seeded from the newest
// record the first time a chat room is charged.
func (s *MemoryRecordStore) charge(chatRoomID string, usage Usage) Usage {
	total, ok := s.totals[chatRoomID]
	if !ok {
		if latest := s.latest(chatRoomID); latest != nil {
			total = Usage{Tokens: latest.TokenUsage, Cost: latest.Cost}
		}
	}
	total.Tokens += usage.Tokens
	total.Cost += usage.Cost
	s.totals[chatRoomID] = total
	return total
}

func (s *MemoryRecordStore) ChargeUsage(_ context.Context, chatRoomID string, usage Usage) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charge(chatRoomID, usage), nil
}

func stamp(r *models.AnalysisRecord, total Usage) {
	if total.Tokens > r.TokenUsage {
		r.TokenUsage = total.Tokens
	}
	if total.Cost > r.Cost {
		r.Cost = total.Cost
	}
}

func (s *MemoryRecordStore) NextRequestID(_ context.Context, chatRoomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.counters[chatRoomID]
	if !ok {
		seq = len(s.records[chatRoomID])
	}
	seq++
	s.counters[chatRoomID] = seq
	return seq, nil
}

func (s *MemoryRecordStore) Insert(_ context.Context, record *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(record.ChatRoomID, record.RequestID) != nil {
		return ErrDuplicate
	}
	stored := record.Clone()
	if stored.ConversationRecord == nil {
		stored.ConversationRecord = []models.ConversationEntry{}
	}
	s.records[record.ChatRoomID] = append(s.records[record.ChatRoomID], stored)
	return nil
}

func (s *MemoryRecordStore) ApplyDispatch(_ context.Context, chatRoomID string, requestID int, update DispatchUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(chatRoomID, requestID)
	if r == nil {
		return ErrNotFound
	}
	if r.SelectedModel != nil {
		return ErrNotModified
	}
	r.ModelRecommendations = models.CloneRecommendations(update.Recommendations)
	r.SelectedModel = update.SelectedModel.WithRequiredKeys()
	r.ResultFromModel = models.CloneMap(update.Result)
	r.ResultDescription = models.CloneMap(update.Description)
	stamp(r, s.charge(chatRoomID, update.Usage))
	r.UpdatedTime = update.UpdatedTime
	return nil
}

func (s *MemoryRecordStore) AppendConversation(_ context.Context, chatRoomID string, requestID int, entry models.ConversationEntry, usage Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(chatRoomID, requestID)
	if r == nil {
		return ErrNotFound
	}
	r.ConversationRecord = append(r.ConversationRecord, entry)
	stamp(r, s.charge(chatRoomID, usage))
	r.UpdatedTime = entry.Timestamp
	return nil
}
