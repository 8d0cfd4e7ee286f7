package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdentityStore resolves guest sessions and the chat rooms they own.
type IdentityStore interface {
	GetOrCreateGuest(ctx context.Context, sessionID string) (*models.Guest, error)
	GetOrCreateChatRoom(ctx context.Context, guestID, chatRoomID string) (*models.ChatRoom, error)
	FindGuestWithChatRooms(ctx context.Context, sessionID string) (*models.Guest, error)
	FindChatRoom(ctx context.Context, chatRoomID string) (*models.ChatRoom, error)
}

type identityStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewIdentityStore(db *gorm.DB) IdentityStore {
	return &identityStore{
		db:  db,
		log: logger.WithContext(map[string]interface{}{"repo": "IdentityStore"}),
	}
}

func (s *identityStore) GetOrCreateGuest(ctx context.Context, sessionID string) (*models.Guest, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	guest := &models.Guest{ID: sessionID}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(guest).Error; err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}

	var out models.Guest
	if err := s.db.WithContext(ctx).First(&out, "id = ?", sessionID).Error; err != nil {
		return nil, fmt.Errorf("load guest: %w", err)
	}
	return &out, nil
}

func (s *identityStore) GetOrCreateChatRoom(ctx context.Context, guestID, chatRoomID string) (*models.ChatRoom, error) {
	chatRoomID = strings.TrimSpace(chatRoomID)
	if chatRoomID == "" || guestID == "" {
		return nil, ErrInvalidID
	}

	room := &models.ChatRoom{ID: chatRoomID, GuestID: guestID}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(room).Error; err != nil {
		return nil, fmt.Errorf("create chat room: %w", err)
	}

	var out models.ChatRoom
	if err := s.db.WithContext(ctx).First(&out, "id = ?", chatRoomID).Error; err != nil {
		return nil, fmt.Errorf("load chat room: %w", err)
	}
	if out.GuestID != guestID {
		s.log.WithFields(logrus.Fields{
			"chat_room_id": chatRoomID,
			"guest_id":     guestID,
		}).Warn("Chat room belongs to another guest")
		return nil, ErrForeignChatRoom
	}
	return &out, nil
}

func (s *identityStore) FindGuestWithChatRooms(ctx context.Context, sessionID string) (*models.Guest, error) {
	var guest models.Guest
	err := s.db.WithContext(ctx).
		Preload("ChatRooms", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC")
		}).
		First(&guest, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load guest with chat rooms: %w", err)
	}
	return &guest, nil
}

func (s *identityStore) FindChatRoom(ctx context.Context, chatRoomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.WithContext(ctx).First(&room, "id = ?", chatRoomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chat room: %w", err)
	}
	return &room, nil
}
