package models

import (
	"time"
)

// Guest is an anonymous session identity. Its ID is the session identifier.
type Guest struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"createdAt"`

	// Relationships
	ChatRooms []ChatRoom `json:"chatRooms,omitempty" gorm:"foreignKey:GuestID"`
}

func (Guest) TableName() string {
	return "guests"
}

// ChatRoom is a conversation thread owned by one guest. It scopes a lineage of
// analysis records.
type ChatRoom struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	GuestID   string    `json:"guestId" gorm:"not null;index;size:64"`
	Guest     *Guest    `json:"guest,omitempty" gorm:"foreignKey:GuestID;references:ID"`
	CreatedAt time.Time `json:"createdAt"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}
