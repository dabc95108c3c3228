package models

import (
	"fmt"
	"time"
)

// Chat room kinds.
const (
	RoomTypeDirect = "direct"
	RoomTypeGroup  = "group"
)

// ChatRoom groups participants for message exchange. Direct rooms carry a
// PairKey derived from the two participant IDs; its unique index makes
// find-or-create race free.
type ChatRoom struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Type          string      `gorm:"size:16;not null" json:"type"`
	Name          string      `gorm:"size:255" json:"name"`
	PairKey       *string     `gorm:"size:64;uniqueIndex" json:"-"`
	AdminID       *uint       `json:"admin_id"`
	LastMessageID *uint       `json:"last_message_id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Participants  []User      `gorm:"many2many:chat_room_participants" json:"participants"`
	LastMessage   *ChatMessage `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
}

// HasParticipant reports whether the user belongs to the room. Participants
// must be preloaded.
func (r ChatRoom) HasParticipant(userID uint) bool {
	for _, p := range r.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// DirectPairKey builds the canonical key for a direct room between two users.
// The pair is unordered, so the smaller ID always comes first.
func DirectPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ChatMessage is an immutable chat payload. Read acknowledgements live in
// MessageRead rows rather than on the message itself.
type ChatMessage struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	RoomID         uint          `gorm:"not null;index" json:"room_id"`
	SenderID       uint          `gorm:"not null;index" json:"sender_id"`
	Content        string        `gorm:"type:text" json:"content"`
	AttachmentURL  string        `gorm:"size:512" json:"attachment_url"`
	AttachmentType string        `gorm:"size:64" json:"attachment_type"`
	AttachmentName string        `gorm:"size:255" json:"attachment_name"`
	CreatedAt      time.Time     `json:"created_at"`
	Sender         User          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"sender"`
	Reads          []MessageRead `gorm:"foreignKey:MessageID" json:"reads"`
}

// MessageRead marks a message as read by a user. The unique index gives
// markRead its set semantics: re-inserting the same pair is a no-op.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_message_read_user" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_message_read_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
