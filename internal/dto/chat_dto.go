package dto

import (
	"time"

	"github.com/classora/classroom-api/internal/models"
)

// DirectRoomRequest resolves the direct room between the caller and PeerID.
type DirectRoomRequest struct {
	PeerID uint `json:"peer_id" validate:"required,gt=0"`
}

// GroupRoomCreateRequest creates a named group room.
type GroupRoomCreateRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=255"`
	ParticipantIDs []uint `json:"participant_ids" validate:"required,min=1,dive,gt=0"`
}

// MessageSendRequest is the payload for posting a message into a room.
type MessageSendRequest struct {
	Content        string `json:"content" validate:"required_without=AttachmentURL,max=4000"`
	AttachmentURL  string `json:"attachment_url" validate:"omitempty,url,max=512"`
	AttachmentType string `json:"attachment_type" validate:"omitempty,max=64"`
	AttachmentName string `json:"attachment_name" validate:"omitempty,max=255"`
}

// MessageListQuery pages through room history, newest first before the cursor.
type MessageListQuery struct {
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ChatRoomResponse serializes a room with its participants and last message.
type ChatRoomResponse struct {
	ID           uint                 `json:"id"`
	Type         string               `json:"type"`
	Name         string               `json:"name,omitempty"`
	AdminID      *uint                `json:"admin_id,omitempty"`
	Participants []UserLite           `json:"participants"`
	LastMessage  *ChatMessageResponse `json:"last_message,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	ID             uint      `json:"id"`
	RoomID         uint      `json:"room_id"`
	SenderID       uint      `json:"sender_id"`
	Content        string    `json:"content"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentType string    `json:"attachment_type,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	ReadBy         []uint    `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// TypingEvent is the ephemeral typing signal relayed to room subscribers.
// It is never persisted.
type TypingEvent struct {
	RoomID   uint `json:"room_id"`
	UserID   uint `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

// NewChatMessageResponse converts a model into a DTO.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	readBy := make([]uint, 0, len(message.Reads))
	for _, read := range message.Reads {
		readBy = append(readBy, read.UserID)
	}

	return ChatMessageResponse{
		ID:             message.ID,
		RoomID:         message.RoomID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		AttachmentURL:  message.AttachmentURL,
		AttachmentType: message.AttachmentType,
		AttachmentName: message.AttachmentName,
		ReadBy:         readBy,
		CreatedAt:      message.CreatedAt,
	}
}

// NewChatMessageResponseSlice converts a slice of models into DTOs.
func NewChatMessageResponseSlice(messages []models.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}

// NewChatRoomResponse converts a room model into a DTO.
func NewChatRoomResponse(room models.ChatRoom) ChatRoomResponse {
	participants := make([]UserLite, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, UserLite{ID: p.ID, Name: p.Name, Email: p.Email})
	}

	response := ChatRoomResponse{
		ID:           room.ID,
		Type:         room.Type,
		Name:         room.Name,
		AdminID:      room.AdminID,
		Participants: participants,
		CreatedAt:    room.CreatedAt,
	}

	if room.LastMessage != nil {
		last := NewChatMessageResponse(*room.LastMessage)
		response.LastMessage = &last
	}

	return response
}

// NewChatRoomResponseSlice converts room models into DTOs.
func NewChatRoomResponseSlice(rooms []models.ChatRoom) []ChatRoomResponse {
	out := make([]ChatRoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewChatRoomResponse(room))
	}
	return out
}
