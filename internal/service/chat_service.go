package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/observability"
	"github.com/classora/classroom-api/internal/repository"
)

// ErrRoomNotFound indicates the chat room does not exist.
var ErrRoomNotFound = errors.New("chat room not found")

// ErrNotRoomParticipant indicates the caller does not belong to the room.
var ErrNotRoomParticipant = errors.New("not a participant of this room")

// ErrMessageNotFound indicates the message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// ErrPeerNotFound indicates the direct-room peer does not exist.
var ErrPeerNotFound = errors.New("peer not found")

// ErrSelfDirectRoom indicates a direct room was requested with oneself.
var ErrSelfDirectRoom = errors.New("cannot open a direct room with yourself")

// ErrGroupCreateForbidden indicates the caller may not create group rooms.
var ErrGroupCreateForbidden = errors.New("not permitted to create group rooms")

// WS event names shared between the REST path and the websocket hub.
const (
	EventReceiveMessage = "receive_message"
	EventUserTyping     = "user_typing"
	EventAnnouncement   = "course_announcement"
)

// ChatService owns room resolution, message ordering, read-state bookkeeping
// and fan-out. Messages are broadcast only after the persistent write
// succeeds, so subscribers never see a message the store does not hold.
type ChatService interface {
	GetOrCreateDirectRoom(ctx context.Context, actor Actor, peerID uint) (dto.ChatRoomResponse, error)
	CreateGroupRoom(ctx context.Context, actor Actor, payload dto.GroupRoomCreateRequest) (dto.ChatRoomResponse, error)
	ListRooms(ctx context.Context, actor Actor) ([]dto.ChatRoomResponse, error)
	SendMessage(ctx context.Context, roomID uint, actor Actor, payload dto.MessageSendRequest) (dto.ChatMessageResponse, error)
	MarkRead(ctx context.Context, messageID uint, actor Actor) (dto.ChatMessageResponse, error)
	ListMessages(ctx context.Context, roomID uint, actor Actor, query dto.MessageListQuery) ([]dto.ChatMessageResponse, error)
	// CanAccessRoom reports whether the user belongs to the room; the hub
	// consults it before honouring a join_room request.
	CanAccessRoom(ctx context.Context, roomID, userID uint) error
}

type chatService struct {
	repo        repository.ChatRepository
	users       repository.UserRepository
	validator   *validator.Validate
	broadcaster Broadcaster
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewChatService creates a chat service instance. The broadcaster may be a
// websocket hub in production or an in-memory fake under test.
func NewChatService(repo repository.ChatRepository, users repository.UserRepository, validate *validator.Validate, broadcaster Broadcaster, logger zerolog.Logger) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}

	return &chatService{
		repo:        repo,
		users:       users,
		validator:   validate,
		broadcaster: broadcaster,
		sanitizer:   sanitizer,
		logger:      logger.With().Str("component", "chat_service").Logger(),
		tracer:      otel.Tracer("github.com/classora/classroom-api/internal/service/chat"),
	}
}

func (s *chatService) GetOrCreateDirectRoom(ctx context.Context, actor Actor, peerID uint) (dto.ChatRoomResponse, error) {
	if peerID == actor.ID {
		return dto.ChatRoomResponse{}, ErrSelfDirectRoom
	}

	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatRoomResponse{}, ErrPeerNotFound
		}
		return dto.ChatRoomResponse{}, err
	}

	room, err := s.repo.GetOrCreateDirectRoom(ctx, actor.ID, peerID)
	if err != nil {
		return dto.ChatRoomResponse{}, err
	}

	return dto.NewChatRoomResponse(room), nil
}

func (s *chatService) CreateGroupRoom(ctx context.Context, actor Actor, payload dto.GroupRoomCreateRequest) (dto.ChatRoomResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatRoomResponse{}, err
	}

	if !actor.IsAdmin() {
		return dto.ChatRoomResponse{}, ErrGroupCreateForbidden
	}

	ids := dedupeIDs(append(payload.ParticipantIDs, actor.ID))
	participants, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return dto.ChatRoomResponse{}, err
	}
	if len(participants) != len(ids) {
		return dto.ChatRoomResponse{}, ErrPeerNotFound
	}

	adminID := actor.ID
	room := models.ChatRoom{
		Type:    models.RoomTypeGroup,
		Name:    strings.TrimSpace(payload.Name),
		AdminID: &adminID,
	}

	if err := s.repo.CreateGroupRoom(ctx, &room, participants); err != nil {
		return dto.ChatRoomResponse{}, err
	}

	created, err := s.repo.GetRoom(ctx, room.ID)
	if err != nil {
		return dto.ChatRoomResponse{}, err
	}

	s.logger.Info().Uint("room_id", created.ID).Int("participants", len(participants)).Msg("group room created")

	return dto.NewChatRoomResponse(created), nil
}

func (s *chatService) ListRooms(ctx context.Context, actor Actor) ([]dto.ChatRoomResponse, error) {
	rooms, err := s.repo.ListRoomsForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewChatRoomResponseSlice(rooms), nil
}

func (s *chatService) SendMessage(ctx context.Context, roomID uint, actor Actor, payload dto.MessageSendRequest) (dto.ChatMessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.Int64("chat.room_id", int64(roomID)),
		attribute.Int64("chat.sender_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, err
	}

	room, err := s.participantRoom(ctx, roomID, actor.ID)
	if err != nil {
		span.SetStatus(codes.Error, "room_access_denied")
		return dto.ChatMessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" && payload.AttachmentURL == "" {
		return dto.ChatMessageResponse{}, fmt.Errorf("message content empty after sanitization")
	}

	message := models.ChatMessage{
		RoomID:         room.ID,
		SenderID:       actor.ID,
		Content:        clean,
		AttachmentURL:  payload.AttachmentURL,
		AttachmentType: payload.AttachmentType,
		AttachmentName: payload.AttachmentName,
	}

	// Persist first; only a stored message is ever broadcast. The single
	// write path per room is what gives subscribers creation-order delivery.
	if err := s.repo.SaveMessage(ctx, &message); err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, err
	}

	response := dto.NewChatMessageResponse(message)
	s.broadcaster.Publish(RoomTopic(room.ID), EventReceiveMessage, response)

	observability.ChatMessagesTotal().Inc()
	s.logger.Debug().Uint("room_id", room.ID).Uint("message_id", message.ID).Msg("message stored and broadcast")

	return response, nil
}

func (s *chatService) MarkRead(ctx context.Context, messageID uint, actor Actor) (dto.ChatMessageResponse, error) {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatMessageResponse{}, ErrMessageNotFound
		}
		return dto.ChatMessageResponse{}, err
	}

	if _, err := s.participantRoom(ctx, message.RoomID, actor.ID); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	if err := s.repo.MarkRead(ctx, messageID, actor.ID); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	updated, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}

	return dto.NewChatMessageResponse(updated), nil
}

func (s *chatService) ListMessages(ctx context.Context, roomID uint, actor Actor, query dto.MessageListQuery) ([]dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	if _, err := s.participantRoom(ctx, roomID, actor.ID); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.repo.ListMessagesByRoom(ctx, roomID, before, query.Limit)
	if err != nil {
		return nil, err
	}

	return dto.NewChatMessageResponseSlice(messages), nil
}

func (s *chatService) CanAccessRoom(ctx context.Context, roomID, userID uint) error {
	_, err := s.participantRoom(ctx, roomID, userID)
	return err
}

func (s *chatService) participantRoom(ctx context.Context, roomID, userID uint) (models.ChatRoom, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ChatRoom{}, ErrRoomNotFound
		}
		return models.ChatRoom{}, err
	}

	if !room.HasParticipant(userID) {
		return models.ChatRoom{}, ErrNotRoomParticipant
	}

	return room, nil
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
