package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/repository"
)

// ErrNotificationNotFound indicates the notification does not exist or
// belongs to someone else.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService stores per-user notices and pushes them to live
// subscribers through the broadcaster.
type NotificationService interface {
	Notifier
	List(ctx context.Context, actor Actor, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, actor Actor) (dto.NotificationResponse, error)
	CountUnread(ctx context.Context, actor Actor) (int64, error)
}

type notificationService struct {
	repo        repository.NotificationRepository
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, broadcaster Broadcaster, logger zerolog.Logger) NotificationService {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &notificationService{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "notification_service").Logger(),
	}
}

// Notify persists the notice and pushes it to the user's topic. Failures are
// logged, never propagated: notifications are a side effect and must not fail
// the triggering operation.
func (s *notificationService) Notify(ctx context.Context, userID uint, kind, body string) {
	notification := models.Notification{
		UserID: userID,
		Type:   kind,
		Body:   body,
	}

	if err := s.repo.Create(ctx, &notification); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Str("type", kind).Msg("failed to persist notification")
		return
	}

	s.broadcaster.Publish(UserTopic(userID), "notification", dto.NewNotificationResponse(notification))
}

func (s *notificationService) List(ctx context.Context, actor Actor, limit, offset int) ([]dto.NotificationResponse, error) {
	notifications, err := s.repo.ListForUser(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, actor Actor) (dto.NotificationResponse, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		return dto.NotificationResponse{}, err
	}

	if notification.UserID != actor.ID {
		return dto.NotificationResponse{}, ErrNotificationNotFound
	}

	if !notification.Read {
		notification.Read = true
		if err := s.repo.Update(ctx, &notification); err != nil {
			return dto.NotificationResponse{}, err
		}
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) CountUnread(ctx context.Context, actor Actor) (int64, error) {
	return s.repo.CountUnread(ctx, actor.ID)
}
