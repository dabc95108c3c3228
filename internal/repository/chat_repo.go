package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classora/classroom-api/internal/models"
)

// ChatRepository persists chat rooms, messages and read acknowledgements.
type ChatRepository interface {
	// GetOrCreateDirectRoom resolves the single direct room for the unordered
	// user pair, creating it when absent. The pair-key unique index makes the
	// operation safe under concurrent calls from both participants.
	GetOrCreateDirectRoom(ctx context.Context, userA, userB uint) (models.ChatRoom, error)
	CreateGroupRoom(ctx context.Context, room *models.ChatRoom, participants []models.User) error
	GetRoom(ctx context.Context, id uint) (models.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID uint) ([]models.ChatRoom, error)
	// SaveMessage stores the message, seeds its read set with the sender and
	// repoints the room's last-message cache, all in one transaction.
	SaveMessage(ctx context.Context, message *models.ChatMessage) error
	GetMessage(ctx context.Context, id uint) (models.ChatMessage, error)
	ListMessagesByRoom(ctx context.Context, roomID uint, before time.Time, limit int) ([]models.ChatMessage, error)
	// MarkRead appends the user to the message's read set; repeating the call
	// is a no-op.
	MarkRead(ctx context.Context, messageID, userID uint) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetOrCreateDirectRoom(ctx context.Context, userA, userB uint) (models.ChatRoom, error) {
	pairKey := models.DirectPairKey(userA, userB)

	room := models.ChatRoom{
		Type:    models.RoomTypeDirect,
		PairKey: &pairKey,
	}

	// The insert and the participant append commit together; a failed append
	// must not leave a room nobody can enter behind the pair key.
	var created bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).Create(&room)
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected > 0
		if !created {
			return nil
		}
		members := []models.User{{ID: userA}, {ID: userB}}
		return tx.Model(&room).Association("Participants").Append(members)
	})
	if err != nil {
		return models.ChatRoom{}, err
	}

	if created {
		return r.GetRoom(ctx, room.ID)
	}

	// Lost the insert race or the room predates this call: load the winner.
	var existing models.ChatRoom
	if err := r.roomQuery(ctx).Where("pair_key = ?", pairKey).First(&existing).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return existing, nil
}

func (r *chatRepository) CreateGroupRoom(ctx context.Context, room *models.ChatRoom, participants []models.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		return tx.Model(room).Association("Participants").Append(participants)
	})
}

func (r *chatRepository) roomQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Preload("Participants").
		Preload("LastMessage").
		Preload("LastMessage.Reads")
}

func (r *chatRepository) GetRoom(ctx context.Context, id uint) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.roomQuery(ctx).First(&room, id).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

func (r *chatRepository) ListRoomsForUser(ctx context.Context, userID uint) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := r.roomQuery(ctx).
		Joins("JOIN chat_room_participants ON chat_room_participants.chat_room_id = chat_rooms.id").
		Where("chat_room_participants.user_id = ?", userID).
		Order("chat_rooms.updated_at DESC").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *chatRepository) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		read := models.MessageRead{MessageID: message.ID, UserID: message.SenderID}
		if err := tx.Create(&read).Error; err != nil {
			return err
		}
		message.Reads = []models.MessageRead{read}

		return tx.Model(&models.ChatRoom{}).
			Where("id = ?", message.RoomID).
			Updates(map[string]interface{}{
				"last_message_id": message.ID,
				"updated_at":      message.CreatedAt,
			}).Error
	})
}

func (r *chatRepository) GetMessage(ctx context.Context, id uint) (models.ChatMessage, error) {
	var message models.ChatMessage
	if err := r.db.WithContext(ctx).Preload("Reads").First(&message, id).Error; err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

func (r *chatRepository) ListMessagesByRoom(ctx context.Context, roomID uint, before time.Time, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Preload("Reads").Where("room_id = ?", roomID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.ChatMessage
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) MarkRead(ctx context.Context, messageID, userID uint) error {
	read := models.MessageRead{MessageID: messageID, UserID: userID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&read).Error
}
