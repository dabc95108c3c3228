package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classora/classroom-api/internal/models"
)

// QuizRepository defines data operations for quizzes and their attempts.
type QuizRepository interface {
	GetByID(ctx context.Context, id uint) (models.Quiz, error)
	Create(ctx context.Context, quiz *models.Quiz) error
	// CreateAttempt inserts atomically and returns gorm.ErrDuplicatedKey when
	// an attempt already exists for the (quiz, student) pair.
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	GetAttempt(ctx context.Context, quizID, studentID uint) (models.QuizAttempt, error)
	// FinishAttempt writes the terminal result only while the attempt is still
	// in progress and returns gorm.ErrDuplicatedKey when another submit won.
	FinishAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	ListAttempts(ctx context.Context, quizID uint) ([]models.QuizAttempt, error)
}

type quizRepository struct {
	db *gorm.DB
}

// NewQuizRepository instantiates the repository.
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

func (r *quizRepository) GetByID(ctx context.Context, id uint) (models.Quiz, error) {
	var quiz models.Quiz
	if err := r.db.WithContext(ctx).Preload("Course").First(&quiz, id).Error; err != nil {
		return models.Quiz{}, err
	}
	return quiz, nil
}

func (r *quizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	return r.db.WithContext(ctx).Create(quiz).Error
}

func (r *quizRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "quiz_id"}, {Name: "student_id"}},
		DoNothing: true,
	}).Create(attempt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrDuplicatedKey
	}
	return nil
}

func (r *quizRepository) GetAttempt(ctx context.Context, quizID, studentID uint) (models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := r.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		First(&attempt).Error; err != nil {
		return models.QuizAttempt{}, err
	}
	return attempt, nil
}

func (r *quizRepository) FinishAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	result := r.db.WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("id = ?", attempt.ID).
		Where("status = ?", models.AttemptStatusInProgress).
		Updates(map[string]interface{}{
			"status":          attempt.Status,
			"score":           attempt.Score,
			"percentage":      attempt.Percentage,
			"answers":         attempt.Answers,
			"submitted_at":    attempt.SubmittedAt,
			"time_taken_secs": attempt.TimeTakenSecs,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrDuplicatedKey
	}
	return nil
}

func (r *quizRepository) ListAttempts(ctx context.Context, quizID uint) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("quiz_id = ?", quizID).
		Order("created_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
