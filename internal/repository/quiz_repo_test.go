package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/models"
)

func seedQuiz(t *testing.T, db *gorm.DB) (models.Quiz, models.User) {
	t.Helper()
	owner := models.User{Name: "Prof Owner", Email: "quiz-owner@example.com", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&owner).Error)
	student := models.User{Name: "Student", Email: "quiz-student@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)

	course := models.Course{Title: "Networks", OwnerID: owner.ID}
	require.NoError(t, db.Create(&course).Error)

	questions, err := json.Marshal([]models.QuizQuestion{
		{Text: "TCP or UDP for ordered delivery?", Marks: 5, Options: []models.QuizOption{
			{Text: "TCP", IsCorrect: true},
			{Text: "UDP"},
		}},
	})
	require.NoError(t, err)

	quiz := models.Quiz{
		CourseID:         course.ID,
		Title:            "Transport basics",
		Questions:        datatypes.JSON(questions),
		TotalMarks:       5,
		TimeLimitMinutes: 15,
		Published:        true,
	}
	require.NoError(t, db.Create(&quiz).Error)
	return quiz, student
}

func TestQuizRepositoryCreateAttemptRejectsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuizRepository(db)
	quiz, student := seedQuiz(t, db)

	first := models.QuizAttempt{
		QuizID:    quiz.ID,
		StudentID: student.ID,
		StartedAt: time.Now(),
		Status:    models.AttemptStatusInProgress,
	}
	require.NoError(t, repo.CreateAttempt(context.Background(), &first))
	require.NotZero(t, first.ID)

	second := models.QuizAttempt{
		QuizID:    quiz.ID,
		StudentID: student.ID,
		StartedAt: time.Now(),
		Status:    models.AttemptStatusInProgress,
	}
	err := repo.CreateAttempt(context.Background(), &second)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestQuizRepositoryAttemptRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuizRepository(db)
	quiz, student := seedQuiz(t, db)

	attempt := models.QuizAttempt{
		QuizID:    quiz.ID,
		StudentID: student.ID,
		StartedAt: time.Now(),
		Status:    models.AttemptStatusInProgress,
	}
	require.NoError(t, repo.CreateAttempt(context.Background(), &attempt))

	submitted := time.Now()
	attempt.SubmittedAt = &submitted
	attempt.Score = 5
	attempt.Percentage = 100
	attempt.Status = models.AttemptStatusCompleted
	require.NoError(t, repo.FinishAttempt(context.Background(), &attempt))

	loaded, err := repo.GetAttempt(context.Background(), quiz.ID, student.ID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusCompleted, loaded.Status)
	require.Equal(t, 5.0, loaded.Score)

	attempts, err := repo.ListAttempts(context.Background(), quiz.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestQuizRepositoryFinishAttemptRefusesSecondFinish(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuizRepository(db)
	quiz, student := seedQuiz(t, db)

	attempt := models.QuizAttempt{
		QuizID:    quiz.ID,
		StudentID: student.ID,
		StartedAt: time.Now(),
		Status:    models.AttemptStatusInProgress,
	}
	require.NoError(t, repo.CreateAttempt(context.Background(), &attempt))

	submitted := time.Now()
	winner := attempt
	winner.SubmittedAt = &submitted
	winner.Score = 5
	winner.Percentage = 100
	winner.Status = models.AttemptStatusCompleted
	require.NoError(t, repo.FinishAttempt(context.Background(), &winner))

	// A second finish races in with stale state; the guarded update must
	// leave the winner's result untouched.
	loser := attempt
	loser.SubmittedAt = &submitted
	loser.Score = 0
	loser.Percentage = 0
	loser.Status = models.AttemptStatusExpired
	err := repo.FinishAttempt(context.Background(), &loser)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	stored, err := repo.GetAttempt(context.Background(), quiz.ID, student.ID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusCompleted, stored.Status)
	require.Equal(t, 5.0, stored.Score)
	require.Equal(t, 100, stored.Percentage)
}
