package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Assignment{},
		&models.Submission{},
		&models.Quiz{},
		&models.QuizAttempt{},
		&models.ChatRoom{},
		&models.ChatMessage{},
		&models.MessageRead{},
		&models.Notification{},
		&models.Announcement{},
	))
	return db
}

func seedAssignment(t *testing.T, db *gorm.DB) (models.Assignment, models.User) {
	t.Helper()
	owner := models.User{Name: "Prof Owner", Email: "owner@example.com", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&owner).Error)
	student := models.User{Name: "Student", Email: "student@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)

	course := models.Course{Title: "Systems", OwnerID: owner.ID}
	require.NoError(t, db.Create(&course).Error)

	assignment := models.Assignment{
		CourseID:   course.ID,
		Title:      "Essay",
		DueDate:    time.Now().Add(24 * time.Hour),
		TotalMarks: 100,
		Published:  true,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment, student
}

func TestSubmissionRepositoryCreateRejectsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	assignment, student := seedAssignment(t, db)

	first := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		SubmittedAt:  time.Now(),
		Text:         "first attempt",
		Status:       models.SubmissionStatusSubmitted,
	}
	require.NoError(t, repo.Create(context.Background(), &first))
	require.NotZero(t, first.ID)

	second := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		SubmittedAt:  time.Now(),
		Text:         "second attempt",
		Status:       models.SubmissionStatusSubmitted,
	}
	err := repo.Create(context.Background(), &second)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// The stored row still holds the first attempt's text.
	stored, err := repo.GetByAssignmentAndStudent(context.Background(), assignment.ID, student.ID)
	require.NoError(t, err)
	require.Equal(t, "first attempt", stored.Text)
}

func TestSubmissionRepositoryGetByIDPreloads(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	assignment, student := seedAssignment(t, db)

	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		SubmittedAt:  time.Now(),
		Status:       models.SubmissionStatusSubmitted,
	}
	require.NoError(t, repo.Create(context.Background(), &submission))

	loaded, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, "Essay", loaded.Assignment.Title)
	require.Equal(t, "Systems", loaded.Assignment.Course.Title)
	require.Equal(t, student.ID, loaded.Student.ID)
}

func TestSubmissionRepositoryUpdateGrade(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	assignment, student := seedAssignment(t, db)

	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		SubmittedAt:  time.Now(),
		Status:       models.SubmissionStatusSubmitted,
	}
	require.NoError(t, repo.Create(context.Background(), &submission))

	marks := 85.0
	gradedBy := uint(1)
	gradedAt := time.Now()
	submission.GradeMarks = &marks
	submission.GradeFeedback = "Good work"
	submission.GradedBy = &gradedBy
	submission.GradedAt = &gradedAt
	submission.Status = models.SubmissionStatusGraded
	require.NoError(t, repo.Update(context.Background(), &submission))

	loaded, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, loaded.Status)
	require.NotNil(t, loaded.GradeMarks)
	require.Equal(t, 85.0, *loaded.GradeMarks)
}
