package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/classora/classroom-api/internal/config"
	"github.com/classora/classroom-api/internal/handler"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/repository"
	"github.com/classora/classroom-api/internal/router"
	"github.com/classora/classroom-api/internal/service"
)

type testIdentity struct {
	userID uint
	role   string
}

func setupSubmissionApp(t *testing.T, identity *testIdentity) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Assignment{},
		&models.Submission{},
		&models.Notification{},
	))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notifier := service.NewNotificationService(notificationRepo, nil, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, notifier, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", identity.userID)
			c.Locals("user_role", identity.role)
			return c.Next()
		},
	})

	return app, db
}

func seedSubmissionFixtures(t *testing.T, db *gorm.DB) (models.Assignment, models.User, models.User) {
	t.Helper()
	owner := models.User{Name: "Prof", Email: "prof@example.com", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&owner).Error)
	student := models.User{Name: "Jane", Email: "jane@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)

	course := models.Course{Title: "Algorithms", OwnerID: owner.ID}
	require.NoError(t, db.Create(&course).Error)

	assignment := models.Assignment{
		CourseID:   course.ID,
		Title:      "Lab Report",
		DueDate:    time.Now().Add(3 * time.Hour),
		TotalMarks: 100,
		Published:  true,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment, owner, student
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestSubmissionHandlerSubmitAndDuplicate(t *testing.T) {
	identity := &testIdentity{role: models.RoleStudent}
	app, db := setupSubmissionApp(t, identity)
	assignment, _, student := seedSubmissionFixtures(t, db)
	identity.userID = student.ID

	path := fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID)

	resp := postJSON(t, app, path, map[string]string{"text": "my answer"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID     uint   `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Equal(t, models.SubmissionStatusSubmitted, created.Data.Status)

	dup := postJSON(t, app, path, map[string]string{"text": "again"})
	require.Equal(t, fiber.StatusConflict, dup.StatusCode)
	dup.Body.Close()
}

func TestSubmissionHandlerGradeFlow(t *testing.T) {
	identity := &testIdentity{role: models.RoleStudent}
	app, db := setupSubmissionApp(t, identity)
	assignment, owner, student := seedSubmissionFixtures(t, db)
	identity.userID = student.ID

	resp := postJSON(t, app, fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID), map[string]string{"text": "answer"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	// Switch to the course owner for grading.
	identity.userID = owner.ID
	identity.role = models.RoleFaculty

	gradePath := fmt.Sprintf("/api/v1/assignments/%d/submissions/%d/grade", assignment.ID, created.Data.ID)

	tooHigh := postJSON(t, app, gradePath, map[string]interface{}{"marks": 150})
	require.Equal(t, fiber.StatusBadRequest, tooHigh.StatusCode)
	tooHigh.Body.Close()

	graded := postJSON(t, app, gradePath, map[string]interface{}{"marks": 85, "feedback": "Good work"})
	require.Equal(t, fiber.StatusOK, graded.StatusCode)

	var result struct {
		Data struct {
			Status        string   `json:"status"`
			GradeMarks    *float64 `json:"grade_marks"`
			GradeFeedback string   `json:"grade_feedback"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(graded.Body).Decode(&result))
	graded.Body.Close()
	require.Equal(t, models.SubmissionStatusGraded, result.Data.Status)
	require.NotNil(t, result.Data.GradeMarks)
	require.Equal(t, 85.0, *result.Data.GradeMarks)

	// The student was notified about the grade.
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", student.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSubmissionHandlerGradeForbiddenForStranger(t *testing.T) {
	identity := &testIdentity{role: models.RoleStudent}
	app, db := setupSubmissionApp(t, identity)
	assignment, _, student := seedSubmissionFixtures(t, db)
	identity.userID = student.ID

	resp := postJSON(t, app, fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID), map[string]string{"text": "answer"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	stranger := models.User{Name: "Other", Email: "other@example.com", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&stranger).Error)
	identity.userID = stranger.ID
	identity.role = models.RoleFaculty

	forbidden := postJSON(t, app, fmt.Sprintf("/api/v1/assignments/%d/submissions/%d/grade", assignment.ID, created.Data.ID), map[string]interface{}{"marks": 50})
	require.Equal(t, fiber.StatusForbidden, forbidden.StatusCode)
	forbidden.Body.Close()
}
