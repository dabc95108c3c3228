package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

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

func setupChatApp(t *testing.T, identity *testIdentity) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
		&models.ChatMessage{},
		&models.MessageRead{},
	))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	chatRepo := repository.NewChatRepository(db)
	userRepo := repository.NewUserRepository(db)

	hub := service.NewChatHub(nil, nil, "classroom", logger)
	chatService := service.NewChatService(chatRepo, userRepo, validate, hub, logger)
	hub.Bind(chatService)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		ChatHandler: handler.NewChatHandler(chatService, hub, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", identity.userID)
			c.Locals("user_role", identity.role)
			return c.Next()
		},
	})

	return app, db
}

func seedChatFixtures(t *testing.T, db *gorm.DB) (models.User, models.User) {
	t.Helper()
	asha := models.User{Name: "Asha", Email: "asha@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&asha).Error)
	ben := models.User{Name: "Ben", Email: "ben@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&ben).Error)
	return asha, ben
}

func TestChatHandlerDirectRoomAndMessages(t *testing.T) {
	identity := &testIdentity{role: models.RoleStudent}
	app, db := setupChatApp(t, identity)
	asha, ben := seedChatFixtures(t, db)
	identity.userID = asha.ID

	resp := postJSON(t, app, "/api/v1/chat/rooms/direct", map[string]uint{"peer_id": ben.ID})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var room struct {
		Data struct {
			ID           uint   `json:"id"`
			Type         string `json:"type"`
			Participants []struct {
				ID uint `json:"id"`
			} `json:"participants"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	resp.Body.Close()
	require.Equal(t, models.RoomTypeDirect, room.Data.Type)
	require.Len(t, room.Data.Participants, 2)

	// The peer resolving from the other side gets the same room.
	identity.userID = ben.ID
	respPeer := postJSON(t, app, "/api/v1/chat/rooms/direct", map[string]uint{"peer_id": asha.ID})
	require.Equal(t, fiber.StatusOK, respPeer.StatusCode)
	var peerRoom struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(respPeer.Body).Decode(&peerRoom))
	respPeer.Body.Close()
	require.Equal(t, room.Data.ID, peerRoom.Data.ID)

	messagePath := fmt.Sprintf("/api/v1/chat/rooms/%d/messages", room.Data.ID)
	sent := postJSON(t, app, messagePath, map[string]string{"content": "hi Asha"})
	require.Equal(t, fiber.StatusCreated, sent.StatusCode)

	var message struct {
		Data struct {
			ID      uint   `json:"id"`
			Content string `json:"content"`
			ReadBy  []uint `json:"read_by"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(sent.Body).Decode(&message))
	sent.Body.Close()
	require.Equal(t, "hi Asha", message.Data.Content)
	require.Equal(t, []uint{ben.ID}, message.Data.ReadBy)

	// Asha reads it; the read set now holds both participants.
	identity.userID = asha.ID
	read := postJSON(t, app, fmt.Sprintf("/api/v1/chat/messages/%d/read", message.Data.ID), nil)
	require.Equal(t, fiber.StatusOK, read.StatusCode)
	var marked struct {
		Data struct {
			ReadBy []uint `json:"read_by"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(read.Body).Decode(&marked))
	read.Body.Close()
	require.ElementsMatch(t, []uint{asha.ID, ben.ID}, marked.Data.ReadBy)

	list, err := app.Test(httptest.NewRequest(http.MethodGet, messagePath, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, list.StatusCode)
	var history struct {
		Data []struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&history))
	list.Body.Close()
	require.Len(t, history.Data, 1)
}

func TestChatHandlerSelfDirectRoomRejected(t *testing.T) {
	identity := &testIdentity{role: models.RoleStudent}
	app, db := setupChatApp(t, identity)
	asha, _ := seedChatFixtures(t, db)
	identity.userID = asha.ID

	resp := postJSON(t, app, "/api/v1/chat/rooms/direct", map[string]uint{"peer_id": asha.ID})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChatHandlerOutsiderCannotPost(t *testing.T) {
	identity := &testIdentity{role: models.RoleStudent}
	app, db := setupChatApp(t, identity)
	asha, ben := seedChatFixtures(t, db)
	identity.userID = asha.ID

	resp := postJSON(t, app, "/api/v1/chat/rooms/direct", map[string]uint{"peer_id": ben.ID})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var room struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	resp.Body.Close()

	outsider := models.User{Name: "Out", Email: "out@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&outsider).Error)
	identity.userID = outsider.ID

	denied := postJSON(t, app, fmt.Sprintf("/api/v1/chat/rooms/%d/messages", room.Data.ID), map[string]string{"content": "let me in"})
	require.Equal(t, fiber.StatusForbidden, denied.StatusCode)
	denied.Body.Close()
}
