package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/classora/classroom-api/internal/dto"
	"github.com/classora/classroom-api/internal/middleware"
	"github.com/classora/classroom-api/internal/service"
	"github.com/classora/classroom-api/internal/utils"
)

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	service service.ChatService
	hub     *service.ChatHub
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, hub *service.ChatHub, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		hub:     hub,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))

	router.Post("/rooms/direct", h.directRoom)
	router.Post("/rooms/group", h.groupRoom)
	router.Get("/rooms", h.listRooms)
	router.Get("/rooms/:id/messages", h.listMessages)
	router.Post("/rooms/:id/messages", h.sendMessage)
	router.Post("/messages/:id/read", h.markRead)
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	userID, ok := conn.Locals("user_id").(uint)
	if !ok || userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	role, _ := conn.Locals("user_role").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.HubConnectionOptions{
		UserID:        userID,
		Role:          role,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Uint("user_id", userID).Msg("chat websocket connected")
	h.hub.ServeConnection(conn, opts)
	h.logger.Info().Uint("user_id", userID).Msg("chat websocket disconnected")
}

func (h *ChatHandler) directRoom(c *fiber.Ctx) error {
	var payload dto.DirectRoomRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.service.GetOrCreateDirectRoom(c.UserContext(), actorFromContext(c), payload.PeerID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "room resolved", room)
}

func (h *ChatHandler) groupRoom(c *fiber.Ctx) error {
	var payload dto.GroupRoomCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.service.CreateGroupRoom(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *ChatHandler) listRooms(c *fiber.Ctx) error {
	rooms, err := h.service.ListRooms(c.UserContext(), actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rooms retrieved", rooms)
}

func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	roomID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.SendMessage(c.UserContext(), roomID, actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) listMessages(c *fiber.Ctx) error {
	roomID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	query := dto.MessageListQuery{}
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.service.ListMessages(c.UserContext(), roomID, actorFromContext(c), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "messages retrieved", messages)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	messageID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.MarkRead(c.UserContext(), messageID, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "message marked read", message)
}

func (h *ChatHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "room not found")
	case errors.Is(err, service.ErrMessageNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "message not found")
	case errors.Is(err, service.ErrPeerNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "peer not found")
	case errors.Is(err, service.ErrNotRoomParticipant), errors.Is(err, service.ErrGroupCreateForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrSelfDirectRoom):
		return utils.SendError(c, fiber.StatusBadRequest, "cannot open a direct room with yourself")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
