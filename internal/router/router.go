package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/classora/classroom-api/internal/config"
	"github.com/classora/classroom-api/internal/handler"
	"github.com/classora/classroom-api/internal/middleware"
	"github.com/classora/classroom-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler   *handler.SubmissionHandler
	QuizHandler         *handler.QuizHandler
	ChatHandler         *handler.ChatHandler
	AnnouncementHandler *handler.AnnouncementHandler
	NotificationHandler *handler.NotificationHandler
	UploadHandler       *handler.UploadHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.SubmissionHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware)
		deps.SubmissionHandler.Register(assignments)
	}

	if deps.QuizHandler != nil {
		quizzes := api.Group("/quizzes", jwtMiddleware)
		deps.QuizHandler.Register(quizzes)
	}

	if deps.ChatHandler != nil {
		chat := api.Group("/chat", jwtMiddleware, middleware.RateLimit("chat", 120, time.Minute))
		deps.ChatHandler.Register(chat)
	}

	if deps.AnnouncementHandler != nil {
		courses := api.Group("/courses", jwtMiddleware)
		deps.AnnouncementHandler.Register(courses)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.UploadHandler != nil {
		uploads := api.Group("/uploads", jwtMiddleware, middleware.RateLimit("uploads", 30, time.Minute))
		deps.UploadHandler.Register(uploads)
	}
}
