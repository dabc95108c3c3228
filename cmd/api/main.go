package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classora/classroom-api/internal/config"
	"github.com/classora/classroom-api/internal/database"
	"github.com/classora/classroom-api/internal/handler"
	"github.com/classora/classroom-api/internal/middleware"
	"github.com/classora/classroom-api/internal/models"
	"github.com/classora/classroom-api/internal/repository"
	"github.com/classora/classroom-api/internal/router"
	"github.com/classora/classroom-api/internal/service"
	cloud "github.com/classora/classroom-api/pkg/cloudinary"
)

const announcementCacheTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
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
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	chatRepo := repository.NewChatRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)

	hub := service.NewChatHub(redisClient, natsConn, cfg.EventChannelBase, logger)

	notificationService := service.NewNotificationService(notificationRepo, hub, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, notificationService, logger)
	quizService := service.NewQuizService(quizRepo, validate, logger)
	chatService := service.NewChatService(chatRepo, userRepo, validate, hub, logger)
	announcementService := service.NewAnnouncementService(announcementRepo, courseRepo, validate, redisClient, announcementCacheTTL, hub, logger)

	hub.Bind(chatService)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub.Start(hubCtx)

	deps := router.Dependencies{
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, logger),
		QuizHandler:         handler.NewQuizHandler(quizService, logger),
		ChatHandler:         handler.NewChatHandler(chatService, hub, logger),
		AnnouncementHandler: handler.NewAnnouncementHandler(announcementService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	}

	// Attachment uploads stay disabled unless cloudinary credentials are configured.
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploadService := service.NewUploadService(uploader, cfg.UploadMaxSizeMB, logger)
		deps.UploadHandler = handler.NewUploadHandler(uploadService, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, deps)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
