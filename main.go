package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"jansunwai/classifier"
	"jansunwai/config"
	"jansunwai/models"
	"jansunwai/notification"
	"jansunwai/repository"
	"jansunwai/routes"
	"jansunwai/schema"
	"jansunwai/service"
	"jansunwai/utils"
	"jansunwai/worker"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg := config.LoadConfig()
	clock := utils.RealClock{}

	// Database connection (UTC for consistent timestamps)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
	)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("Failed to open database connection: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Database connection established")

	schema.InitializeDatabase(db)
	schema.ValidateRequiredColumns(db, nil)

	// Redis: intake sessions and per-address rate limiting
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Repositories
	complaintRepo := repository.NewComplaintRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	proofRepo := repository.NewProofRepository(db)
	signoffRepo := repository.NewSignoffRepository(db)
	referenceRepo := repository.NewReferenceRepository(db, clock)
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient)

	// Classifier: model-backed when a key is configured, keyword-only otherwise
	keywordClassifier := classifier.NewKeywordClassifier()
	var cls classifier.Classifier = keywordClassifier
	if cfg.Classifier.APIKey != "" {
		cls = classifier.NewModelClassifier(cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Classifier.Timeout, keywordClassifier)
		log.Printf("Classifier: model %s (timeout %v)", cfg.Classifier.Model, cfg.Classifier.Timeout)
	} else {
		log.Println("Classifier: keyword fallback only (no API key configured)")
	}

	// Outbound notifications: DB-backed queue drained by a worker
	notifyQueue := notification.NewQueue(db, clock)
	dispatcher := notification.NewDispatcher(notifyQueue, notification.LogSender{})

	// Services
	lifecycleService := service.NewLifecycleService(
		complaintRepo, proofRepo, signoffRepo, auditRepo, referenceRepo, userRepo,
		cls, notifyQueue, clock,
		cfg.Classifier.ConfidenceThreshold, cfg.Intake.DefaultSLADays,
	)
	resolutionService := service.NewResolutionService(
		complaintRepo, proofRepo, signoffRepo, auditRepo, lifecycleService,
		notifyQueue, clock, cfg.Scheduler.DisputeSLAFactor,
	)
	escalationService := service.NewEscalationService(
		complaintRepo, notifyQueue, clock,
		models.EscalationLadder{
			L1Days: cfg.Scheduler.LadderL1Days,
			L2Days: cfg.Scheduler.LadderL2Days,
			L3Days: cfg.Scheduler.LadderL3Days,
		},
		cfg.Scheduler.AutoCloseDays,
		cfg.Scheduler.MaxConsecutiveFailures,
		cfg.Scheduler.PerComplaintTimeout,
	)
	intakeService := service.NewIntakeService(
		sessionRepo, lifecycleService, clock,
		cfg.Intake.SessionTTL, cfg.Intake.RateLimitPerMinute,
	)
	authService := service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenHours)
	attachmentService := service.NewAttachmentService(
		cfg.Attachment.SigningSecret, cfg.Attachment.URLTTL, cfg.Attachment.BaseURL, clock)

	// Workers
	escalationWorker := worker.NewEscalationWorker(escalationService, cfg.Scheduler.TickInterval)
	escalationWorker.Start()
	notificationWorker := worker.NewNotificationWorker(dispatcher, 30*time.Second)
	notificationWorker.Start()

	router := routes.SetupRoutes(
		lifecycleService, resolutionService, intakeService, authService, attachmentService,
		cfg.Auth.JWTSecret, os.Getenv("INTAKE_WEBHOOK_TOKEN"),
	)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	escalationWorker.Stop()
	notificationWorker.Stop()
	if err := server.Close(); err != nil {
		log.Printf("Server close error: %v", err)
	}
	log.Println("Shutdown complete")
}
