package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/auth"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/ratelimit"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/scheduler"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/upload"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/usage"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/handlers"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/models"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/repositories"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/modules/imaging/services"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/config"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/database"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/utils"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/shared/validation"

	_ "github.com/MuhamadAgungGumelar/imaginario-api/cmd/api/docs"
)

const localDatabaseURL = "sqlite:imaginario.db"

// @title Imaginario API
// @version 1.0
// @description Credit-gated image generation and editing
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.LoadConfig()
	utils.InitLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("🚀 Starting imaginario-api")

	// Init database. Without DATABASE_URL we run on a local SQLite file
	// and create the schema ourselves; Postgres goes through cmd/migrate.
	dbURL := cfg.DatabaseURL
	if dbURL == "" {
		log.Warn().Str("url", localDatabaseURL).Msg("⚠️  DATABASE_URL not set, using local SQLite")
		dbURL = localDatabaseURL
	}
	db, err := database.NewDB(dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect database")
	}

	// Init repositories
	creditStore := credits.NewGormStore(db.GORM)
	usageService := usage.NewService(db.GORM)
	generationRepo := repositories.NewGenerationRepo(db.GORM)
	planRepo := repositories.NewPlanRepo(db.GORM)
	subscriptionRepo := repositories.NewSubscriptionRepo(db.GORM)

	if db.Dialect == "sqlite" {
		if err := autoMigrate(db, creditStore, usageService); err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to migrate local database")
		}
	}
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := planRepo.EnsureDefaults(seedCtx, models.DefaultPlans()); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to seed default billing plans")
	}
	cancelSeed()

	// Init core services
	ledger := credits.NewLedger(creditStore, credits.WithStartingBalance(cfg.StartingCredits))
	policy := credits.Policy{
		PerImage:    cfg.CostPerImage,
		HDSurcharge: cfg.ExtraHDPerImage,
		EditPerUnit: cfg.CostEdit,
	}

	provider, err := imagegen.NewProvider(imagegen.ProviderConfig{
		Type:      imagegen.ProviderOpenAI,
		OpenAIKey: cfg.OpenAIKey,
		Model:     cfg.ImageModel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize image provider")
	}

	storage, err := upload.NewServiceFromConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize storage")
	}

	dispatcher := jobs.NewDispatcher(jobs.DefaultConfig())
	recorder := usage.NewRecorder(usageService, dispatcher)
	validator := validation.New()

	imageConfig := services.DefaultImageConfig()
	imageConfig.Model = cfg.ImageModel
	imageConfig.GenerateTimeout = cfg.ImageGenerateTimeout
	imageConfig.EditTimeout = cfg.ImageEditTimeout

	imageService := services.NewImageService(ledger, policy, provider, storage, generationRepo, recorder, dispatcher, imageConfig)
	billingService := services.NewBillingService(ledger, policy, planRepo, subscriptionRepo, usageService)

	// Rate limiting (Redis when configured, in-process otherwise)
	limiterCtx, cancelLimiter := context.WithTimeout(context.Background(), 3*time.Second)
	limiter, closeLimiter := ratelimit.NewFromURL(limiterCtx, cfg.RedisURL, cfg.RateLimitPerMinute, time.Minute)
	cancelLimiter()

	// Scheduled jobs
	cronJobs := scheduler.New()
	if cfg.TopupSchedule != "" {
		err := cronJobs.Add("monthly-topup", cfg.TopupSchedule, 5*time.Minute, func(ctx context.Context) error {
			_, err := billingService.MonthlyTopup(ctx)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.TopupSchedule).Msg("❌ Invalid TOPUP_SCHEDULE")
		}
	}
	if cfg.UsageRetentionDays > 0 {
		days := cfg.UsageRetentionDays
		err := cronJobs.Add("usage-retention", "@daily", time.Minute, func(ctx context.Context) error {
			_, err := usageService.DeleteOldLogs(ctx, days)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to schedule usage retention")
		}
	}
	cronJobs.Start()

	// Init handlers
	routes := &handlers.Routes{
		Image:     handlers.NewImageHandler(imageService, generationRepo, validator, cfg.MaxImageBytes),
		Billing:   handlers.NewBillingHandler(billingService),
		Admin:     handlers.NewAdminHandler(billingService, validator),
		Health:    handlers.NewHealthHandler(db, provider.GetProviderName(), storage.GetProviderName()),
		Auth:      auth.AuthMiddleware(auth.NewJWTService(cfg.JWTSecret)),
		Operator:  auth.RequireSecret(cfg.CronSecret),
		RateLimit: ratelimit.Middleware(limiter, auth.UserID),
	}

	// Init Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Imaginario API",
		BodyLimit: cfg.MaxUploadBytes,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(utils.AccessLog())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, x-cron-secret",
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if cfg.StorageProvider == "local" {
		app.Static("/uploads", cfg.UploadPath)
	}

	routes.Register(app)

	go func() {
		log.Info().Str("port", cfg.Port).Msgf("📄 Swagger UI: http://localhost:%s/swagger/", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("❌ Server stopped")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("🛑 Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
		log.Error().Err(err).Msg("❌ HTTP shutdown failed")
	}
	cronJobs.Stop()
	dispatcher.Stop()
	if err := closeLimiter(); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to close rate limiter")
	}
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to close database")
	}

	log.Info().Msg("👋 Bye")
}

func autoMigrate(db *database.DB, store *credits.GormStore, usageService *usage.Service) error {
	if err := store.AutoMigrate(); err != nil {
		return err
	}
	if err := usageService.AutoMigrate(); err != nil {
		return err
	}
	return db.GORM.AutoMigrate(&models.Generation{}, &models.BillingPlan{}, &models.Subscription{})
}
