package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	Env            string
	DatabaseURL    string
	AllowedOrigins string

	// Image provider
	OpenAIKey            string
	ImageModel           string
	ImageGenerateTimeout time.Duration
	ImageEditTimeout     time.Duration
	MaxUploadBytes       int
	MaxImageBytes        int64

	// Auth collaborator and operator secret
	JWTSecret  string
	CronSecret string

	// Credits
	StartingCredits int64
	CostPerImage    int64
	ExtraHDPerImage int64
	CostEdit        int64
	TopupSchedule   string

	// Usage log retention, 0 keeps everything
	UsageRetentionDays int

	// Storage
	StorageProvider     string // s3, cloudinary, local, none
	StorageFolder       string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSRegion           string
	AWSS3Bucket         string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	UploadPath          string
	UploadBaseURL       string

	// Rate limiting
	RedisURL           string
	RateLimitPerMinute int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		Port:           os.Getenv("PORT"),
		Env:            os.Getenv("ENV"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),

		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		ImageModel:           os.Getenv("IMAGE_MODEL"),
		ImageGenerateTimeout: getEnvDuration("IMAGE_GENERATE_TIMEOUT", 55*time.Second),
		ImageEditTimeout:     getEnvDuration("IMAGE_EDIT_TIMEOUT", 50*time.Second),
		MaxUploadBytes:       getEnvInt("MAX_UPLOAD_BYTES", 8*1024*1024),
		MaxImageBytes:        int64(getEnvInt("MAX_IMAGE_BYTES", 6*1024*1024)),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		CronSecret: os.Getenv("CRON_SECRET"),

		StartingCredits: int64(getEnvInt("STARTING_CREDITS", 0)),
		CostPerImage:    int64(getEnvInt("CREDIT_COST_PER_IMAGE", 1)),
		ExtraHDPerImage: int64(getEnvInt("CREDIT_EXTRA_HD_PER_IMAGE", 1)),
		CostEdit:        int64(getEnvInt("CREDIT_COST_EDIT", 2)),
		TopupSchedule:   os.Getenv("TOPUP_SCHEDULE"),

		UsageRetentionDays: getEnvInt("USAGE_RETENTION_DAYS", 0),

		StorageProvider:     strings.ToLower(os.Getenv("STORAGE_PROVIDER")),
		StorageFolder:       os.Getenv("STORAGE_FOLDER"),
		AWSAccessKeyID:      os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:           os.Getenv("AWS_REGION"),
		AWSS3Bucket:         os.Getenv("AWS_S3_BUCKET"),
		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		UploadPath:          os.Getenv("UPLOAD_PATH"),
		UploadBaseURL:       os.Getenv("UPLOAD_BASE_URL"),

		RedisURL:           os.Getenv("REDIS_URL"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gpt-image-1"
	}
	if cfg.StorageProvider == "" {
		cfg.StorageProvider = "none"
	}
	if cfg.StorageFolder == "" {
		cfg.StorageFolder = "imaginario"
	}
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "us-east-1"
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = "./uploads"
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = "http://localhost:" + cfg.Port
	}

	return cfg
}

// IsProduction reports whether ENV is set to production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

// getEnvDuration accepts Go durations ("55s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("⚠️ Invalid %s=%q, using default %s", key, raw, fallback)
	return fallback
}
