package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageCloudinary = "cloudinary"
	StorageMinio      = "minio"
	StorageLocal      = "local"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	EventPrefix string
	JWTSecret   string

	StorageDriver          string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MinioEndpoint          string
	MinioAccessKey         string
	MinioSecretKey         string
	MinioBucket            string
	MinioUseSSL            bool
	MinioPublicURL         string
	LocalStorageDir        string
	LocalStorageBaseURL    string

	UploadMaxSizeMB int
	UploadMaxFiles  int

	LockTTL  time.Duration
	LockWait time.Duration

	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	LogLevel string
	LogFile  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsDevelopment reports whether the service runs in a local environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "" || c.AppEnv == "development" || c.AppEnv == "local"
}

// UploadMaxBytes is the per-file upload limit in bytes.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxSizeMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TUGAS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Tugas API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("event.prefix", "tugas")
	v.SetDefault("storage.driver", StorageLocal)
	v.SetDefault("cloudinary.folder", "tugas/submissions")
	v.SetDefault("minio.bucket", "tugas")
	v.SetDefault("local.dir", "./uploads")
	v.SetDefault("local.base_url", "/uploads")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("upload.max_files", 10)
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.wait", "5s")
	v.SetDefault("rate_limit.submit", 30)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("log.level", "info")

	lockTTL, err := parseDuration(v, "lock.ttl", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	lockWait, err := parseDuration(v, "lock.wait", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "rate_limit.window", time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventPrefix:            v.GetString("event.prefix"),
		JWTSecret:              v.GetString("jwt.secret"),
		StorageDriver:          strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MinioEndpoint:          v.GetString("minio.endpoint"),
		MinioAccessKey:         v.GetString("minio.access_key"),
		MinioSecretKey:         v.GetString("minio.secret_key"),
		MinioBucket:            v.GetString("minio.bucket"),
		MinioUseSSL:            v.GetBool("minio.use_ssl"),
		MinioPublicURL:         v.GetString("minio.public_url"),
		LocalStorageDir:        v.GetString("local.dir"),
		LocalStorageBaseURL:    v.GetString("local.base_url"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		UploadMaxFiles:         v.GetInt("upload.max_files"),
		LockTTL:                lockTTL,
		LockWait:               lockWait,
		SubmitRateLimit:        v.GetInt("rate_limit.submit"),
		SubmitRateWindow:       rateWindow,
		LogLevel:               v.GetString("log.level"),
		LogFile:                v.GetString("log.file"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.StorageDriver {
	case StorageCloudinary, StorageMinio, StorageLocal:
	default:
		return Config{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}
	if cfg.UploadMaxFiles <= 0 {
		cfg.UploadMaxFiles = 10
	}
	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return fallback, nil
	}

	return value, nil
}
