package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultMaxUploadBytes is the upload ceiling (5 GiB).
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024 * 1024

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	AWS      AWSConfig
	Queue    QueueConfig
	Upload   UploadConfig
	Capture  CaptureConfig
	WebRTC   WebRTCConfig
	Client   ClientConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadHeaderTimeout  int
	ReadTimeout        int // covers the whole body; 0 so large uploads are not cut off
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds bearer token and API key settings.
// JWTSecret is the project's JWT signing secret; APIKey is the public (anon) key
// every request must present in the apikey header.
type AuthConfig struct {
	JWTSecret   string
	APIKey      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the media bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	MediaBucket          string
	Endpoint             string // optional S3-compatible endpoint (minio, R2)
	UsePathStyle         bool
	PresignExpireMinutes int
}

// QueueConfig selects the processing job transport.
type QueueConfig struct {
	Backend      string // "redis", "nats" or "local" (in-process)
	NATSURL      string
	StaleAfter   time.Duration
	WaitTimeout  time.Duration
	RecoverEvery time.Duration
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	MaxBytes     int64
	SuccessDelay time.Duration
}

// CaptureConfig holds ffmpeg screen capture settings (desktop CLI) and probe binaries.
type CaptureConfig struct {
	FFmpegPath  string
	FFprobePath string
	InputFormat string // x11grab, avfoundation, gdigrab
	Input       string // :0.0, "1", desktop
	FrameRate   int
	OutputDir   string
}

// WebRTCConfig holds STUN/TURN ICE server URLs for browser capture ingest.
type WebRTCConfig struct {
	ICEUrls []string
}

// ClientConfig holds settings for the capture CLI talking to the API.
type ClientConfig struct {
	APIURL      string
	APIKey      string
	AccessToken string
	UserID      string
}

// MetricsConfig holds the worker metrics listener.
type MetricsConfig struct {
	WorkerAddr string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadHeaderTimeout:  getEnvInt("READ_HEADER_TIMEOUT_SEC", 10),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 0),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0), // uploads can take a long time
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "seeksy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", "change-me-in-production"),
			APIKey:      getEnv("PUBLIC_API_KEY", ""),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 1),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MediaBucket:          getEnv("AWS_S3_MEDIA_BUCKET", "seeksy-media"),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			UsePathStyle:         getEnvBool("AWS_S3_PATH_STYLE", false),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Queue: QueueConfig{
			Backend:      strings.ToLower(getEnv("QUEUE_BACKEND", "redis")),
			NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
			StaleAfter:   getEnvDuration("JOB_STALE_AFTER", 30*time.Minute),
			WaitTimeout:  getEnvDuration("JOB_WAIT_TIMEOUT", 30*time.Minute),
			RecoverEvery: getEnvDuration("JOB_RECOVER_EVERY", 5*time.Minute),
		},
		Upload: UploadConfig{
			MaxBytes:     getEnvInt64("UPLOAD_MAX_BYTES", DefaultMaxUploadBytes),
			SuccessDelay: getEnvDuration("UPLOAD_SUCCESS_DELAY", 1500*time.Millisecond),
		},
		Capture: CaptureConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			InputFormat: getEnv("CAPTURE_INPUT_FORMAT", "x11grab"),
			Input:       getEnv("CAPTURE_INPUT", ":0.0"),
			FrameRate:   getEnvInt("CAPTURE_FRAME_RATE", 30),
			OutputDir:   getEnv("CAPTURE_OUTPUT_DIR", ""),
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		Client: ClientConfig{
			APIURL:      strings.TrimRight(getEnv("SEEKSY_API_URL", "http://localhost:8080"), "/"),
			APIKey:      getEnv("SEEKSY_API_KEY", ""),
			AccessToken: getEnv("SEEKSY_ACCESS_TOKEN", ""),
			UserID:      getEnv("SEEKSY_USER_ID", ""),
		},
		Metrics: MetricsConfig{
			WorkerAddr: getEnv("WORKER_METRICS_ADDR", ":9090"),
		},
	}
	if cfg.Upload.MaxBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	switch cfg.Queue.Backend {
	case "redis", "nats", "local":
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.Queue.Backend)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
