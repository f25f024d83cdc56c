package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds backend configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	AWS          AWSConfig
	FaceAnalysis FaceAnalysisConfig
	Speech       SpeechConfig
	LLM          LLMConfig
	Worker       WorkerConfig
	Questions    QuestionsConfig
	Email        EmailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	CookieSecure       bool
	CookieDomain       string
	EmbeddedWorker     bool
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
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds credentials and the bucket answer videos are stored in.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	VideosBucket         string
	PresignExpireMinutes int
	Endpoint             string // S3 compatible store, e.g. http://localhost:9000
	UsePathStyle         bool
}

// FaceAnalysisConfig points at the gaze/emotion scoring service.
type FaceAnalysisConfig struct {
	URL     string
	Timeout time.Duration
}

// SpeechConfig configures Google Speech-to-Text.
type SpeechConfig struct {
	CredentialsFile string
	LanguageCode    string
	PollInterval    time.Duration
}

// LLMConfig configures the chat completion endpoint used for feedback.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// WorkerConfig holds transcription worker settings.
type WorkerConfig struct {
	FFmpegPath  string
	TempDir     string // empty = os.TempDir()
	JobTimeout  time.Duration
	MaxJobAge   time.Duration // keep at or below the client's POLL_MAX_WAIT
	StatusTTL   time.Duration
	Concurrency int
}

// EmailConfig for SMTP delivery of account emails and the links they carry.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string // empty = log emails instead of sending
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	AppURL      string
	VerifyTTL   time.Duration
	ResetTTL    time.Duration
}

// QuestionsConfig bounds question batches.
type QuestionsConfig struct {
	DefaultBatch int
	MaxBatch     int
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

// Load reads backend configuration from environment, with optional .env file.
func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			CookieSecure:       getEnvBool("COOKIE_SECURE", false),
			CookieDomain:       getEnv("COOKIE_DOMAIN", ""),
			EmbeddedWorker:     getEnvBool("EMBEDDED_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "mimic"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "ap-northeast-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			VideosBucket:         getEnv("AWS_S3_VIDEOS_BUCKET", "mimic-interview-videos"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			UsePathStyle:         getEnvBool("AWS_S3_PATH_STYLE", false),
		},
		FaceAnalysis: FaceAnalysisConfig{
			URL:     getEnv("FACE_ANALYSIS_URL", "http://localhost:8001/analyze"),
			Timeout: getEnvDuration("FACE_ANALYSIS_TIMEOUT", 2*time.Minute),
		},
		Speech: SpeechConfig{
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			LanguageCode:    getEnv("SPEECH_LANGUAGE_CODE", "ja-JP"),
			PollInterval:    getEnvDuration("SPEECH_POLL_INTERVAL", 2*time.Second),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			BaseURL: getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1/chat/completions"),
			Model:   getEnv("LLM_MODEL", "google/gemini-2.0-flash-001"),
			Referer: getEnv("LLM_REFERER", "https://mimic.local"),
			Title:   getEnv("LLM_TITLE", "Mimic Interview"),
			Timeout: getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Worker: WorkerConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			TempDir:     getEnv("WORKER_TEMP_DIR", ""),
			JobTimeout:  getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),
			MaxJobAge:   getEnvDuration("WORKER_JOB_MAX_AGE", 5*time.Minute),
			StatusTTL:   getEnvDuration("TRANSCRIPTION_STATUS_TTL", 24*time.Hour),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		},
		Questions: QuestionsConfig{
			DefaultBatch: getEnvInt("QUESTION_BATCH_DEFAULT", 3),
			MaxBatch:     getEnvInt("QUESTION_BATCH_MAX", 20),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Mimic Interview"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
			AppURL:      getEnv("APP_BASE_URL", "http://localhost:5173"),
			VerifyTTL:   getEnvDuration("EMAIL_VERIFY_TTL", 24*time.Hour),
			ResetTTL:    getEnvDuration("PASSWORD_RESET_TTL", time.Hour),
		},
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is empty")
	}
	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = 1
	}
	return cfg, nil
}

// ClientConfig holds settings for the practice CLI.
type ClientConfig struct {
	APIURL       string
	SessionFile  string
	LockFile     string
	PollInterval time.Duration
	PollMaxWait  time.Duration
	BatchSize    int
	FFmpegPath   string
	DeviceInput  []string // ffmpeg input args; empty = platform default
	DeviceFile   string   // replay a recorded webm instead of opening the camera
	UIAddr       string   // empty disables the progress UI
	HTTPTimeout  time.Duration
}

// LoadClient reads CLI configuration from environment, with optional .env file.
func LoadClient() (*ClientConfig, error) {
	loadDotenv()

	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	cfg := &ClientConfig{
		APIURL:       strings.TrimRight(getEnv("MIMIC_API_URL", "http://localhost:8080"), "/"),
		SessionFile:  getEnv("MIMIC_SESSION_FILE", filepath.Join(dir, "session.json")),
		LockFile:     getEnv("MIMIC_DEVICE_LOCK", filepath.Join(dir, "device.lock")),
		PollInterval: getEnvDuration("POLL_INTERVAL", 3*time.Second),
		PollMaxWait:  getEnvDuration("POLL_MAX_WAIT", 5*time.Minute),
		BatchSize:    getEnvInt("QUESTION_BATCH", 3),
		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		DeviceInput:  splitTrim(getEnv("MIMIC_DEVICE_INPUT", ""), " "),
		DeviceFile:   getEnv("MIMIC_DEVICE_FILE", ""),
		UIAddr:       getEnv("MIMIC_UI_ADDR", ""),
		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT", 60*time.Second),
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("config: POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

func loadDotenv() {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)
}

func stateDir() (string, error) {
	if v := os.Getenv("MIMIC_STATE_DIR"); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve state dir: %w", err)
	}
	return filepath.Join(base, "mimic"), nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
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

// getEnvDuration accepts Go durations ("3s") or plain seconds ("3").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
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
