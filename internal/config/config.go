package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultAPIBaseURL = "https://cityalert-backend.onrender.com/api"

type Config struct {
	Env         string
	Port        string
	APIBaseURL  string
	HTTPTimeout time.Duration
	Chat        ChatConfig
	Attachment  AttachmentConfig
	Session     SessionConfig
	Map         MapConfig
}

type ChatConfig struct {
	// Provider is one of "gemini", "openai", "proxy" or "fake".
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	RPS           float64
	Burst         int
}

type AttachmentConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SessionConfig struct {
	MaxSessions int
	TTL         time.Duration
}

type MapConfig struct {
	CenterLat float64
	CenterLng float64
	Zoom      int
}

func Load() (*Config, error) {
	env := firstNonEmpty(strings.TrimSpace(os.Getenv("CITYALERT_ENV")), "development")
	if env == "development" {
		_ = godotenv.Load()
	}

	port := getEnv("PORT", "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	return &Config{
		Env:         env,
		Port:        port,
		APIBaseURL:  strings.TrimRight(getEnv("API_BASE_URL", DefaultAPIBaseURL), "/"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		Chat:        loadChatConfig(),
		Attachment:  loadAttachmentConfig(),
		Session: SessionConfig{
			MaxSessions: getEnvInt("SESSION_MAX", 1024),
			TTL:         getEnvDuration("SESSION_TTL", 30*time.Minute),
		},
		Map: MapConfig{
			CenterLat: getEnvFloat("MAP_CENTER_LAT", 37.7749),
			CenterLng: getEnvFloat("MAP_CENTER_LNG", -122.4194),
			Zoom:      getEnvInt("MAP_ZOOM", 12),
		},
	}, nil
}

func loadChatConfig() ChatConfig {
	cfg := ChatConfig{
		Provider:      strings.ToLower(getEnv("CHAT_PROVIDER", "")),
		GeminiAPIKey:  firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		RPS:           getEnvFloat("LLM_RPS", 0),
		Burst:         getEnvInt("LLM_BURST", 1),
	}
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider(cfg)
	}
	return cfg
}

// defaultProvider prefers a direct model key and falls back to the
// backend's /chat/gemini proxy.
func defaultProvider(cfg ChatConfig) string {
	switch {
	case cfg.GeminiAPIKey != "":
		return "gemini"
	case cfg.OpenAIAPIKey != "":
		return "openai"
	default:
		return "proxy"
	}
}

func loadAttachmentConfig() AttachmentConfig {
	return AttachmentConfig{
		Endpoint:  getEnv("ATTACHMENT_S3_ENDPOINT", ""),
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ATTACHMENT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ATTACHMENT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ATTACHMENT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ATTACHMENT_S3_BUCKET")), "cityalert-images"),
		UseSSL:    getEnvBool("ATTACHMENT_S3_USE_SSL", true),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// CanUseS3 reports whether uploads can go to object storage. Without it,
// images travel as placeholders.
func (c AttachmentConfig) CanUseS3() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

func (c ChatConfig) Enabled() bool {
	switch c.Provider {
	case "gemini":
		return c.GeminiAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "proxy", "fake":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare integers are seconds
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
