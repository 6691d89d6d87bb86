package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration values.
type Config struct {
	Port          string
	DatabaseURL   string
	StatePath     string
	CancelOnReset bool
	Gemini        GeminiConfig
	Imagen        ImagenConfig
	Media         MediaConfig

	// RenderProvider selects the outfit image backend: "gemini"
	// (default) or "imagen".
	RenderProvider string
}

// GeminiConfig describes the Gemini API access used for both style
// suggestions and outfit rendering.
type GeminiConfig struct {
	APIKey          string
	SuggestionModel string
	ImageModel      string
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
}

// ImagenConfig describes the optional Vertex AI Imagen backend.
type ImagenConfig struct {
	ProjectID      string
	Location       string
	Model          string
	ServiceAccount string
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	PublicURL      string
	KeyPrefix      string
	ForcePathStyle bool
	LocalDir       string
}

// FromEnv loads configuration from the environment, reading a .env
// file first when present, and applies defaults.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env: %v", err)
	}

	cfg := Config{
		Port:           getenv("APP_PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StatePath:      os.Getenv("STATE_PATH"),
		CancelOnReset:  getenvBool("CANCEL_RENDERS_ON_RESET", false),
		RenderProvider: strings.ToLower(getenv("RENDER_PROVIDER", "gemini")),
		Gemini: GeminiConfig{
			APIKey:          os.Getenv("GEMINI_API_KEY"),
			SuggestionModel: getenv("GEMINI_SUGGESTION_MODEL", "gemini-2.5-flash"),
			ImageModel:      getenv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
			RequestTimeout:  getenvDuration("GEMINI_REQUEST_TIMEOUT", 0),
			CacheTTL:        getenvDuration("SUGGESTION_CACHE_TTL", 0),
		},
		Imagen: ImagenConfig{
			ProjectID:      os.Getenv("IMAGEN_PROJECT_ID"),
			Location:       getenv("IMAGEN_LOCATION", "us-central1"),
			Model:          getenv("IMAGEN_MODEL", "imagen-3.0-capability-001"),
			ServiceAccount: os.Getenv("IMAGEN_SERVICE_ACCOUNT_JSON"),
		},
		Media: MediaConfig{
			Bucket:         os.Getenv("S3_BUCKET"),
			Region:         os.Getenv("S3_REGION"),
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			PublicURL:      os.Getenv("S3_PUBLIC_URL"),
			KeyPrefix:      strings.Trim(os.Getenv("S3_KEY_PREFIX"), "/"),
			ForcePathStyle: getenvBool("S3_FORCE_PATH_STYLE", false),
			LocalDir:       os.Getenv("MEDIA_LOCAL_DIR"),
		},
	}

	if cfg.Port == "" {
		log.Fatal("APP_PORT cannot be empty")
	}
	if cfg.Gemini.APIKey == "" {
		log.Fatal("GEMINI_API_KEY is required")
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("config: %s: %v", key, err)
		return fallback
	}

	return parsed
}
