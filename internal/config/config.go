package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL   string
	RunMigrations bool

	// Redis
	RedisURL string

	// Provider selection
	SceneImageProvider string // openai | gemini
	SceneVideoProvider string // runway | veo
	CaptionProvider    string // zapcap | local | none
	ArtifactStore      string // supabase | s3 | none

	// OpenAI (script, planning, prompts, gpt-image-1, Whisper)
	OpenAIKey        string
	OpenAIBaseURL    string
	OpenAITextModel  string
	OpenAIImageModel string

	// HeyGen (avatar)
	HeyGenKey        string
	HeyGenAvatarID   string
	HeyGenVoiceID    string
	HeyGenVoiceSpeed float64

	// Runway (image-to-video)
	RunwayKey string

	// Gemini / Veo
	GeminiKey        string
	GeminiImageModel string
	VeoModel         string

	// fal.ai (product try-on for the anchor scene, optional)
	FalKey string

	// ZapCap (captions)
	ZapCapKey        string
	ZapCapTemplateID string
	CaptionLanguage  string

	// Supabase Storage
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// S3 / R2
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	// Pipeline
	WorkRoot         string
	FFmpegPath       string
	FFprobePath      string
	SceneWorkers     int
	MaxScenes        int
	PromptStylesFile string
	JobTimeout       time.Duration

	// Worker
	MaxConcurrentJobs    int
	MaxConcurrentUploads int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RunMigrations:         getEnvBool("RUN_MIGRATIONS", true),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SceneImageProvider:    strings.ToLower(getEnv("SCENE_IMAGE_PROVIDER", "openai")),
		SceneVideoProvider:    strings.ToLower(getEnv("SCENE_VIDEO_PROVIDER", "runway")),
		CaptionProvider:       strings.ToLower(getEnv("CAPTION_PROVIDER", "zapcap")),
		ArtifactStore:         strings.ToLower(getEnv("ARTIFACT_STORE", "none")),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAITextModel:       getEnv("OPENAI_TEXT_MODEL", "gpt-4o"),
		OpenAIImageModel:      getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		HeyGenKey:             getEnv("HEYGEN_API_KEY", ""),
		HeyGenAvatarID:        getEnv("HEYGEN_AVATAR_ID", ""),
		HeyGenVoiceID:         getEnv("HEYGEN_VOICE_ID", ""),
		HeyGenVoiceSpeed:      getEnvFloat("HEYGEN_VOICE_SPEED", 1.1),
		RunwayKey:             getEnv("RUNWAY_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiImageModel:      getEnv("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview"),
		VeoModel:              getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		FalKey:                getEnv("FAL_KEY", ""),
		ZapCapKey:             getEnv("ZAPCAP_API_KEY", ""),
		ZapCapTemplateID:      getEnv("ZAPCAP_TEMPLATE_ID", ""),
		CaptionLanguage:       getEnv("CAPTION_LANGUAGE", "en"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "ad-videos"),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		S3Region:              getEnv("S3_REGION", "auto"),
		S3Endpoint:            getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:         getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PublicBaseURL:       getEnv("S3_PUBLIC_BASE_URL", ""),
		WorkRoot:              getEnv("WORK_ROOT", "work"),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		SceneWorkers:          getEnvInt("SCENE_WORKERS", 2),
		MaxScenes:             getEnvInt("MAX_SCENES", 3),
		PromptStylesFile:      getEnv("PROMPT_STYLES_FILE", ""),
		JobTimeout:            getEnvDuration("JOB_TIMEOUT", 60*time.Minute),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		MaxConcurrentUploads:  getEnvInt("MAX_CONCURRENT_UPLOADS", 3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys, including those of the selected providers.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.HeyGenKey == "" {
		return fmt.Errorf("HEYGEN_API_KEY is required")
	}

	switch c.SceneImageProvider {
	case "openai":
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when SCENE_IMAGE_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown SCENE_IMAGE_PROVIDER %q (want openai or gemini)", c.SceneImageProvider)
	}

	switch c.SceneVideoProvider {
	case "runway":
		if c.RunwayKey == "" {
			return fmt.Errorf("RUNWAY_API_KEY is required when SCENE_VIDEO_PROVIDER=runway")
		}
	case "veo":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when SCENE_VIDEO_PROVIDER=veo")
		}
	default:
		return fmt.Errorf("unknown SCENE_VIDEO_PROVIDER %q (want runway or veo)", c.SceneVideoProvider)
	}

	switch c.CaptionProvider {
	case "local", "none":
	case "zapcap":
		if c.ZapCapKey == "" {
			return fmt.Errorf("ZAPCAP_API_KEY is required when CAPTION_PROVIDER=zapcap")
		}
	default:
		return fmt.Errorf("unknown CAPTION_PROVIDER %q (want zapcap, local or none)", c.CaptionProvider)
	}

	switch c.ArtifactStore {
	case "none":
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when ARTIFACT_STORE=supabase")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when ARTIFACT_STORE=s3")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_STORE %q (want supabase, s3 or none)", c.ArtifactStore)
	}

	if c.SceneWorkers < 1 {
		c.SceneWorkers = 1
	}
	if c.MaxScenes < 0 {
		c.MaxScenes = 0
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
