package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Supported text-completion providers.
const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

// Config holds the configuration for the application.
type Config struct {
	Port         string
	DataDir      string
	DatabasePath string

	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqAPIURL   string
	GroqModel    string

	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool
	Location      *time.Location

	// Telegram Config (optional, admin alerts only)
	TelegramBotToken    string
	TelegramAdminChatID int64

	MetricsRetentionDays  int
	GenerateRatePerMinute int
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding ones already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	dataDir := getenv("DATA_DIR", "data")

	provider := getenv("LLM_PROVIDER", ProviderGemini)

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		geminiAPIKey = os.Getenv("GOOGLE_API_KEY")
	}
	groqAPIKey := os.Getenv("GROQ_API_KEY")

	switch provider {
	case ProviderGemini:
		if geminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderGroq:
		if groqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", provider)
	}

	ttlHours, err := getenvInt("SESSION_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}

	cookieSecure, err := strconv.ParseBool(getenv("COOKIE_SECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid COOKIE_SECURE: %w", err)
	}

	loc := time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
	}

	var adminChatID int64
	if s := os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); s != "" {
		adminChatID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_CHAT_ID: %w", err)
		}
	}

	retention, err := getenvInt("METRICS_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	ratePerMinute, err := getenvInt("GENERATE_RATE_PER_MINUTE", 6)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                  getenv("PORT", "8080"),
		DataDir:               dataDir,
		DatabasePath:          getenv("DATABASE_PATH", filepath.Join(dataDir, "metrics.db")),
		LLMProvider:           provider,
		GeminiAPIKey:          geminiAPIKey,
		GeminiModel:           getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		GroqAPIKey:            groqAPIKey,
		GroqAPIURL:            os.Getenv("GROQ_API_URL"),
		GroqModel:             os.Getenv("GROQ_MODEL"),
		SessionSecret:         os.Getenv("SESSION_SECRET"),
		SessionTTL:            time.Duration(ttlHours) * time.Hour,
		CookieSecure:          cookieSecure,
		Location:              loc,
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAdminChatID:   adminChatID,
		MetricsRetentionDays:  retention,
		GenerateRatePerMinute: ratePerMinute,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
