package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string

	StoreDriver  string
	DatabaseFile string
	DatabaseURL  string

	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	GeminiAPIKey    string
	GeminiModel     string
	LLMMaxTurns     int
	LLMMaxRetries   int
	LLMTimeout      time.Duration
	LLMSystemPrompt string

	JWTSecret string

	HoroscopeBaseURL string
	HoroscopeTimeout time.Duration
	HoroscopeRetries int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration
	SMTPRetries  int

	CORSAllowedOrigins []string
}

var AppConfig Config

// LoadConfig fills AppConfig from the environment, after loading .env if one
// exists. Missing LLM credentials are not fatal here.
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:  getEnv("HTTP_PORT", "8000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreDriver:  getEnv("STORE_DRIVER", "json"),
		DatabaseFile: getEnv("DATABASE_FILE", "database.json"),
		DatabaseURL:  getEnv("DATABASE_URL", "agenda.db"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		LLMMaxTurns:     getEnvAsInt("LLM_MAX_TURNS", 8),
		LLMMaxRetries:   getEnvAsInt("LLM_MAX_RETRIES", 2),
		LLMTimeout:      getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		LLMSystemPrompt: getEnv("LLM_SYSTEM_PROMPT", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		HoroscopeBaseURL: getEnv("HOROSCOPE_BASE_URL", "https://horoscope-app-api.vercel.app/api/v1/get-horoscope"),
		HoroscopeTimeout: getEnvAsDuration("HOROSCOPE_TIMEOUT", 10*time.Second),
		HoroscopeRetries: getEnvAsInt("HOROSCOPE_RETRIES", 2),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "agenda@localhost"),
		SMTPTimeout:  getEnvAsDuration("SMTP_TIMEOUT", 10*time.Second),
		SMTPRetries:  getEnvAsInt("SMTP_RETRIES", 2),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	log.Warn().Str("key", key).Str("value", valueStr).Msg("Ignoring invalid duration")
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
