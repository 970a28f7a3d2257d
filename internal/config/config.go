package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// TrustedProxies lists proxy IPs/CIDRs allowed to set X-Forwarded-For.
	// Empty means the client IP is always the peer address.
	TrustedProxies []string
	MaxBodyBytes   int64

	LogFormat string
	LogLevel  string

	// Primary store. Empty DBDSN and MongoURI means the history store runs on
	// the local file only and the config store is unavailable.
	DBDSN          string
	DBTimeout      time.Duration
	MongoURI       string
	HistoriaDBName string

	HistoryFile    string
	HistoryFileMax int

	// AI provider
	AIProvider            string
	GeminiAPIKey          string
	GeminiModel           string
	GeminiBaseURL         string
	OllamaBaseURL         string
	OllamaModel           string
	OpenRouterBaseURL     string
	OpenRouterAPIKey      string
	OpenRouterModel       string
	OpenRouterSiteURL     string
	OpenRouterAppName     string
	CompletionTimeout     time.Duration
	ChatContextWindowSize int

	OpenWeatherAPIKey string
	WeatherLocation   string

	AdminTokenTTL      time.Duration
	LoginMaxFailures   int
	LoginFailureWindow time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	BotName string
}

func Load() Config {
	return Config{
		Port:            getEnv("PORT", "3000"),
		GinMode:         getEnv("GIN_MODE", "release"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:     getList("CORS_ORIGINS", []string{"*"}),
		TrustedProxies:  getList("TRUSTED_PROXIES", nil),
		MaxBodyBytes:    int64(getInt("MAX_BODY_BYTES", 2<<20)),

		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		// DSN demo：
		// app:apppass@tcp(127.0.0.1:3306)/mestre?charset=utf8mb4&parseTime=true&loc=Local
		// sqlite:./data/mestre.db
		DBDSN:          os.Getenv("DB_DSN"),
		DBTimeout:      getDuration("DB_TIMEOUT", 5*time.Second),
		MongoURI:       os.Getenv("MONGODB_URI"),
		HistoriaDBName: getEnv("HISTORIA_DB_NAME", "HistoricoChats"),

		HistoryFile:    getEnv("HISTORY_FILE", "./logs/historic_sessions.json"),
		HistoryFileMax: getInt("HISTORY_FILE_MAX", 100),

		AIProvider:            strings.ToLower(getEnv("AI_PROVIDER", "gemini")),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:         os.Getenv("GEMINI_BASE_URL"),
		OllamaBaseURL:         getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:           getEnv("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL:     getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:      os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:       getEnv("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL:     os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName:     os.Getenv("OPENROUTER_APP_NAME"),
		CompletionTimeout:     getDuration("COMPLETION_TIMEOUT", 30*time.Second),
		ChatContextWindowSize: getInt("CHAT_CONTEXT_WINDOW_SIZE", 40),

		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherLocation:   getEnv("WEATHER_LOCATION", "São Paulo"),

		AdminTokenTTL:      getDuration("ADMIN_TOKEN_TTL", time.Hour),
		LoginMaxFailures:   getInt("LOGIN_MAX_FAILURES", 5),
		LoginFailureWindow: getDuration("LOGIN_FAILURE_WINDOW", 15*time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getEnv("RABBIT_QUEUE", "access_logs"),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),

		BotName: getEnv("BOT_NAME", "Chatbot de Apostas Esportivas"),
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.HistoryFile == "" {
		return fmt.Errorf("HISTORY_FILE cannot be empty")
	}
	if c.HistoryFileMax <= 0 {
		return fmt.Errorf("HISTORY_FILE_MAX must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be > 0")
	}
	if c.AdminTokenTTL <= 0 {
		return fmt.Errorf("ADMIN_TOKEN_TTL must be > 0")
	}
	switch c.AIProvider {
	case "gemini", "ollama", "openrouter":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER=%q", c.AIProvider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
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

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
