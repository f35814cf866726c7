package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	JWTSecret   string

	// LLMProvider selects the completion/embedding backend: "openai" or
	// "gemini". The server refuses to start without one; embedding still
	// falls back to the local vectorizer when the provider is unreachable.
	LLMProvider  string
	OpenAIAPIKey string
	GeminiAPIKey string
	ChatModel    string

	// Monthly limits per account; 0 disables a limit.
	MessagesLimit int
	TokensLimit   int

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	MinScore     float64

	CompletionTimeout time.Duration
	EmbedDelay        time.Duration
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "murshid.db"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		LLMProvider:  getEnv("LLM_PROVIDER", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		ChatModel:    getEnv("CHAT_MODEL", ""),

		MessagesLimit: getEnvAsInt("MESSAGES_LIMIT", 1000),
		TokensLimit:   getEnvAsInt("TOKENS_LIMIT", 500000),

		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 800),
		ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 100),
		TopK:         getEnvAsInt("RETRIEVAL_TOP_K", 3),
		MinScore:     getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.3),

		CompletionTimeout: time.Duration(getEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 30)) * time.Second,
		EmbedDelay:        time.Duration(getEnvAsInt("EMBED_DELAY_MS", 40)) * time.Millisecond,
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
