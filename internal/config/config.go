package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every tunable of the service.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	STT       STTConfig
	TTS       TTSConfig
	Retrieval RetrievalConfig
	Supabase  SupabaseConfig
	Live      LiveConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	live, err := loadLiveConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		STT:       loadSTTConfig(),
		TTS:       loadTTSConfig(),
		Retrieval: retrieval,
		Supabase:  loadSupabaseConfig(),
		Live:      live,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Accept ":8000" or "127.0.0.1:8000" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the generation model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a chat model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("generation model not configured: set ARK_API_KEY (or AK/SK) and ARK_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// STTConfig describes the live speech-to-text provider.
type STTConfig struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

// Enabled reports whether live transcription can be offered.
func (c STTConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadSTTConfig() STTConfig {
	return STTConfig{
		APIKey:     strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		Model:      getEnvOrDefault("DEEPGRAM_STT_MODEL", "nova-3"),
		Language:   getEnvOrDefault("DEEPGRAM_STT_LANGUAGE", "en-US"),
		SampleRate: 16000,
	}
}

// TTSConfig describes the optional speech synthesis stage.
type TTSConfig struct {
	APIKey     string
	Voice      string
	SampleRate int
}

// Enabled reports whether synthesis can be offered.
func (c TTSConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadTTSConfig() TTSConfig {
	return TTSConfig{
		APIKey:     strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		Voice:      getEnvOrDefault("DEEPGRAM_TTS_VOICE", "aura-asteria-en"),
		SampleRate: 24000,
	}
}

// RetrievalConfig describes embeddings, the vector store, and the passage cache.
type RetrievalConfig struct {
	QdrantURL        string
	QdrantAPIKey     string
	Collection       string
	EmbeddingModel   string
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	TopK             int
	CacheDriver      string
	CacheTTL         time.Duration
	RedisAddr        string
	RedisPassword    string
}

// Enabled reports whether vector retrieval is configured.
func (c RetrievalConfig) Enabled() bool {
	return c.QdrantURL != "" && c.EmbeddingAPIKey != ""
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	topK := 3
	if override, err := parseOptionalIntEnv("RETRIEVAL_TOP_K"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		if *override < 1 {
			topK = 1
		} else {
			topK = *override
		}
	}

	cacheTTL := 5 * time.Minute
	if override, err := parseOptionalIntEnv("RETRIEVAL_CACHE_TTL_SECONDS"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil && *override > 0 {
		cacheTTL = time.Duration(*override) * time.Second
	}

	embeddingKey := strings.TrimSpace(os.Getenv("ARK_EMBEDDING_API_KEY"))
	if embeddingKey == "" {
		embeddingKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
	}

	return RetrievalConfig{
		QdrantURL:        strings.TrimSpace(os.Getenv("QDRANT_URL")),
		QdrantAPIKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		Collection:       getEnvOrDefault("QDRANT_COLLECTION", "video_chunks"),
		EmbeddingModel:   getEnvOrDefault("ARK_EMBEDDING_MODEL", "doubao-embedding-text-240715"),
		EmbeddingAPIKey:  embeddingKey,
		EmbeddingBaseURL: getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		TopK:             topK,
		CacheDriver:      getEnvOrDefault("RETRIEVAL_CACHE_DRIVER", "memory"),
		CacheTTL:         cacheTTL,
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
	}, nil
}

// SupabaseConfig describes durable storage and identity verification.
type SupabaseConfig struct {
	URL    string
	APIKey string
}

// Enabled reports whether the storage collaborator is configured.
func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

func loadSupabaseConfig() SupabaseConfig {
	return SupabaseConfig{
		URL:    strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		APIKey: strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY")),
	}
}

// LiveConfig tunes the live session orchestrator.
type LiveConfig struct {
	SilenceTimeout time.Duration
	HistoryLimit   int
	OutboxSize     int
}

func loadLiveConfig() (LiveConfig, error) {
	silenceMs := 2000
	if override, err := parseOptionalIntEnv("LIVE_SILENCE_TIMEOUT_MS"); err != nil {
		return LiveConfig{}, err
	} else if override != nil && *override > 0 {
		silenceMs = *override
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("LIVE_HISTORY_LIMIT"); err != nil {
		return LiveConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	return LiveConfig{
		SilenceTimeout: time.Duration(silenceMs) * time.Millisecond,
		HistoryLimit:   historyLimit,
		OutboxSize:     256,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
