package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ErrConfiguration marks configuration the service cannot start without.
var ErrConfiguration = errors.New("configuration error")

const defaultTemperature = 0.7

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Store     StoreConfig
	Vector    VectorConfig
	RAG       RAGConfig
	StaticDir string
}

// Load 从环境变量加载配置。CONFIG_FILE 指向的 YAML 文件提供默认值，环境变量优先。
func Load() (*Config, error) {
	file, err := loadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}
	if !ai.Enabled() {
		return nil, fmt.Errorf("%w: ARK_API_KEY (or ARK_API_KEY_BACKUP) and Model must be set", ErrConfiguration)
	}

	vector, err := loadVectorConfig(file)
	if err != nil {
		return nil, err
	}

	rag, err := loadRAGConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Store:     loadStoreConfig(),
		Vector:    vector,
		RAG:       rag,
		StaticDir: strings.TrimSpace(os.Getenv("STATIC_DIR")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey string
	// BackupAPIKey is kept for operators; it is never switched to at runtime.
	BackupAPIKey string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// HasBackupKey reports whether a distinct backup key is configured.
func (c AIConfig) HasBackupKey() bool {
	return c.BackupAPIKey != "" && c.BackupAPIKey != c.APIKey
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合", ErrConfiguration)
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

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
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
	if temperature == nil {
		val := defaultTemperature
		temperature = &val
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	primary := strings.TrimSpace(os.Getenv("ARK_API_KEY"))
	backup := strings.TrimSpace(os.Getenv("ARK_API_KEY_BACKUP"))
	apiKey := primary
	if apiKey == "" {
		apiKey = backup
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:       apiKey,
		BackupAPIKey: backup,
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        modelName,
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
	}, nil
}

// StoreConfig 描述会话存储配置。
type StoreConfig struct {
	URL      string
	Database string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		URL:      getEnvOrDefault("DATABASE_URL", "mongodb://localhost:27017"),
		Database: getEnvOrDefault("DATABASE_NAME", "rag_chatbot"),
	}
}

// VectorConfig 描述向量库与嵌入模型配置。
type VectorConfig struct {
	Dir                string
	Embedder           string
	EmbeddingBaseURL   string
	EmbeddingAPIKeyEnv string
	EmbeddingModel     string
	Dimensions         int
	TimeoutSecs        int
}

func loadVectorConfig(file fileConfig) (VectorConfig, error) {
	dims, err := intEnvOrDefault("EMBEDDING_DIMENSIONS", orInt(file.Embedder.Dimensions, 384))
	if err != nil {
		return VectorConfig{}, err
	}
	timeout, err := intEnvOrDefault("EMBEDDING_TIMEOUT_SECS", orInt(file.Embedder.TimeoutSecs, 30))
	if err != nil {
		return VectorConfig{}, err
	}

	cfg := VectorConfig{
		Dir:                getEnvOrDefault("VECTOR_STORE_DIR", orString(file.VectorStore.Dir, "./vector_db")),
		Embedder:           strings.ToLower(getEnvOrDefault("EMBEDDER", orString(file.Embedder.Type, "hashing"))),
		EmbeddingBaseURL:   getEnvOrDefault("EMBEDDING_BASE_URL", orString(file.Embedder.BaseURL, "https://api.openai.com/v1")),
		EmbeddingAPIKeyEnv: getEnvOrDefault("EMBEDDING_API_KEY_ENV", orString(file.Embedder.APIKeyEnv, "OPENAI_API_KEY")),
		EmbeddingModel:     getEnvOrDefault("EMBEDDING_MODEL", orString(file.Embedder.Model, "text-embedding-3-small")),
		Dimensions:         dims,
		TimeoutSecs:        timeout,
	}

	switch cfg.Embedder {
	case "hashing", "openai":
	default:
		return VectorConfig{}, fmt.Errorf("%w: unknown EMBEDDER %q", ErrConfiguration, cfg.Embedder)
	}
	if cfg.Dimensions <= 0 {
		return VectorConfig{}, fmt.Errorf("%w: EMBEDDING_DIMENSIONS must be positive", ErrConfiguration)
	}
	return cfg, nil
}

// RAGConfig 描述切分与检索参数。
type RAGConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	HistoryLimit int
	SystemPrompt string
	IngestDir    string
}

func loadRAGConfig(file fileConfig) (RAGConfig, error) {
	size, err := intEnvOrDefault("CHUNK_SIZE", orInt(file.RAG.ChunkSize, 1000))
	if err != nil {
		return RAGConfig{}, err
	}
	overlap, err := intEnvOrDefault("CHUNK_OVERLAP", orInt(file.RAG.ChunkOverlap, 200))
	if err != nil {
		return RAGConfig{}, err
	}
	topK, err := intEnvOrDefault("RETRIEVAL_TOP_K", orInt(file.RAG.TopK, 3))
	if err != nil {
		return RAGConfig{}, err
	}
	historyLimit, err := intEnvOrDefault("HISTORY_LIMIT", orInt(file.RAG.HistoryLimit, 10))
	if err != nil {
		return RAGConfig{}, err
	}

	if size <= 0 || overlap < 0 || overlap >= size {
		return RAGConfig{}, fmt.Errorf("%w: need 0 <= CHUNK_OVERLAP (%d) < CHUNK_SIZE (%d)", ErrConfiguration, overlap, size)
	}
	if topK <= 0 {
		topK = 3
	}

	return RAGConfig{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		TopK:         topK,
		HistoryLimit: historyLimit,
		SystemPrompt: getEnvOrDefault("SYSTEM_PROMPT", file.RAG.SystemPrompt),
		IngestDir:    getEnvOrDefault("INGEST_DIR", file.RAG.IngestDir),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func intEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
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

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
