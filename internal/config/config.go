package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"echodoc/internal/domain"
)

// DefaultAPIKeyEnv names the environment variable holding the provider key.
const DefaultAPIKeyEnv = "UPSTAGE_API_KEY"

// NoSnapshot as vector_index.path keeps the in-memory index unpersisted.
const NoSnapshot = "none"

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	DocumentModel     string  `yaml:"document_model"`
	QueryModel        string  `yaml:"query_model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS      int     `yaml:"max_backoff_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Concurrency       int     `yaml:"concurrency"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type string `yaml:"type"`
	// Dimension is the vector length the provider produces.
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type         string `yaml:"type"`
	MaxChars     int    `yaml:"max_chars"`
	OverlapChars int    `yaml:"overlap_chars"`
}

// VectorIndexConfig selects and configures the vector index implementation.
type VectorIndexConfig struct {
	Type string `yaml:"type"`
	// Path is the snapshot file of the in-memory index. NoSnapshot disables
	// persistence.
	Path   string        `yaml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SnapshotPath returns the index snapshot file, or "" when persistence is off.
func (c VectorIndexConfig) SnapshotPath() string {
	if c.Path == NoSnapshot {
		return ""
	}
	return c.Path
}

// QdrantConfig contains connection details for a Qdrant vector index.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
}

// LLMConfig configures the chat completion client.
type LLMConfig struct {
	Type        string  `yaml:"type"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type ConversationConfig struct {
	TimeoutSecs    int    `yaml:"timeout_secs"`
	SystemTemplate string `yaml:"system_template,omitempty"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

type SlackConfig struct {
	WebhookURLEnv string `yaml:"webhook_url_env"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// NotifyConfig enables notification channels. Nil sections are disabled.
type NotifyConfig struct {
	Slack *SlackConfig `yaml:"slack,omitempty"`
	NATS  *NATSConfig  `yaml:"nats,omitempty"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	ChecklistPath  string   `yaml:"checklist_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	VectorIndex  VectorIndexConfig  `yaml:"vector_index"`
	LLM          LLMConfig          `yaml:"llm"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Summarizer   SummarizerConfig   `yaml:"summarizer"`
	Notify       NotifyConfig       `yaml:"notify"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/echodoc/config.yaml.
// If neither exists, it writes defaults to ~/.config/echodoc/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations no component could start with.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Embedder.Type {
	case "openai", "hashing":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder type %q", c.Embedder.Type))
	}
	if c.Embedder.Dimension <= 0 {
		errs = append(errs, errors.New("embedder dimension must be positive"))
	}
	switch c.Chunker.Type {
	case "window", "sentence":
	default:
		errs = append(errs, fmt.Errorf("unknown chunker type %q", c.Chunker.Type))
	}
	if c.Chunker.MaxChars <= 0 {
		errs = append(errs, errors.New("chunker max_chars must be positive"))
	}
	if c.Chunker.OverlapChars < 0 || c.Chunker.OverlapChars >= c.Chunker.MaxChars {
		errs = append(errs, errors.New("chunker overlap_chars must be in [0, max_chars)"))
	}
	switch c.VectorIndex.Type {
	case "memory":
	case "qdrant":
		if c.VectorIndex.Qdrant == nil || c.VectorIndex.Qdrant.Addr == "" {
			errs = append(errs, errors.New("vector_index.qdrant.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector index type %q", c.VectorIndex.Type))
	}
	if c.Retrieval.TopK < 0 {
		errs = append(errs, errors.New("retrieval top_k must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ConversationTimeout is the orchestrator budget per turn. A negative
// timeout_secs disables it.
func (c *AppConfig) ConversationTimeout() time.Duration {
	if c.Conversation.TimeoutSecs < 0 {
		return 0
	}
	return time.Duration(c.Conversation.TimeoutSecs) * time.Second
}

// Secret reads the environment variable env, failing when it is unset.
func Secret(env string) (string, error) {
	v := os.Getenv(env)
	if v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", domain.ErrInvalidConfig, env)
	}
	return v, nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "echodoc", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		Chunker:     ChunkerConfig{Type: "window"},
		VectorIndex: VectorIndexConfig{Type: "memory"},
		LLM:         LLMConfig{Type: "openai"},
		Summarizer:  SummarizerConfig{Type: "frequency"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.upstage.ai/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = DefaultAPIKeyEnv
		}
		if o.DocumentModel == "" {
			o.DocumentModel = "embedding-passage"
		}
		if o.QueryModel == "" {
			o.QueryModel = "embedding-query"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.MaxAttempts == 0 {
			o.MaxAttempts = 5
		}
		if o.InitialBackoffMS == 0 {
			o.InitialBackoffMS = 200
		}
		if o.MaxBackoffMS == 0 {
			o.MaxBackoffMS = 5000
		}
		if o.Concurrency == 0 {
			o.Concurrency = 2
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 4096
		}
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 256
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 1000
		if cfg.Chunker.OverlapChars == 0 {
			cfg.Chunker.OverlapChars = 200
		}
	}

	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = "memory"
	}
	if cfg.VectorIndex.Type == "memory" && cfg.VectorIndex.Path == "" {
		cfg.VectorIndex.Path = filepath.Join("data", "index.bin")
	}
	if q := cfg.VectorIndex.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "echodoc"
		}
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "openai"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.upstage.ai/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "solar-pro"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}

	if cfg.Conversation.TimeoutSecs == 0 {
		cfg.Conversation.TimeoutSecs = 60
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if s := cfg.Notify.Slack; s != nil && s.WebhookURLEnv == "" {
		s.WebhookURLEnv = "SLACK_WEBHOOK_URL"
	}
	if n := cfg.Notify.NATS; n != nil {
		if n.URL == "" {
			n.URL = "nats://127.0.0.1:4222"
		}
		if n.Subject == "" {
			n.Subject = "echodoc.notifications"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.ChecklistPath == "" {
		cfg.Server.ChecklistPath = filepath.Join("data", "policy_checklist.txt")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
