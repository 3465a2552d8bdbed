package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agrirec/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the recommender.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Import    ImportConfig    `yaml:"import"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig locates the persisted corpus.
type StorageConfig struct {
	DataDir            string `yaml:"data_dir"`
	EmbeddingsFile     string `yaml:"embeddings_file"`
	MetadataFile       string `yaml:"metadata_file"`
	JournalFile        string `yaml:"journal_file"`
	RejectDuplicateIDs bool   `yaml:"reject_duplicate_ids"`
}

// EmbeddingConfig holds encoder configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`    // "hash", "gemini", "openai", "jina", "deepseek", "ollama"
	Model             string        `yaml:"model"`       // e.g., "gemini-embedding-001"
	APIKeyEnv         string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string        `yaml:"base_url"`
	TaskType          string        `yaml:"task_type"`
	Dimension         int           `yaml:"dimension"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	BatchSize         int           `yaml:"batch_size"`
	Concurrency       int           `yaml:"concurrency"`
}

// RankingConfig holds the composite scorer configuration.
type RankingConfig struct {
	TopK          int            `yaml:"top_k"`
	CandidatePool int            `yaml:"candidate_pool"`
	MaxDistanceKm float64        `yaml:"max_distance_km"`
	Weights       domain.Weights `yaml:"weights"`
	CacheSize     int            `yaml:"cache_size"` // 0 disables the query cache
	CacheTTL      time.Duration  `yaml:"cache_ttl"`
}

// ImportConfig selects payload files for bulk import.
type ImportConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	APIKeyEnv       string        `yaml:"api_key_env"` // empty disables the key check
	PublicPaths     []string      `yaml:"public_paths"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	WatchFiles      bool          `yaml:"watch_files"` // reload when the data files are replaced externally
	WatchDebounce   time.Duration `yaml:"watch_debounce"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:        "emb_files",
			EmbeddingsFile: "semantic_vectors.npy",
			MetadataFile:   "product_metadata.csv",
			JournalFile:    "journal.db",
		},
		Embedding: EmbeddingConfig{
			Provider:    "hash",
			Model:       "hash-trigram",
			APIKeyEnv:   "GEMINI_API_KEY",
			TaskType:    "SEMANTIC_SIMILARITY",
			Dimension:   384,
			Timeout:     30 * time.Second,
			BatchSize:   64,
			Concurrency: 4,
		},
		Ranking: RankingConfig{
			TopK:          20,
			CandidatePool: 100,
			MaxDistanceKm: 50,
			Weights:       domain.DefaultWeights(),
			CacheSize:     256,
			CacheTTL:      5 * time.Minute,
		},
		Import: ImportConfig{
			Includes: []string{"**/*.json", "**/*.jsonl", "**/*.csv"},
			Excludes: []string{"**/.git/**", "**/node_modules/**"},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:9001",
			APIKeyEnv:       "INTERNAL_API_KEY",
			PublicPaths:     []string{"/health"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			WatchDebounce:   500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// LoadFromDir loads configuration from a directory (looks for agrirec.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "agrirec.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".agrirec", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the ranking engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	w := c.Ranking.Weights
	if w.Semantic < 0 || w.Price < 0 || w.Location < 0 || w.Quantity < 0 {
		errs = append(errs, errors.New("ranking weights must not be negative"))
	}
	if c.Ranking.CandidatePool < 1 {
		errs = append(errs, fmt.Errorf("ranking.candidate_pool must be positive, got %d", c.Ranking.CandidatePool))
	}
	if c.Ranking.MaxDistanceKm <= 0 {
		errs = append(errs, fmt.Errorf("ranking.max_distance_km must be positive, got %v", c.Ranking.MaxDistanceKm))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Storage.EmbeddingsFile == "" || c.Storage.MetadataFile == "" || c.Storage.JournalFile == "" {
		errs = append(errs, errors.New("storage file names must not be empty"))
	}
	return errors.Join(errs...)
}

// DataDir resolves the data directory against root.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(root, c.Storage.DataDir)
}

// EmbeddingsPath returns the path to the embedding matrix.
func (c *Config) EmbeddingsPath(root string) string {
	return filepath.Join(c.DataDir(root), c.Storage.EmbeddingsFile)
}

// MetadataPath returns the path to the metadata table.
func (c *Config) MetadataPath(root string) string {
	return filepath.Join(c.DataDir(root), c.Storage.MetadataFile)
}

// JournalPath returns the path to the ingestion journal.
func (c *Config) JournalPath(root string) string {
	return filepath.Join(c.DataDir(root), c.Storage.JournalFile)
}

// EnsureDataDir ensures the data directory exists.
func (c *Config) EnsureDataDir(root string) error {
	return os.MkdirAll(c.DataDir(root), 0755)
}
