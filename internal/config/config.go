// Package config provides YAML-based configuration for the campaign insights service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration document.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Upload  UploadConfig  `yaml:"upload"`
	LLM     LLMConfig     `yaml:"llm"`
	Query   QueryConfig   `yaml:"query"`
	Chart   ChartConfig   `yaml:"chart"`
	DuckDB  DuckDBConfig  `yaml:"duckdb"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// StorageConfig contains file and artifact storage settings
type StorageConfig struct {
	DataDirectory    string   `yaml:"data_directory"`
	UploadsDirectory string   `yaml:"uploads_directory"`
	RuntimeDirectory string   `yaml:"runtime_directory"`
	ArtifactName     string   `yaml:"artifact_name"`
	Backend          string   `yaml:"backend"` // local | s3
	S3               S3Config `yaml:"s3"`
}

// S3Config configures the object-store artifact backend.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// UploadConfig contains batch upload settings
type UploadConfig struct {
	MaxFiles               int         `yaml:"max_files"`
	MaxConcurrentParses    int         `yaml:"max_concurrent_parses"`
	LeaseBackend           string      `yaml:"lease_backend"` // memory | redis
	LeaseTTLSeconds        int         `yaml:"lease_ttl_seconds"`
	BatchRetentionMinutes  int         `yaml:"batch_retention_minutes"`
	CleanupIntervalMinutes int         `yaml:"cleanup_interval_minutes"`
	Redis                  RedisConfig `yaml:"redis"`
}

// RedisConfig configures the distributed write lease.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LLMConfig contains chat model settings
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	ColumnTemperature float32 `yaml:"column_temperature"`
	AgentTemperature  float32 `yaml:"agent_temperature"`
	ChartTemperature  float32 `yaml:"chart_temperature"`
	MaxAgentSteps     int     `yaml:"max_agent_steps"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// QueryConfig contains query routing settings
type QueryConfig struct {
	VisualizationKeywords []string `yaml:"visualization_keywords"`
	SampleRows            int      `yaml:"sample_rows"`
	MaxResultRows         int      `yaml:"max_result_rows"`
}

// ChartConfig contains chart rendering settings
type ChartConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	MaxPoints int `yaml:"max_points"`
}

// DuckDBConfig tunes the embedded query engine
type DuckDBConfig struct {
	Threads     int    `yaml:"threads"`
	MemoryLimit string `yaml:"memory_limit"`
	MaxQueries  int    `yaml:"max_queries"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8000,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          60,
			WriteTimeout:         180,
			IdleTimeout:          120,
			BodyLimit:            "512M",
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			RuntimeDirectory: "./runtime",
			ArtifactName:     "concatenated_file.xlsx",
			Backend:          "local",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Upload: UploadConfig{
			MaxFiles:               60,
			MaxConcurrentParses:    4,
			LeaseBackend:           "memory",
			LeaseTTLSeconds:        300,
			BatchRetentionMinutes:  60,
			CleanupIntervalMinutes: 5,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "campaign-insights",
			},
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-3.5-turbo",
			ColumnTemperature: 0.1,
			AgentTemperature:  0.1,
			ChartTemperature:  0.6,
			MaxAgentSteps:     12,
		},
		Query: QueryConfig{
			VisualizationKeywords: []string{"plot", "visualize", "graph", "chart"},
			SampleRows:            5,
			MaxResultRows:         50,
		},
		Chart: ChartConfig{
			Width:     1024,
			Height:    576,
			MaxPoints: 500,
		},
		DuckDB: DuckDBConfig{
			Threads:     2,
			MemoryLimit: "512MB",
			MaxQueries:  4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating it with defaults
// when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Campaign Insights configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks enumerated settings.
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Upload.LeaseBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown lease backend %q", c.Upload.LeaseBackend)
	}

	if c.Upload.MaxFiles <= 0 {
		return fmt.Errorf("upload.max_files must be positive")
	}
	if c.Storage.ArtifactName == "" {
		return fmt.Errorf("storage.artifact_name is required")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		c.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Upload.Redis.Addr = addr
		c.Upload.LeaseBackend = "redis"
	}

	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		c.Storage.S3.Bucket = bucket
		c.Storage.Backend = "s3"
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.RuntimeDirectory,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// LeaseTTL returns the write lease duration.
func (c *AppConfig) LeaseTTL() time.Duration {
	return time.Duration(c.Upload.LeaseTTLSeconds) * time.Second
}

// LLMTimeout returns the per-call LLM timeout, zero meaning none.
func (c *AppConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.RuntimeDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
