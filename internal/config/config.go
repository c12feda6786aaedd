package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port       int              `json:"port"`
	LogConfig  logger.LogConfig `json:"log_config"`
	Database   DatabaseConfig   `json:"database"`
	ChunkStore ChunkStoreConfig `json:"chunk_store"`
	AI         AIConfig         `json:"ai"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Ingest     IngestConfig     `json:"ingest"`
	FileStore  FileStoreConfig  `json:"file_store"`
	Auth       AuthConfig       `json:"auth"`
	CORSHosts  []string         `json:"cors_hosts"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type ChunkStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Generate ProviderConfig `json:"generate"`
	Embed    EmbedConfig    `json:"embed"`
}

type ProviderRef struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type ProviderConfig struct {
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	Data           interface{}   `json:"data"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	Fallbacks      []ProviderRef `json:"fallbacks"`
}

type EmbedConfig struct {
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	Data           interface{}   `json:"data"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	CacheSize      int           `json:"cache_size"`
	CacheTTLHours  int           `json:"cache_ttl_hours"`
	Fallbacks      []ProviderRef `json:"fallbacks"`
}

type RetrievalConfig struct {
	TopK            int     `json:"top_k"`
	Oversample      int     `json:"oversample"`
	Epsilon         float64 `json:"epsilon"`
	MaxContextChars int     `json:"max_context_chars"`
}

type IngestConfig struct {
	InboxDir string `json:"inbox_dir"`
	DoneDir  string `json:"done_dir"`
	Cron     string `json:"cron"`
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type AuthConfig struct {
	Enabled     bool   `json:"enabled"`
	JWTSecret   string `json:"jwt_secret"`
	JWTTTLHours int    `json:"jwt_ttl_hours"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.ChunkStore.Type == "" {
		cfg.ChunkStore.Type = "memory"
	}
	switch cfg.ChunkStore.Type {
	case "memory":
	case "postgres":
		if cfg.Database.DSN == "" && (cfg.Database.Host == "" || cfg.Database.DBName == "") {
			return nil, fmt.Errorf("database dsn or host/db_name is required for postgres store")
		}
	default:
		return nil, fmt.Errorf("chunk_store.type must be memory or postgres")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.AI.Embed.Provider == "" {
		cfg.AI.Embed.Provider = "hash"
	}
	if cfg.AI.Embed.CacheSize == 0 {
		cfg.AI.Embed.CacheSize = 4096
	}
	if cfg.AI.Embed.CacheTTLHours == 0 {
		cfg.AI.Embed.CacheTTLHours = 24
	}
	if cfg.AI.Generate.Provider != "" && cfg.AI.Generate.Model == "" {
		return nil, fmt.Errorf("ai.generate.model is required when a generate provider is set")
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 8
	}
	if cfg.Retrieval.Oversample == 0 {
		cfg.Retrieval.Oversample = 3
	}
	if cfg.Retrieval.Epsilon == 0 {
		cfg.Retrieval.Epsilon = 0.05
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 6000
	}
	if cfg.Ingest.Cron == "" {
		cfg.Ingest.Cron = "@every 5m"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			cfg.FileStore.Dir = "./data/statements"
		}
	case "s3":
		if cfg.FileStore.S3.Endpoint == "" || cfg.FileStore.S3.Bucket == "" || cfg.FileStore.S3.SecretID == "" || cfg.FileStore.S3.SecretKey == "" {
			return nil, fmt.Errorf("file_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if cfg.FileStore.S3.Region == "" {
			cfg.FileStore.S3.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("file_store.type must be local or s3")
	}
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if cfg.Auth.JWTTTLHours == 0 {
		cfg.Auth.JWTTTLHours = 72
	}
	return &cfg, nil
}
