package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, QDRANT_HOST, LLM_PRIMARY_BASE_URL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The configPath parameter may be empty, in which case only environment
// variables and defaults apply.
//
// Environment variables use underscore separators and are uppercased.
// The transformer maps them onto YAML paths by splitting on the first
// underscore: SERVER_PORT -> server.port, QDRANT_SCORE_THRESHOLD ->
// qdrant.score_threshold. The llm section nests one level deeper, so
// LLM_PRIMARY_BASE_URL -> llm.primary.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps environment variable names onto config paths.
//
//	SERVER_PORT          -> server.port
//	QDRANT_SCORE_THRESHOLD -> qdrant.score_threshold
//	LLM_PRIMARY_BASE_URL -> llm.primary.base_url
//	CACHE_REDIS_ADDR     -> cache.redis.addr
func transformEnvKey(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	section := parts[0]
	rest := parts[1]

	// Sections with nested sub-sections split one more level.
	switch section {
	case "llm":
		sub := strings.SplitN(rest, "_", 2)
		if len(sub) == 2 && (sub[0] == "primary" || sub[0] == "fallback") {
			return section + "." + sub[0] + "." + sub[1]
		}
	case "cache", "memory":
		sub := strings.SplitN(rest, "_", 2)
		if len(sub) == 2 && sub[0] == "redis" {
			return section + "." + sub[0] + "." + sub[1]
		}
	}

	return section + "." + rest
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "legal_chunks"
	}
	if len(cfg.Qdrant.Slots) == 0 {
		cfg.Qdrant.Slots = map[string]uint64{
			"dim768":  768,
			"dim1024": 1024,
			"dim1536": 1536,
		}
	}
	if cfg.Qdrant.ScoreThreshold == 0 {
		cfg.Qdrant.ScoreThreshold = 0.45
	}
	if cfg.Qdrant.PlainThreshold == 0 {
		cfg.Qdrant.PlainThreshold = 0.30
	}
	if cfg.Qdrant.MetadataBoost == 0 {
		cfg.Qdrant.MetadataBoost = 0.15
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}
	if cfg.Qdrant.RetryBackoff == 0 {
		cfg.Qdrant.RetryBackoff = Duration(time.Second)
	}
	if cfg.Qdrant.SearchTimeout == 0 {
		cfg.Qdrant.SearchTimeout = Duration(10 * time.Second)
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "intfloat/multilingual-e5-base"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(15 * time.Second)
	}

	if cfg.Rerank.Timeout == 0 {
		cfg.Rerank.Timeout = Duration(10 * time.Second)
	}

	if cfg.LLM.Primary.BaseURL == "" {
		cfg.LLM.Primary.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Primary.Model == "" {
		cfg.LLM.Primary.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Primary.Timeout == 0 {
		cfg.LLM.Primary.Timeout = Duration(30 * time.Second)
	}
	if cfg.LLM.Primary.MaxTokens == 0 {
		cfg.LLM.Primary.MaxTokens = 1024
	}
	if cfg.LLM.Fallback.BaseURL != "" {
		if cfg.LLM.Fallback.Timeout == 0 {
			cfg.LLM.Fallback.Timeout = Duration(45 * time.Second)
		}
		if cfg.LLM.Fallback.MaxTokens == 0 {
			cfg.LLM.Fallback.MaxTokens = 1024
		}
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(time.Hour)
	}

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = "memory"
	}
	if cfg.Memory.ShortTermWindow == 0 {
		cfg.Memory.ShortTermWindow = 10
	}
	if cfg.Memory.SummaryMaxChars == 0 {
		cfg.Memory.SummaryMaxChars = 2000
	}
	if cfg.Memory.RefreshThreshold == 0 {
		cfg.Memory.RefreshThreshold = 20
	}
	if cfg.Memory.QueueSize == 0 {
		cfg.Memory.QueueSize = 256
	}

	if cfg.Pipeline.DefaultLanguage == "" {
		cfg.Pipeline.DefaultLanguage = "fa"
	}
	if cfg.Pipeline.DefaultMaxChunks == 0 {
		cfg.Pipeline.DefaultMaxChunks = 5
	}
	if cfg.Pipeline.MaxChunksCap == 0 {
		cfg.Pipeline.MaxChunksCap = 20
	}
	if cfg.Pipeline.ClassifyTimeout == 0 {
		cfg.Pipeline.ClassifyTimeout = Duration(10 * time.Second)
	}
	if cfg.Pipeline.RequestTimeout == 0 {
		cfg.Pipeline.RequestTimeout = Duration(2 * time.Minute)
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}
