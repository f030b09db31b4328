// Package config provides configuration loading for pasokhd.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text-based config parsing.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts raw secret values.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

// Config is the root configuration for pasokhd.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Rerank     RerankConfig     `koanf:"rerank"`
	LLM        LLMConfig        `koanf:"llm"`
	Cache      CacheConfig      `koanf:"cache"`
	Memory     MemoryConfig     `koanf:"memory"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// TelemetryConfig holds OTLP export settings. Mirrored into the
// telemetry package at startup.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	MetricsEnabled  bool     `koanf:"metrics_enabled"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QdrantConfig holds vector store settings.
//
// Slots maps a named vector slot to its dimensionality. Each supported
// embedding dimensionality gets exactly one slot in the collection.
type QdrantConfig struct {
	Host           string            `koanf:"host"`
	Port           int               `koanf:"port"`
	UseTLS         bool              `koanf:"use_tls"`
	APIKey         Secret            `koanf:"api_key"`
	Collection     string            `koanf:"collection"`
	Slots          map[string]uint64 `koanf:"slots"`
	ScoreThreshold float32           `koanf:"score_threshold"`
	PlainThreshold float32           `koanf:"plain_threshold"`
	MetadataBoost  float32           `koanf:"metadata_boost"`
	MaxRetries     int               `koanf:"max_retries"`
	RetryBackoff   Duration          `koanf:"retry_backoff"`
	SearchTimeout  Duration          `koanf:"search_timeout"`
}

// EmbeddingsConfig holds embedding service settings.
type EmbeddingsConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// RerankConfig holds reranking service settings.
// An empty BaseURL disables reranking; the pipeline then passes candidates
// through in their original order.
type RerankConfig struct {
	BaseURL        string   `koanf:"base_url"`
	Model          string   `koanf:"model"`
	APIKey         Secret   `koanf:"api_key"`
	Timeout        Duration `koanf:"timeout"`
	ScoreThreshold float32  `koanf:"score_threshold"`
}

// ProviderConfig holds settings for one generation endpoint.
type ProviderConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float32  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// LLMConfig holds the tiered generation endpoints.
// Fallback is optional; when unset only the primary tier is attempted.
type LLMConfig struct {
	Primary  ProviderConfig `koanf:"primary"`
	Fallback ProviderConfig `koanf:"fallback"`
}

// RedisConfig holds connection settings for a Redis backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password Secret `koanf:"password"`
	DB       int    `koanf:"db"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Backend string      `koanf:"backend"` // "memory" or "redis"
	TTL     Duration    `koanf:"ttl"`
	Redis   RedisConfig `koanf:"redis"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	Backend          string      `koanf:"backend"` // "memory" or "redis"
	ShortTermWindow  int         `koanf:"short_term_window"`
	SummaryMaxChars  int         `koanf:"summary_max_chars"`
	RefreshThreshold int         `koanf:"refresh_threshold"`
	QueueSize        int         `koanf:"queue_size"`
	Redis            RedisConfig `koanf:"redis"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	DefaultLanguage  string   `koanf:"default_language"`
	DefaultMaxChunks int      `koanf:"default_max_chunks"`
	MaxChunksCap     int      `koanf:"max_chunks_cap"`
	ClassifyTimeout  Duration `koanf:"classify_timeout"`
	RequestTimeout   Duration `koanf:"request_timeout"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port: %d", c.Server.Port)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant: host required")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant: invalid port: %d", c.Qdrant.Port)
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant: collection required")
	}
	if len(c.Qdrant.Slots) == 0 {
		return fmt.Errorf("qdrant: at least one vector slot required")
	}
	seen := make(map[uint64]string, len(c.Qdrant.Slots))
	for name, dim := range c.Qdrant.Slots {
		if dim == 0 {
			return fmt.Errorf("qdrant: slot %q has zero dimensionality", name)
		}
		if prev, ok := seen[dim]; ok {
			return fmt.Errorf("qdrant: slots %q and %q share dimensionality %d", prev, name, dim)
		}
		seen[dim] = name
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings: base_url required")
	}
	if c.LLM.Primary.BaseURL == "" {
		return fmt.Errorf("llm: primary base_url required")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache: backend must be 'memory' or 'redis', got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache: redis addr required")
	}
	if c.Memory.Backend != "memory" && c.Memory.Backend != "redis" {
		return fmt.Errorf("memory: backend must be 'memory' or 'redis', got %q", c.Memory.Backend)
	}
	if c.Memory.Backend == "redis" && c.Memory.Redis.Addr == "" {
		return fmt.Errorf("memory: redis addr required")
	}
	if c.Memory.ShortTermWindow <= 0 {
		return fmt.Errorf("memory: short_term_window must be positive")
	}
	if c.Memory.SummaryMaxChars <= 0 {
		return fmt.Errorf("memory: summary_max_chars must be positive")
	}
	if c.Memory.RefreshThreshold <= 0 {
		return fmt.Errorf("memory: refresh_threshold must be positive")
	}
	if c.Pipeline.DefaultMaxChunks <= 0 || c.Pipeline.DefaultMaxChunks > c.Pipeline.MaxChunksCap {
		return fmt.Errorf("pipeline: default_max_chunks must be in (0, %d]", c.Pipeline.MaxChunksCap)
	}
	return nil
}
