package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "legal_chunks", cfg.Qdrant.Collection)
	assert.Equal(t, "fa", cfg.Pipeline.DefaultLanguage)
	assert.Equal(t, 5, cfg.Pipeline.DefaultMaxChunks)
	assert.Equal(t, 20, cfg.Memory.RefreshThreshold)
	assert.Equal(t, 2000, cfg.Memory.SummaryMaxChars)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration())
}

func TestLoadDefaultSlots(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint64(768), cfg.Qdrant.Slots["dim768"])
	assert.Equal(t, uint64(1024), cfg.Qdrant.Slots["dim1024"])
	assert.Equal(t, uint64(1536), cfg.Qdrant.Slots["dim1536"])
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
qdrant:
  host: qdrant.internal
  slots:
    dim768: 768
    dim1024: 1024
llm:
  primary:
    base_url: https://api.example.com/v1
    model: gpt-4o-mini
  fallback:
    base_url: https://fallback.example.com/v1
    model: gpt-4o
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Len(t, cfg.Qdrant.Slots, 2)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Primary.Model)
	assert.Equal(t, "https://fallback.example.com/v1", cfg.LLM.Fallback.BaseURL)
	// Fallback defaults only applied when fallback is configured.
	assert.Equal(t, 45*time.Second, cfg.LLM.Fallback.Timeout.Duration())
}

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"QDRANT_SCORE_THRESHOLD", "qdrant.score_threshold"},
		{"LLM_PRIMARY_BASE_URL", "llm.primary.base_url"},
		{"LLM_FALLBACK_API_KEY", "llm.fallback.api_key"},
		{"CACHE_REDIS_ADDR", "cache.redis.addr"},
		{"MEMORY_REDIS_ADDR", "memory.redis.addr"},
		{"MEMORY_SHORT_TERM_WINDOW", "memory.short_term_window"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, transformEnvKey(tt.in))
		})
	}
}

func TestValidateRejectsDuplicateSlotDims(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Qdrant.Slots = map[string]uint64{"a": 768, "b": 768}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share dimensionality")
}

func TestValidateRejectsRedisWithoutAddr(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = ""
	assert.Error(t, cfg.Validate())
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "super-secret")
}

func TestDurationParsing(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
