package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestConversationIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ConversationIDFromContext(ctx))

	ctx = WithConversationID(ctx, "conv-abc")
	assert.Equal(t, "conv-abc", ConversationIDFromContext(ctx))
}

func TestContextFields(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithConversationID(ctx, "conv-1")

	fields := ContextFields(ctx)
	assert.Len(t, fields, 2)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "console format valid", mutate: func(c *Config) { c.Format = "console" }, wantErr: false},
		{name: "bad format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: true},
		{name: "empty field value", mutate: func(c *Config) { c.Fields = map[string]string{"env": ""} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
