package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStableAcrossWhitespace(t *testing.T) {
	a := Fingerprint("ماده 10 قانون مدنی", "fa", 5, nil)
	b := Fingerprint("  ماده   10 قانون مدنی ", "fa", 5, nil)
	assert.Equal(t, a, b)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint("ماده 10 قانون مدنی", "fa", 5, nil)

	tests := []struct {
		name string
		got  string
	}{
		{"different query", Fingerprint("ماده 11 قانون مدنی", "fa", 5, nil)},
		{"different language", Fingerprint("ماده 10 قانون مدنی", "en", 5, nil)},
		{"different max chunks", Fingerprint("ماده 10 قانون مدنی", "fa", 10, nil)},
		{"added filter", Fingerprint("ماده 10 قانون مدنی", "fa", 5, map[string]string{"authority": "مجلس"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.got)
		})
	}
}

func TestFingerprintFilterOrderIrrelevant(t *testing.T) {
	// Maps iterate in random order; the key must not depend on it.
	filters := map[string]string{"authority": "مجلس", "language": "fa", "path": "civil"}
	a := Fingerprint("q", "fa", 5, filters)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, Fingerprint("q", "fa", 5, filters))
	}
}

func TestFingerprintFilterKeyValueBoundary(t *testing.T) {
	// {"ab": "c"} and {"a": "bc"} must not collide.
	a := Fingerprint("q", "fa", 5, map[string]string{"ab": "c"})
	b := Fingerprint("q", "fa", 5, map[string]string{"a": "bc"})
	assert.NotEqual(t, a, b)
}

func TestInMemoryCacheRoundTrip(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"answer":"text"}`)))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"answer":"text"}`), got)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache(20 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	time.Sleep(50 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryCacheCopiesPayload(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	payload := []byte("original")
	require.NoError(t, c.Set(ctx, "k", payload))
	payload[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}
