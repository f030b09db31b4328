// Package cache provides the response cache for answered queries.
//
// Keys are deterministic fingerprints of the incoming request computed
// before any rewriting, so the same question asked the same way hits the
// cache regardless of downstream model behavior. Cache failures are
// soft: the pipeline treats a failed lookup as a miss and a failed write
// as a no-op.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// ErrMiss indicates the key is not present or has expired.
var ErrMiss = errors.New("cache miss")

// Cache stores serialized responses under request fingerprints.
type Cache interface {
	// Get returns the cached payload for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the payload under key with the cache's TTL.
	Set(ctx context.Context, key string, payload []byte) error
}

// Fingerprint computes the cache key for a request.
//
// The key covers everything that changes the answer: the normalized raw
// query text, the language, the chunk limit, and the retrieval filters
// in canonical order. It deliberately excludes the conversation ID so
// identical standalone questions share entries.
func Fingerprint(query, language string, maxChunks int, filters map[string]string) string {
	h := sha256.New()

	h.Write([]byte(normalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxChunks)))
	h.Write([]byte{0})

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{1})
		h.Write([]byte(filters[k]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// normalizeQuery trims and collapses whitespace so trivially different
// spellings of the same question share a key. It never changes word
// content.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
