package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Cache stores source payloads by key. Implementations must be safe for
// concurrent use: one investigation calls many sources at once.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CallKey builds the cache key of one source operation call. Parameter order
// does not matter.
func CallKey(sourceID, operation string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(sourceID)
	b.WriteByte('|')
	b.WriteString(operation)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	hash := sha256.Sum256([]byte(b.String()))
	return "lupa:v1:" + hex.EncodeToString(hash[:])
}

// Noop is a cache that stores nothing
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) { return nil, false }
func (Noop) Set(string, []byte, time.Duration) error { return nil }
func (Noop) Delete(string) error { return nil }
func (Noop) Clear() error { return nil }
