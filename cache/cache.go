// Package cache stores completions keyed by the prompts that produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// DefaultSize is the capacity of the in-memory cache.
const DefaultSize = 32

// Key identifies one completion request.
type Key struct {
	System string
	User   string
}

// Digest returns a stable hex digest of the key.
func (k Key) Digest() string {
	h := sha256.New()
	h.Write([]byte(k.System))
	h.Write([]byte{0})
	h.Write([]byte(k.User))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a completion cache.
type Cache interface {
	Get(ctx context.Context, key Key) (string, bool, error)
	Set(ctx context.Context, key Key, completion string) error
}
