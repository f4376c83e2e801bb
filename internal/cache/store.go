package cache

import (
	"context"
	"fmt"
	"time"
)

// Key identifies a cached upstream response. Hash is the sha256 of the
// converted upstream request body.
type Key struct {
	Kind      string // "chat" or "completion"
	ModelID   string
	VersionID string
	Hash      string
}

// String renders <kind>:<model>:<version>:<hash>. Model ids may contain
// colons themselves (llama3.2:latest).
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.ModelID, k.VersionID, k.Hash)
}

// Store is the response cache used by the handlers.
// Implemented by the in-memory store (dev) and Redis (prod).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
