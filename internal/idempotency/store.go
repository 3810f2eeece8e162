package idempotency

import (
	"context"
	"time"

	"product-import-service/internal/models"
)

// DefaultTTL is how long a completed import answers repeated submissions
const DefaultTTL = 30 * 24 * time.Hour

// Store persists completed import results by idempotency key. Get never
// returns an entry older than the TTL it was stored with.
//
// Reserve places an in-flight marker on key that expires after lease. It
// reports false while another holder's marker is live. Release removes the
// marker only when it still carries token.
type Store interface {
	Get(ctx context.Context, key string) (*models.ImportResult, bool, error)
	Set(ctx context.Context, key string, result *models.ImportResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Reserve(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
	Close() error
}
