package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

// A nil cache must be a safe no-op so callers never branch on whether Redis
// is configured.
func TestNilCacheIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	cache.Store(ctx, []*models.Event{{Identity: "abc"}})

	_, err := cache.Get(ctx, "abc")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
