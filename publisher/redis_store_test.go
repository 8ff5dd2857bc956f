package publisher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifieds_ad_publisher/adform"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisOptions{Address: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()

	listing := &adform.Listing{
		ID:       "test-" + time.Now().Format("150405.000000"),
		SellerID: "seller-1",
		PostedAt: time.Date(2024, 5, 21, 8, 30, 0, 0, time.UTC),
		Currency: "GHS",
		Draft:    completeDraft(),
	}
	require.NoError(t, store.Save(ctx, listing))
	defer store.Delete(ctx, listing.ID)

	got, err := store.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.Title, got.Title)
	assert.Equal(t, listing.SellerID, got.SellerID)
	assert.True(t, listing.PostedAt.Equal(got.PostedAt))

	_, err = store.Get(ctx, "missing-"+listing.ID)
	assert.ErrorIs(t, err, ErrListingNotFound)
}
