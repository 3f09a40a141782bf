package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "user-records-service/internal/domain/user"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, mr
}

func sampleInsights() *domain.Insights {
	return &domain.Insights{
		SentimentScore:  0.75,
		Tags:            []string{"loyal", "vip"},
		EngagementLevel: domain.EngagementHigh.Ptr(),
		Summary:         "happy customer",
	}
}

func TestRedisInsightsCache_SetThenGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisInsightsCache(client, 5*time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "great guy", sampleInsights()))

	key := "insights:" + TextKey("great guy")
	assert.True(t, mr.Exists(key))

	raw, err := mr.Get(key)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "High", stored["engagementLevel"])

	got, err := c.Get(ctx, "great guy")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleInsights(), got)
}

func TestRedisInsightsCache_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewRedisInsightsCache(client, time.Minute, zaptest.NewLogger(t))

	got, err := c.Get(context.Background(), "never seen")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisInsightsCache_TTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisInsightsCache(client, 2*time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "text", sampleInsights()))
	mr.FastForward(3 * time.Second)

	got, err := c.Get(ctx, "text")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisInsightsCache_CorruptEntryIsDropped(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisInsightsCache(client, time.Minute, zaptest.NewLogger(t))
	key := "insights:" + TextKey("text")
	require.NoError(t, mr.Set(key, "{not json"))

	got, err := c.Get(context.Background(), "text")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(key))
}

func TestRedisInsightsCache_SetNil(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewRedisInsightsCache(client, time.Minute, zaptest.NewLogger(t))

	assert.Error(t, c.Set(context.Background(), "text", nil))
}

func TestRedisInsightsCache_Delete(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisInsightsCache(client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "text", sampleInsights()))
	require.NoError(t, c.Delete(ctx, "text"))
	assert.False(t, mr.Exists("insights:"+TextKey("text")))
}

func TestRedisInsightsCache_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisInsightsCache(client, time.Minute, zaptest.NewLogger(t))
	mr.Close()

	_, err := c.Get(context.Background(), "text")
	assert.Error(t, err)
}

func TestTextKey(t *testing.T) {
	assert.Equal(t, TextKey("a"), TextKey("a"))
	assert.NotEqual(t, TextKey("a"), TextKey("b"))
	assert.Len(t, TextKey("anything"), 64)
}
