package webchat

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintUsesForwardedIPAndUserAgent(t *testing.T) {
	a := httptest.NewRequest("POST", "/chat", nil)
	a.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	a.Header.Set("User-Agent", "Mozilla/5.0")

	b := httptest.NewRequest("POST", "/chat", nil)
	b.Header.Set("X-Forwarded-For", "203.0.113.7")
	b.Header.Set("User-Agent", "Mozilla/5.0")

	c := httptest.NewRequest("POST", "/chat", nil)
	c.Header.Set("X-Forwarded-For", "203.0.113.7")
	c.Header.Set("User-Agent", "curl/8.0")

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Len(t, Fingerprint(a), 64)
}

func TestSessionResolverReusesWithinTTL(t *testing.T) {
	store := NewMemorySessionStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	resolver := NewSessionResolver(store, 0)

	req := httptest.NewRequest("POST", "/chat", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, req)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(DefaultSessionTTL)
	third, err := resolver.Resolve(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "sessions expire after three days")
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisSessionStore(client)
	ctx := context.Background()

	id, err := store.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.Save(ctx, "fp", "sess-1", time.Hour))
	id, err = store.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)

	mr.FastForward(2 * time.Hour)
	id, err = store.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.Empty(t, id)
}
