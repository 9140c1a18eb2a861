package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProfile is a profile derived from the first TurnCount turns of a session.
type CachedProfile struct {
	Profile   ClientProfile `json:"profile"`
	TurnCount int           `json:"turnCount"`
}

// ProfileCache is advisory: a miss or a failure only costs a history replay.
type ProfileCache interface {
	Get(ctx context.Context, sessionID string) (CachedProfile, bool)
	Put(ctx context.Context, sessionID string, entry CachedProfile)
}

// NoopProfileCache never stores anything.
type NoopProfileCache struct{}

func (NoopProfileCache) Get(context.Context, string) (CachedProfile, bool) {
	return CachedProfile{}, false
}
func (NoopProfileCache) Put(context.Context, string, CachedProfile) {}

type memoryProfileEntry struct {
	value   CachedProfile
	expires time.Time
}

// MemoryProfileCache holds profiles for the lifetime of the process.
type MemoryProfileCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]memoryProfileEntry
}

func NewMemoryProfileCache(ttl time.Duration) *MemoryProfileCache {
	return &MemoryProfileCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryProfileEntry)}
}

func (c *MemoryProfileCache) Get(_ context.Context, sessionID string) (CachedProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sessionID]
	if !ok {
		return CachedProfile{}, false
	}
	if c.ttl > 0 && c.now().After(entry.expires) {
		delete(c.entries, sessionID)
		return CachedProfile{}, false
	}
	return entry.value, true
}

func (c *MemoryProfileCache) Put(_ context.Context, sessionID string, value CachedProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = memoryProfileEntry{value: value, expires: c.now().Add(c.ttl)}
}

// RedisProfileCache shares profiles between API and worker processes.
type RedisProfileCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisProfileCache(client *redis.Client, ttl time.Duration) *RedisProfileCache {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisProfileCache{redis: client, ttl: ttl}
}

func (c *RedisProfileCache) Get(ctx context.Context, sessionID string) (CachedProfile, bool) {
	data, err := c.redis.Get(ctx, profileKey(sessionID)).Bytes()
	if err != nil {
		return CachedProfile{}, false
	}
	var entry CachedProfile
	if err := json.Unmarshal(data, &entry); err != nil {
		return CachedProfile{}, false
	}
	return entry, true
}

func (c *RedisProfileCache) Put(ctx context.Context, sessionID string, entry CachedProfile) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, profileKey(sessionID), data, c.ttl).Err()
}

func profileKey(sessionID string) string {
	return fmt.Sprintf("chat:profile:%s", sessionID)
}
