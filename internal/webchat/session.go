package webchat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is how long a browser fingerprint keeps its session.
const DefaultSessionTTL = 72 * time.Hour

// SessionStore maps client fingerprints to session ids.
type SessionStore interface {
	// Lookup returns the session id for fingerprint, or "" when none is live.
	Lookup(ctx context.Context, fingerprint string) (string, error)
	Save(ctx context.Context, fingerprint, sessionID string, ttl time.Duration) error
}

// SessionResolver derives the chat session id for transports that have no
// conversation id of their own.
type SessionResolver struct {
	store SessionStore
	ttl   time.Duration
	newID func() string
}

func NewSessionResolver(store SessionStore, ttl time.Duration) *SessionResolver {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionResolver{store: store, ttl: ttl, newID: uuid.NewString}
}

// Fingerprint hashes the forwarded client address and user agent.
func Fingerprint(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if first, _, ok := strings.Cut(ip, ","); ok {
		ip = first
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(ip + "-" + r.UserAgent()))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the live session for the request's fingerprint or starts a
// new one. Store failures fall back to a fresh session id.
func (s *SessionResolver) Resolve(ctx context.Context, r *http.Request) (string, error) {
	fp := Fingerprint(r)
	if id, err := s.store.Lookup(ctx, fp); err != nil {
		return s.newID(), err
	} else if id != "" {
		return id, nil
	}
	id := s.newID()
	if err := s.store.Save(ctx, fp, id, s.ttl); err != nil {
		return id, err
	}
	return id, nil
}

type memorySession struct {
	id      string
	expires time.Time
}

// MemorySessionStore keeps fingerprints in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySession), now: time.Now}
}

func (m *MemorySessionStore) Lookup(_ context.Context, fingerprint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[fingerprint]
	if !ok {
		return "", nil
	}
	if !m.now().Before(s.expires) {
		delete(m.sessions, fingerprint)
		return "", nil
	}
	return s.id, nil
}

func (m *MemorySessionStore) Save(_ context.Context, fingerprint, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[fingerprint] = memorySession{id: sessionID, expires: m.now().Add(ttl)}
	return nil
}

// RedisSessionStore shares fingerprints between API replicas.
type RedisSessionStore struct {
	redis *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	if client == nil {
		panic("webchat: redis client cannot be nil")
	}
	return &RedisSessionStore{redis: client}
}

func (s *RedisSessionStore) Lookup(ctx context.Context, fingerprint string) (string, error) {
	id, err := s.redis.Get(ctx, sessionKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (s *RedisSessionStore) Save(ctx context.Context, fingerprint, sessionID string, ttl time.Duration) error {
	return s.redis.Set(ctx, sessionKey(fingerprint), sessionID, ttl).Err()
}

func sessionKey(fingerprint string) string {
	return "chat:session:" + fingerprint
}
