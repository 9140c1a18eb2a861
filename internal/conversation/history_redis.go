package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	redisEmbeddingIndexKey = "chat:embeddings"
	defaultRedisIndexLimit = 20000
)

// RedisHistoryStore keeps each session as a Redis list and a capped global
// list of embedded turns for similarity search.
type RedisHistoryStore struct {
	redis      *redis.Client
	tracer     trace.Tracer
	ttl        time.Duration
	indexLimit int64
}

type indexedTurn struct {
	SessionID string    `json:"s"`
	Text      string    `json:"t"`
	Vector    []float32 `json:"v"`
}

// NewRedisHistoryStore builds a store; ttl <= 0 keeps sessions without expiry.
func NewRedisHistoryStore(client *redis.Client, ttl time.Duration) *RedisHistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisHistoryStore{
		redis:      client,
		tracer:     otel.Tracer("alejandria.internal.conversation.history"),
		ttl:        ttl,
		indexLimit: defaultRedisIndexLimit,
	}
}

func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, turns ...StoredTurn) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("turns", len(turns)),
	))
	defer span.End()

	if len(turns) == 0 {
		return nil
	}
	key := sessionKey(sessionID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, turn := range turns {
			data, err := json.Marshal(turn.Turn)
			if err != nil {
				return fmt.Errorf("conversation: failed to marshal turn: %w", err)
			}
			pipe.RPush(ctx, key, data)
			if len(turn.Embedding) == 0 {
				continue
			}
			entry, err := json.Marshal(indexedTurn{SessionID: sessionID, Text: turn.Text, Vector: turn.Embedding})
			if err != nil {
				return fmt.Errorf("conversation: failed to marshal embedding: %w", err)
			}
			pipe.RPush(ctx, redisEmbeddingIndexKey, entry)
		}
		pipe.LTrim(ctx, redisEmbeddingIndexKey, -s.indexLimit, -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisHistoryStore) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	raw, err := s.redis.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisHistoryStore) NearestByEmbedding(ctx context.Context, query []float32, k int, sessionID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.nearest_turns")
	defer span.End()

	raw, err := s.redis.LRange(ctx, redisEmbeddingIndexKey, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load embeddings: %w", err)
	}
	candidates := make([]StoredTurn, 0, len(raw))
	for _, item := range raw {
		var entry indexedTurn
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		if sessionID != "" && entry.SessionID != sessionID {
			continue
		}
		candidates = append(candidates, StoredTurn{Turn: Turn{Text: entry.Text}, Embedding: entry.Vector})
	}
	return rankByCosine(query, candidates, k), nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("chat:session:%s", id)
}
