package conversation

import (
	"context"
	"math"
	"sort"
	"sync"
)

// StoredTurn is a history turn together with its embedding.
type StoredTurn struct {
	Turn
	Embedding []float32 `json:"embedding,omitempty"`
}

// HistoryStore persists chat turns and serves nearest-neighbor lookups.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, turns ...StoredTurn) error
	ListTurns(ctx context.Context, sessionID string) ([]Turn, error)
	// NearestByEmbedding returns the texts of the k turns most similar to
	// query. An empty sessionID searches every session.
	NearestByEmbedding(ctx context.Context, query []float32, k int, sessionID string) ([]string, error)
}

// MemoryHistoryStore keeps history in process memory.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]StoredTurn
	order    []string
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{sessions: make(map[string][]StoredTurn)}
}

func (s *MemoryHistoryStore) Append(_ context.Context, sessionID string, turns ...StoredTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.order = append(s.order, sessionID)
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

func (s *MemoryHistoryStore) ListTurns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.sessions[sessionID]
	out := make([]Turn, len(stored))
	for i, t := range stored {
		out[i] = t.Turn
	}
	return out, nil
}

func (s *MemoryHistoryStore) NearestByEmbedding(_ context.Context, query []float32, k int, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []StoredTurn
	if sessionID != "" {
		candidates = s.sessions[sessionID]
	} else {
		for _, id := range s.order {
			candidates = append(candidates, s.sessions[id]...)
		}
	}
	return rankByCosine(query, candidates, k), nil
}

// rankByCosine returns the texts of the k candidates closest to query.
// Ties keep insertion order.
func rankByCosine(query []float32, candidates []StoredTurn, k int) []string {
	if k <= 0 || len(query) == 0 {
		return nil
	}
	type scored struct {
		score float64
		text  string
	}
	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		results = append(results, scored{score: cosineSimilarity(query, c.Embedding), text: c.Text})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > k {
		results = results[:k]
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.text
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
