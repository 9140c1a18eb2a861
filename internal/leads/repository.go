package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead record storage
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	ListByLead(ctx context.Context, leadID int64, filter ListRecordsFilter) ([]*Record, error)
	Latest(ctx context.Context, leadID int64) (*Record, error)
}

// InMemoryRepository keeps records in process memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[int64][]*Record
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[int64][]*Record),
	}
}

func (r *InMemoryRepository) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	if rec.LeadID <= 0 {
		return ErrInvalidLeadID
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	copied := *rec

	r.mu.Lock()
	r.records[rec.LeadID] = append(r.records[rec.LeadID], &copied)
	r.mu.Unlock()
	return nil
}

// ListByLead returns records newest first.
func (r *InMemoryRepository) ListByLead(ctx context.Context, leadID int64, filter ListRecordsFilter) ([]*Record, error) {
	filter = filter.normalized()

	r.mu.RLock()
	stored := r.records[leadID]
	out := make([]*Record, 0, len(stored))
	for _, rec := range stored {
		copied := *rec
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return []*Record{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Latest(ctx context.Context, leadID int64) (*Record, error) {
	records, err := r.ListByLead(ctx, leadID, ListRecordsFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrLeadNotFound
	}
	return records[0], nil
}
