package leads

import (
	"context"
	"sync"
	"time"
)

// Repository archives submitted leads locally for follow-up listings. The
// spreadsheet remains the system of record; the archive is best-effort.
type Repository interface {
	Archive(ctx context.Context, record *LeadRecord) error
	ListRecent(ctx context.Context, limit int) ([]*LeadRecord, error)
}

// InMemoryRepository is a Repository backed by process memory, used when no
// database is configured and in tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []*LeadRecord
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Archive stores a copy of the record.
func (r *InMemoryRepository) Archive(_ context.Context, record *LeadRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.records = append(r.records, &stored)
	r.mu.Unlock()
	return nil
}

// ListRecent returns up to limit leads, newest first.
func (r *InMemoryRepository) ListRecent(_ context.Context, limit int) ([]*LeadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.records) {
		limit = len(r.records)
	}
	out := make([]*LeadRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}
