package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"agrox/internal/model"

	"github.com/google/uuid"
)

// maxMemoryRecords bounds the in-memory history; the oldest entries are
// dropped first.
const maxMemoryRecords = 1000

type memoryRepository struct {
	mu      sync.RWMutex
	records []model.Diagnosis // oldest first
	now     func() time.Time
}

// NewMemoryRepository creates a process-local history.
func NewMemoryRepository() DiagnosisRepository {
	return &memoryRepository{now: time.Now}
}

func (r *memoryRepository) Create(ctx context.Context, d *model.Diagnosis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepare(d, r.now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *d)
	if len(r.records) > maxMemoryRecords {
		r.records = append([]model.Diagnosis(nil), r.records[len(r.records)-maxMemoryRecords:]...)
	}
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Diagnosis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.records {
		if r.records[i].ID == id {
			d := r.records[i]
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.Diagnosis, error) {
	r.mu.RLock()
	sorted := make([]model.Diagnosis, len(r.records))
	copy(sorted, r.records)
	r.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(sorted) {
		return []model.Diagnosis{}, nil
	}
	sorted = sorted[offset:]
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func (r *memoryRepository) CountByDisease(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int64)
	for _, d := range r.records {
		counts[d.DiseaseID]++
	}
	return counts, nil
}

func (r *memoryRepository) Close() error {
	return nil
}
