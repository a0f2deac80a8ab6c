// Package repository stores the diagnosis history.
package repository

import (
	"context"
	"errors"
	"time"

	"agrox/internal/model"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no diagnosis has the requested id.
var ErrNotFound = errors.New("diagnosis not found")

// DiagnosisRepository defines the interface for diagnosis history access
type DiagnosisRepository interface {
	// Create stores a diagnosis. A zero ID or CreatedAt is filled in.
	Create(ctx context.Context, d *model.Diagnosis) error

	// GetByID retrieves a diagnosis by ID
	GetByID(ctx context.Context, id uuid.UUID) (*model.Diagnosis, error)

	// ListRecent returns diagnoses newest first with pagination
	ListRecent(ctx context.Context, limit, offset int) ([]model.Diagnosis, error)

	// CountByDisease returns how often each disease was diagnosed
	CountByDisease(ctx context.Context) (map[string]int64, error)

	Close() error
}

func prepare(d *model.Diagnosis, now func() time.Time) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now().UTC()
	}
}
