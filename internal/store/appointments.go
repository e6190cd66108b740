package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/internal/domain"
)

// Filter selects a single appointment by slot. Zero-valued fields are ignored.
type Filter struct {
	Date      string
	Time      string
	Status    domain.Status
	ExcludeID uuid.UUID
}

// AppointmentRepository persists appointments. Records are never removed;
// cancellation is a status change.
type AppointmentRepository interface {
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	FindOne(ctx context.Context, filter Filter) (domain.Appointment, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error
	UpdateSlot(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error
	ListConfirmed(ctx context.Context) ([]domain.Appointment, error)
}
