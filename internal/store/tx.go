package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/internal/domain"
)

// SlotTx is the set of operations available while a slot is locked.
type SlotTx interface {
	FindOne(ctx context.Context, filter Filter) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	MoveAppointment(ctx context.Context, id uuid.UUID, date, clock string, start, end time.Time) error
}
