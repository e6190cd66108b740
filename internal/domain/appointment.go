package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	Name            string    `bun:"name,notnull"`
	Email           string    `bun:"email,notnull"`
	Date            string    `bun:"slot_date,notnull"`
	Time            string    `bun:"slot_time,notnull"`
	StartTime       time.Time `bun:"start_time,notnull"`
	EndTime         time.Time `bun:"end_time,notnull"`
	Description     string    `bun:"description"`
	Status          Status    `bun:"status,notnull"`
	CalendarEventID string    `bun:"calendar_event_id,nullzero"`
	CalendarLink    string    `bun:"calendar_link,nullzero"`
	MeetingLink     string    `bun:"meeting_link,nullzero"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = StatusConfirmed
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Active reports whether the appointment still holds its slot.
func (a Appointment) Active() bool {
	return a.Status == StatusConfirmed
}

// SameSlot reports whether both appointments resolve to the same date and time.
func (a Appointment) SameSlot(b Appointment) bool {
	return a.Date == b.Date && a.Time == b.Time
}

// SlotOf renders t as the (date, time) pair used to key a slot in loc.
func SlotOf(t time.Time, loc *time.Location) (date, clock string) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Format(DateLayout), local.Format(TimeLayout)
}
