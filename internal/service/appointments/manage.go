package appointments

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/internal/calendar"
	"appointly/internal/domain"
	"appointly/internal/store"
)

type CancelResult struct {
	AppointmentID    uuid.UUID
	AlreadyCancelled bool
}

// Cancel marks the appointment cancelled and then removes its calendar
// event on a best-effort basis. Cancelling twice succeeds.
func (s *Service) Cancel(ctx context.Context, id string) (res CancelResult, err error) {
	ctx, done := s.begin(ctx, "cancel")
	defer func() { done(err) }()

	apptID, err := parseID(id)
	if err != nil {
		return CancelResult{}, err
	}
	appt, err := s.find(ctx, apptID)
	if err != nil {
		return CancelResult{}, err
	}
	if !appt.Active() {
		return CancelResult{AppointmentID: appt.ID, AlreadyCancelled: true}, nil
	}

	if err := s.repo.UpdateStatus(ctx, appt.ID, domain.StatusCancelled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CancelResult{}, err
		}
		return CancelResult{}, upstream("cancel appointment", err)
	}

	if appt.CalendarEventID != "" {
		_ = s.deleteEvent(ctx, appt.CalendarEventID, "cancel_calendar_event")
	}
	s.sendNotification(ctx, "cancellation", appt, s.renderer.Cancellation, s.details(appt))

	s.logger.InfoContext(ctx, "appointment cancelled", slog.String("appointment_id", appt.ID.String()))
	return CancelResult{AppointmentID: appt.ID}, nil
}

type RescheduleInput struct {
	ID   string
	Date string
	Time string
}

type RescheduleResult struct {
	AppointmentID uuid.UUID
	Date          string
	Time          string
	Start         time.Time
	End           time.Time
	PreviousDate  string
	PreviousTime  string
}

// Reschedule moves a confirmed appointment to a new slot. The calendar is
// patched first; the stored record only changes once the patch succeeded.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (res RescheduleResult, err error) {
	ctx, done := s.begin(ctx, "reschedule")
	defer func() { done(err) }()

	apptID, err := parseID(in.ID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if strings.TrimSpace(in.Date) == "" || strings.TrimSpace(in.Time) == "" {
		return RescheduleResult{}, validationError("new date and time are required")
	}
	start, err := s.ParseSlot(in.Date, in.Time)
	if err != nil {
		return RescheduleResult{}, err
	}

	appt, err := s.find(ctx, apptID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if !appt.Active() {
		return RescheduleResult{}, validationError("cancelled appointments cannot be rescheduled")
	}

	end := start.Add(s.cfg.SlotDuration)
	date, clock := domain.SlotOf(start, s.cfg.Location)
	res = RescheduleResult{
		AppointmentID: appt.ID,
		Date:          date,
		Time:          clock,
		Start:         start.UTC(),
		End:           end.UTC(),
		PreviousDate:  appt.Date,
		PreviousTime:  appt.Time,
	}
	moved := appt
	moved.Date, moved.Time = date, clock
	if moved.SameSlot(appt) {
		return res, nil
	}
	moved.StartTime, moved.EndTime = start.UTC(), end.UTC()
	if !start.After(s.now()) {
		return RescheduleResult{}, validationError("requested time is in the past")
	}

	_, err = s.repo.FindOne(ctx, store.Filter{Date: date, Time: clock, Status: domain.StatusConfirmed, ExcludeID: appt.ID})
	switch {
	case err == nil:
		return RescheduleResult{}, store.ErrConflict
	case !errors.Is(err, store.ErrNotFound):
		return RescheduleResult{}, upstream("check slot", err)
	}

	if appt.CalendarEventID != "" {
		if err := s.patchEvent(ctx, appt.CalendarEventID, start, end); err != nil {
			return RescheduleResult{}, upstream("patch calendar event", err)
		}
	}

	if err := s.repo.UpdateSlot(ctx, appt.ID, date, clock, start.UTC(), end.UTC()); err != nil {
		if appt.CalendarEventID != "" {
			s.revertPatch(ctx, appt)
		}
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return RescheduleResult{}, err
		}
		return RescheduleResult{}, upstream("update appointment", err)
	}

	d := s.details(moved)
	d.PreviousDate, d.PreviousTime = appt.Date, appt.Time
	s.sendNotification(ctx, "reschedule", moved, s.renderer.Rescheduled, d)

	s.logger.InfoContext(ctx, "appointment rescheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("date", date),
		slog.String("time", clock),
	)
	return res, nil
}

// ListAvailability returns the calendar's busy intervals in [start, end),
// ordered by start. The result is a snapshot taken at call time.
func (s *Service) ListAvailability(ctx context.Context, start, end time.Time) (out []calendar.Interval, err error) {
	ctx, done := s.begin(ctx, "availability")
	defer func() { done(err) }()

	if start.IsZero() || end.IsZero() {
		return nil, validationError("start and end are required")
	}
	if !end.After(start) {
		return nil, validationError("end must be after start")
	}

	callCtx, cancel := s.external(ctx)
	defer cancel()
	busy, err := s.calendar.ListEvents(callCtx, start, end)
	if err != nil {
		return nil, upstream("list calendar events", err)
	}

	out = make([]calendar.Interval, len(busy))
	copy(out, busy)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// List returns confirmed appointments ordered by date then time.
func (s *Service) List(ctx context.Context) (out []domain.Appointment, err error) {
	ctx, done := s.begin(ctx, "list")
	defer func() { done(err) }()

	rows, err := s.repo.ListConfirmed(ctx)
	if err != nil {
		return nil, upstream("list appointments", err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Time < rows[j].Time
	})
	return rows, nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, err
	}
	if err != nil {
		return domain.Appointment{}, upstream("load appointment", err)
	}
	return appt, nil
}

func (s *Service) patchEvent(ctx context.Context, eventID string, start, end time.Time) error {
	ctx, cancel := s.external(ctx)
	defer cancel()
	return s.calendar.PatchEvent(ctx, eventID, start.In(s.cfg.Location), end.In(s.cfg.Location))
}

func (s *Service) revertPatch(ctx context.Context, appt domain.Appointment) {
	ctx, cancel := s.detached(ctx)
	defer cancel()
	err := s.calendar.PatchEvent(ctx, appt.CalendarEventID, appt.StartTime.In(s.cfg.Location), appt.EndTime.In(s.cfg.Location))
	if err != nil {
		s.sideEffectFailed("revert_calendar_patch")
		s.logger.ErrorContext(ctx, "calendar patch revert failed",
			slog.String("appointment_id", appt.ID.String()),
			slog.String("calendar_event_id", appt.CalendarEventID),
			slog.Any("err", err),
		)
	}
}
