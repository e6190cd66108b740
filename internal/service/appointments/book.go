package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/internal/calendar"
	"appointly/internal/domain"
	"appointly/internal/store"
)

type BookInput struct {
	Name        string
	Email       string
	Date        string
	Time        string
	Description string
	// IdempotencyKey makes retries of the same request return the original booking.
	IdempotencyKey string
}

type BookResult struct {
	AppointmentID uuid.UUID
	Date          string
	Time          string
	Start         time.Time
	End           time.Time
	CalendarLink  string
	MeetingLink   string
	// Replayed is true when the result was served from an earlier request
	// with the same idempotency key.
	Replayed bool
}

func (s *Service) Book(ctx context.Context, in BookInput) (res BookResult, err error) {
	ctx, done := s.begin(ctx, "book")
	defer func() { done(err) }()

	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	date := strings.TrimSpace(in.Date)
	clock := strings.TrimSpace(in.Time)
	description := strings.TrimSpace(in.Description)

	if name == "" {
		return BookResult{}, validationError("name is required")
	}
	if email == "" {
		return BookResult{}, validationError("email is required")
	}
	explicit := date != "" && clock != ""
	if !explicit && description == "" {
		return BookResult{}, validationError("date and time, or a description mentioning them, are required")
	}
	if !emailPattern.MatchString(email) {
		return BookResult{}, validationError("email is not a valid address")
	}

	now := s.now()
	start, err := s.resolveStart(explicit, date, clock, description, now)
	if err != nil {
		return BookResult{}, err
	}
	if !start.After(now) {
		return BookResult{}, validationError("requested time is in the past")
	}
	end := start.Add(s.cfg.SlotDuration)
	slotDate, slotTime := domain.SlotOf(start, s.cfg.Location)

	appt := domain.Appointment{
		Name:        name,
		Email:       email,
		Date:        slotDate,
		Time:        slotTime,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
		Description: description,
		Status:      domain.StatusConfirmed,
	}

	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return BookResult{}, validationError("idempotency key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("appointly:book:"+key))

		existing, err := s.repo.FindByID(ctx, appt.ID)
		switch {
		case err == nil:
			// A cancelled booking cannot be replayed.
			if !existing.Active() || !samePayload(existing, appt) {
				return BookResult{}, store.ErrIdempotencyConflict
			}
			return bookResult(existing, true), nil
		case !errors.Is(err, store.ErrNotFound):
			return BookResult{}, upstream("look up idempotent booking", err)
		}
	}

	_, err = s.repo.FindOne(ctx, store.Filter{Date: slotDate, Time: slotTime, Status: domain.StatusConfirmed})
	switch {
	case err == nil:
		return BookResult{}, store.ErrConflict
	case !errors.Is(err, store.ErrNotFound):
		return BookResult{}, upstream("check slot", err)
	}

	ev, err := s.createEvent(ctx, appt)
	if err != nil {
		return BookResult{}, upstream("create calendar event", err)
	}
	appt.CalendarEventID = ev.ID
	appt.CalendarLink = ev.HTMLLink
	appt.MeetingLink = ev.MeetLink

	saved, err := s.repo.Insert(ctx, appt)
	if err != nil {
		deleteErr := s.deleteEvent(ctx, ev.ID, "compensate_calendar_event")
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrIdempotencyConflict) {
			return BookResult{}, err
		}
		uerr := &UpstreamError{Op: "persist appointment", Err: err}
		if deleteErr != nil {
			uerr.DanglingEventID = ev.ID
			s.logger.ErrorContext(ctx, "calendar event may be dangling",
				slog.String("calendar_event_id", ev.ID),
				slog.Any("err", err),
			)
		}
		return BookResult{}, uerr
	}

	if saved.CalendarEventID != ev.ID {
		// A concurrent retry with the same key won; its event is the one on record.
		_ = s.deleteEvent(ctx, ev.ID, "compensate_calendar_event")
		return bookResult(saved, true), nil
	}

	s.sendNotification(ctx, "confirmation", saved, s.renderer.Confirmation, s.details(saved))

	s.logger.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", saved.ID.String()),
		slog.String("date", saved.Date),
		slog.String("time", saved.Time),
	)
	return bookResult(saved, false), nil
}

func (s *Service) resolveStart(explicit bool, date, clock, description string, now time.Time) (time.Time, error) {
	if explicit {
		return s.ParseSlot(date, clock)
	}
	if s.extractor == nil {
		return time.Time{}, validationError("date and time are required")
	}
	t, ok, err := s.extractor.ExtractDateTime(description, now.In(s.cfg.Location))
	if err != nil || !ok {
		return time.Time{}, validationError("could not find a date and time in the description")
	}
	return t, nil
}

func (s *Service) createEvent(ctx context.Context, appt domain.Appointment) (calendar.Event, error) {
	ctx, cancel := s.external(ctx)
	defer cancel()
	return s.calendar.CreateEvent(ctx, calendar.EventInput{
		Summary:        "Appointment for " + appt.Name,
		Description:    appt.Description,
		Start:          appt.StartTime.In(s.cfg.Location),
		End:            appt.EndTime.In(s.cfg.Location),
		AttendeeEmail:  appt.Email,
		CreateMeetLink: s.cfg.CreateMeetingLink,
	})
}

func samePayload(existing, appt domain.Appointment) bool {
	return existing.Name == appt.Name &&
		existing.Email == appt.Email &&
		existing.Description == appt.Description &&
		existing.StartTime.Equal(appt.StartTime)
}

func bookResult(a domain.Appointment, replayed bool) BookResult {
	return BookResult{
		AppointmentID: a.ID,
		Date:          a.Date,
		Time:          a.Time,
		Start:         a.StartTime,
		End:           a.EndTime,
		CalendarLink:  a.CalendarLink,
		MeetingLink:   a.MeetingLink,
		Replayed:      replayed,
	}
}
