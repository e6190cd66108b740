package appointments

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"appointly/internal/calendar"
	"appointly/internal/dateparse"
	"appointly/internal/domain"
	"appointly/internal/notify"
	"appointly/internal/store"
)

const (
	DefaultSlotDuration    = 30 * time.Minute
	DefaultExternalTimeout = 10 * time.Second

	maxIdempotencyKeyLen = 256
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var tracer = otel.Tracer("appointly.internal.service.appointments")

type CalendarAdapter interface {
	CreateEvent(ctx context.Context, in calendar.EventInput) (calendar.Event, error)
	PatchEvent(ctx context.Context, eventID string, start, end time.Time) error
	DeleteEvent(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, start, end time.Time) ([]calendar.Interval, error)
}

// Notifier delivers a message to the invitee. Failures are never fatal.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type MessageRenderer interface {
	Confirmation(d notify.BookingDetails) (notify.Message, error)
	Cancellation(d notify.BookingDetails) (notify.Message, error)
	Rescheduled(d notify.BookingDetails) (notify.Message, error)
}

type Observer interface {
	ObserveOperation(operation, result string, seconds float64)
	ObserveSideEffectFailure(step string)
}

type Config struct {
	// Location is the single zone all dates and times are interpreted in.
	Location              *time.Location
	SlotDuration          time.Duration
	ExternalTimeout       time.Duration
	SendConfirmationEmail bool
	CreateMeetingLink     bool
}

type Service struct {
	repo      store.AppointmentRepository
	calendar  CalendarAdapter
	notifier  Notifier
	extractor dateparse.Extractor
	renderer  MessageRenderer
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the booking procedure. notifier may be nil, which disables
// all emails regardless of cfg.SendConfirmationEmail.
func NewService(repo store.AppointmentRepository, cal CalendarAdapter, notifier Notifier, extractor dateparse.Extractor, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = DefaultSlotDuration
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = DefaultExternalTimeout
	}
	s := &Service{
		repo:      repo,
		calendar:  cal,
		notifier:  notifier,
		extractor: extractor,
		renderer:  notify.MustNewRenderer(),
		logger:    slog.Default(),
		now:       time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "appointments"))
	return s
}

func (s *Service) Location() *time.Location {
	return s.cfg.Location
}

// ParseSlot parses an explicit date (YYYY-MM-DD) and time (HH:MM or HH:MM:SS)
// in the configured zone.
func (s *Service) ParseSlot(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	layouts := []string{domain.TimeLayout, "15:04"}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(domain.DateLayout+" "+layout, date+" "+clock, s.cfg.Location)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationError("date must be YYYY-MM-DD and time must be HH:MM or HH:MM:SS")
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, store.ErrNotFound
	}
	return parsed, nil
}

// external bounds a single call to the calendar or the mail transport.
func (s *Service) external(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.ExternalTimeout)
}

// detached is used for compensating calls that must run even when the
// caller has gone away.
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return s.external(context.WithoutCancel(ctx))
}

func (s *Service) deleteEvent(ctx context.Context, eventID, step string) error {
	ctx, cancel := s.detached(ctx)
	defer cancel()
	err := s.calendar.DeleteEvent(ctx, eventID)
	if err != nil {
		s.sideEffectFailed(step)
		s.logger.ErrorContext(ctx, "calendar event delete failed",
			slog.String("step", step),
			slog.String("calendar_event_id", eventID),
			slog.Any("err", err),
		)
	}
	return err
}

func (s *Service) sendNotification(ctx context.Context, kind string, appt domain.Appointment, render func(notify.BookingDetails) (notify.Message, error), d notify.BookingDetails) {
	if !s.cfg.SendConfirmationEmail || s.notifier == nil {
		return
	}
	msg, err := render(d)
	if err != nil {
		s.sideEffectFailed("notify_" + kind)
		s.logger.ErrorContext(ctx, "render notification failed", slog.String("kind", kind), slog.Any("err", err))
		return
	}

	ctx, cancel := s.external(ctx)
	defer cancel()
	if err := s.notifier.Send(ctx, appt.Email, msg.Subject, msg.Body); err != nil {
		s.sideEffectFailed("notify_" + kind)
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("kind", kind),
			slog.String("appointment_id", appt.ID.String()),
			slog.Any("err", err),
		)
	}
}

func (s *Service) details(appt domain.Appointment) notify.BookingDetails {
	return notify.BookingDetails{
		Name:         appt.Name,
		Email:        appt.Email,
		Date:         appt.Date,
		Time:         appt.Time,
		TimeZone:     s.cfg.Location.String(),
		Description:  appt.Description,
		CalendarLink: appt.CalendarLink,
		MeetingLink:  appt.MeetingLink,
	}
}

func (s *Service) sideEffectFailed(step string) {
	if s.observer != nil {
		s.observer.ObserveSideEffectFailure(step)
	}
}

func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "appointments."+operation)
	started := time.Now()
	return ctx, func(err error) {
		result := resultLabel(err)
		if err != nil && result == "upstream_error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		endSpan(span, result)
		if s.observer != nil {
			s.observer.ObserveOperation(operation, result, time.Since(started).Seconds())
		}
	}
}

func endSpan(span trace.Span, result string) {
	span.AddEvent("result." + result)
	span.End()
}

func resultLabel(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "validation_error"
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrIdempotencyConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "upstream_error"
	}
}
