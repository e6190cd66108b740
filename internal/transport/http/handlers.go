package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"appointly/internal/calendar"
	"appointly/internal/domain"
	"appointly/internal/service/appointments"
)

const maxBodyBytes = 1 << 20

type appointmentsService interface {
	Book(ctx context.Context, in appointments.BookInput) (appointments.BookResult, error)
	Cancel(ctx context.Context, id string) (appointments.CancelResult, error)
	Reschedule(ctx context.Context, in appointments.RescheduleInput) (appointments.RescheduleResult, error)
	ListAvailability(ctx context.Context, start, end time.Time) ([]calendar.Interval, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Location() *time.Location
}

type AppointmentsHandler struct {
	svc appointmentsService
	log *slog.Logger
}

func NewAppointmentsHandler(svc appointmentsService, log *slog.Logger) *AppointmentsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsHandler{
		svc: svc,
		log: log.With(slog.String("component", "http.appointments")),
	}
}

func (h *AppointmentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Book)
	r.Post("/book", h.Book)
	r.Delete("/{id}", h.CancelByPath)
	r.Post("/cancel", h.CancelByBody)
	r.Put("/reschedule", h.Reschedule)
	r.Post("/reschedule", h.Reschedule)
	r.Post("/available", h.Availability)
	return r
}

type bookRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

type bookingResponse struct {
	BookingID    string    `json:"booking_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	CalendarLink string    `json:"calendar_link,omitempty"`
	MeetingLink  string    `json:"meeting_link,omitempty"`
	Message      string    `json:"message"`
}

func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Book(r.Context(), appointments.BookInput{
		Name:           req.Name,
		Email:          req.Email,
		Date:           req.Date,
		Time:           req.Time,
		Description:    req.Description,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeError(w, r, h.log, "book", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, bookingResponse{
		BookingID:    res.AppointmentID.String(),
		Date:         res.Date,
		Time:         res.Time,
		Start:        res.Start,
		End:          res.End,
		CalendarLink: res.CalendarLink,
		MeetingLink:  res.MeetingLink,
		Message:      "Appointment booked successfully",
	})
}

func idempotencyKey(r *http.Request) string {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = r.Header.Get("X-Idempotency-Key")
	}
	return strings.TrimSpace(key)
}

type appointmentView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	CalendarLink string    `json:"calendar_link,omitempty"`
	MeetingLink  string    `json:"meeting_link,omitempty"`
}

func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, h.log, "list", err)
		return
	}

	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, appointmentView{
			ID:           a.ID.String(),
			Name:         a.Name,
			Email:        a.Email,
			Date:         a.Date,
			Time:         a.Time,
			Start:        a.StartTime,
			End:          a.EndTime,
			Description:  a.Description,
			Status:       string(a.Status),
			CalendarLink: a.CalendarLink,
			MeetingLink:  a.MeetingLink,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out, "count": len(out)})
}

func (h *AppointmentsHandler) CancelByPath(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, chi.URLParam(r, "id"))
}

type cancelRequest struct {
	BookingID string `json:"booking_id"`
}

func (h *AppointmentsHandler) CancelByBody(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		badRequest(w, "booking_id is required")
		return
	}
	h.cancel(w, r, req.BookingID)
}

func (h *AppointmentsHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id":        res.AppointmentID.String(),
		"already_cancelled": res.AlreadyCancelled,
		"message":           "Appointment cancelled",
	})
}

type rescheduleRequest struct {
	BookingID string `json:"booking_id"`
	NewSlot   string `json:"new_slot"`
}

func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BookingID) == "" || strings.TrimSpace(req.NewSlot) == "" {
		badRequest(w, "booking_id and new_slot are required")
		return
	}
	date, clock, ok := splitSlot(req.NewSlot, h.svc.Location())
	if !ok {
		badRequest(w, "new_slot must be YYYY-MM-DDTHH:MM[:SS] or RFC 3339")
		return
	}

	res, err := h.svc.Reschedule(r.Context(), appointments.RescheduleInput{
		ID:   req.BookingID,
		Date: date,
		Time: clock,
	})
	if err != nil {
		writeError(w, r, h.log, "reschedule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id":    res.AppointmentID.String(),
		"date":          res.Date,
		"time":          res.Time,
		"start":         res.Start,
		"end":           res.End,
		"previous_date": res.PreviousDate,
		"previous_time": res.PreviousTime,
		"message":       "Appointment rescheduled",
	})
}

// splitSlot accepts a zoned RFC 3339 timestamp or a local YYYY-MM-DDTHH:MM[:SS]
// and returns the date and clock in loc.
func splitSlot(slot string, loc *time.Location) (date, clock string, ok bool) {
	slot = strings.TrimSpace(slot)
	if t, err := time.Parse(time.RFC3339, slot); err == nil {
		date, clock = domain.SlotOf(t, loc)
		return date, clock, true
	}
	date, clock, found := strings.Cut(slot, "T")
	if !found {
		date, clock, found = strings.Cut(slot, " ")
	}
	if !found || date == "" || clock == "" {
		return "", "", false
	}
	return date, clock, true
}

type availabilityRequest struct {
	DateRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date_range"`
}

type intervalView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *AppointmentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	loc := h.svc.Location()
	start, okStart := parseBound(req.DateRange.Start, loc, false)
	end, okEnd := parseBound(req.DateRange.End, loc, true)
	if !okStart || !okEnd {
		badRequest(w, "date_range.start and date_range.end must be RFC 3339 timestamps or YYYY-MM-DD dates")
		return
	}

	busy, err := h.svc.ListAvailability(r.Context(), start, end)
	if err != nil {
		writeError(w, r, h.log, "availability", err)
		return
	}
	out := make([]intervalView, 0, len(busy))
	for _, b := range busy {
		out = append(out, intervalView{Start: b.Start.In(loc), End: b.End.In(loc)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"busy": out})
}

// parseBound reads one end of a date range. A bare date used as the end bound
// covers that whole day.
func parseBound(v string, loc *time.Location, isEnd bool) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	d, err := time.ParseInLocation(domain.DateLayout, v, loc)
	if err != nil {
		return time.Time{}, false
	}
	if isEnd {
		d = d.AddDate(0, 0, 1)
	}
	return d, true
}

func (h *AppointmentsHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			badRequest(w, "request body is required")
			return false
		}
		h.log.WarnContext(r.Context(), "invalid request body", slog.Any("err", err))
		badRequest(w, "request body must be valid JSON")
		return false
	}
	return true
}

