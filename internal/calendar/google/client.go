// Package google implements the calendar adapter on top of the Google
// Calendar v3 API.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"appointly/internal/calendar"
)

const (
	DefaultCalendarID = "primary"

	conferenceTypeMeet = "hangoutsMeet"
	entryPointVideo    = "video"
	sendUpdatesAll     = "all"
)

type Config struct {
	CalendarID string
	// TimeZone is the IANA name sent with event start and end times.
	TimeZone string
}

type Client struct {
	svc        *gcal.Service
	calendarID string
	timeZone   string
}

func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	return &Client{svc: svc, calendarID: calendarID, timeZone: cfg.TimeZone}, nil
}

func (c *Client) CreateEvent(ctx context.Context, in calendar.EventInput) (calendar.Event, error) {
	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       c.dateTime(in.Start),
		End:         c.dateTime(in.End),
	}
	if in.AttendeeEmail != "" {
		ev.Attendees = []*gcal.EventAttendee{{Email: in.AttendeeEmail}}
	}

	if in.CreateMeetLink {
		ev.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: conferenceTypeMeet},
			},
		}
	}

	call := c.svc.Events.Insert(c.calendarID, ev).SendUpdates(sendUpdatesAll)
	if in.CreateMeetLink {
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return calendar.Event{}, fmt.Errorf("insert calendar event: %w", err)
	}
	return calendar.Event{
		ID:       created.Id,
		HTMLLink: created.HtmlLink,
		MeetLink: meetLink(created),
	}, nil
}

func (c *Client) PatchEvent(ctx context.Context, eventID string, start, end time.Time) error {
	patch := &gcal.Event{
		Start: c.dateTime(start),
		End:   c.dateTime(end),
	}
	_, err := c.svc.Events.Patch(c.calendarID, eventID, patch).
		SendUpdates(sendUpdatesAll).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("patch calendar event %s: %w", eventID, err)
	}
	return nil
}

// DeleteEvent removes the event. An event that is already gone counts as deleted.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.svc.Events.Delete(c.calendarID, eventID).
		SendUpdates(sendUpdatesAll).
		Context(ctx).
		Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("delete calendar event %s: %w", eventID, err)
	}
	return nil
}

// ListEvents returns the busy intervals overlapping [start, end), ordered by start.
func (c *Client) ListEvents(ctx context.Context, start, end time.Time) ([]calendar.Interval, error) {
	var out []calendar.Interval
	err := c.svc.Events.List(c.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status == "cancelled" || item.Transparency == "transparent" {
					continue
				}
				iv, err := c.interval(item)
				if err != nil {
					return err
				}
				out = append(out, iv)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return out, nil
}

func (c *Client) dateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: c.timeZone,
	}
}

func (c *Client) interval(ev *gcal.Event) (calendar.Interval, error) {
	start, err := c.parseEventTime(ev.Start)
	if err != nil {
		return calendar.Interval{}, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	end, err := c.parseEventTime(ev.End)
	if err != nil {
		return calendar.Interval{}, fmt.Errorf("event %s end: %w", ev.Id, err)
	}
	return calendar.Interval{Start: start, End: end}, nil
}

func (c *Client) parseEventTime(dt *gcal.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	// All-day events only carry a date.
	loc := time.UTC
	if c.timeZone != "" {
		if l, err := time.LoadLocation(c.timeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation("2006-01-02", dt.Date, loc)
}

func meetLink(ev *gcal.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep != nil && ep.EntryPointType == entryPointVideo {
			return ep.Uri
		}
	}
	return ""
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
}
