// Package calendar holds the provider-neutral shapes exchanged with an
// external calendar.
package calendar

import "time"

type EventInput struct {
	Summary        string
	Description    string
	Start          time.Time
	End            time.Time
	AttendeeEmail  string
	CreateMeetLink bool
}

type Event struct {
	ID       string
	HTMLLink string
	MeetLink string
}

// Interval is a busy span on the calendar. End is exclusive.
type Interval struct {
	Start time.Time
	End   time.Time
}
