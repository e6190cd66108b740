package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// BookingDetails is the data available to every message template.
type BookingDetails struct {
	Name         string
	Email        string
	Date         string
	Time         string
	TimeZone     string
	Description  string
	CalendarLink string
	MeetingLink  string
	PreviousDate string
	PreviousTime string
}

type Message struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

type Renderer struct {
	confirmation messageTemplate
	cancellation messageTemplate
	rescheduled  messageTemplate
}

const (
	confirmationSubject = `Your appointment on {{.Date}} at {{.Time}} is confirmed`
	confirmationBody    = `Hi {{.Name}},

Your appointment is booked for {{.Date}} at {{.Time}} ({{.TimeZone}}).
{{- if .Description}}

Notes: {{.Description}}
{{- end}}
{{- if .MeetingLink}}

Join the meeting: {{.MeetingLink}}
{{- end}}
{{- if .CalendarLink}}

View in calendar: {{.CalendarLink}}
{{- end}}
`

	cancellationSubject = `Your appointment on {{.Date}} at {{.Time}} was cancelled`
	cancellationBody    = `Hi {{.Name}},

Your appointment on {{.Date}} at {{.Time}} ({{.TimeZone}}) has been cancelled.
`

	rescheduledSubject = `Your appointment moved to {{.Date}} at {{.Time}}`
	rescheduledBody    = `Hi {{.Name}},

Your appointment on {{.PreviousDate}} at {{.PreviousTime}} has been moved to {{.Date}} at {{.Time}} ({{.TimeZone}}).
{{- if .MeetingLink}}

Join the meeting: {{.MeetingLink}}
{{- end}}
`
)

// NewRenderer parses the built-in templates. Templates fail on unknown keys.
func NewRenderer() (*Renderer, error) {
	confirmation, err := parseMessage("confirmation", confirmationSubject, confirmationBody)
	if err != nil {
		return nil, err
	}
	cancellation, err := parseMessage("cancellation", cancellationSubject, cancellationBody)
	if err != nil {
		return nil, err
	}
	rescheduled, err := parseMessage("rescheduled", rescheduledSubject, rescheduledBody)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		confirmation: confirmation,
		cancellation: cancellation,
		rescheduled:  rescheduled,
	}, nil
}

// MustNewRenderer panics if the built-in templates do not parse.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Confirmation(d BookingDetails) (Message, error) {
	return r.confirmation.render(d)
}

func (r *Renderer) Cancellation(d BookingDetails) (Message, error) {
	return r.cancellation.render(d)
}

func (r *Renderer) Rescheduled(d BookingDetails) (Message, error) {
	return r.rescheduled.render(d)
}

func parseMessage(name, subject, body string) (messageTemplate, error) {
	s, err := template.New(name + "_subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return messageTemplate{}, fmt.Errorf("parse %s subject: %w", name, err)
	}
	b, err := template.New(name + "_body").Option("missingkey=error").Parse(body)
	if err != nil {
		return messageTemplate{}, fmt.Errorf("parse %s body: %w", name, err)
	}
	return messageTemplate{subject: s, body: b}, nil
}

func (t messageTemplate) render(d BookingDetails) (Message, error) {
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, d); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&body, d); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{Subject: subject.String(), Body: body.String()}, nil
}
