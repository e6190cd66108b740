package appointments

import "fmt"

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// UpstreamError reports a failed calendar or store step after the request
// passed validation. DanglingEventID is set when a compensating calendar
// delete also failed and the event may still exist remotely.
type UpstreamError struct {
	Op              string
	Err             error
	DanglingEventID string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.DanglingEventID != "" {
		msg += fmt.Sprintf(" (calendar event %s may be left behind)", e.DanglingEventID)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
