// Package eventlog provides parsing of raw tracking-log records emitted by the
// learning platform. Each record is a single JSON object on its own line.
package eventlog

import (
	"encoding/json"
	"errors"
	"strings"
)

// Parsing and extraction errors.
var (
	ErrMalformedLine    = errors.New("malformed event line")
	ErrMissingTimestamp = errors.New("event has no timestamp")
	ErrMissingPayload   = errors.New("event has no payload")
)

// Context carries the request context the platform attaches to each event.
type Context struct {
	CourseID string `json:"course_id"`
	OrgID    string `json:"org_id"`
	UserID   *int64 `json:"user_id"`
	Path     string `json:"path"`
}

// Event is one raw tracking-log record. The payload under "event" is either a
// JSON object or a doubly-encoded JSON string, depending on the emitting
// component; Data normalizes both forms.
type Event struct {
	Username    string          `json:"username"`
	EventType   string          `json:"event_type"`
	EventSource string          `json:"event_source"`
	Time        string          `json:"time"`
	Context     Context         `json:"context"`
	Payload     json.RawMessage `json:"event"`
	Page        string          `json:"page"`

	// decoded payload cache; populated lazily by Data
	data map[string]interface{}
}

// ParseLine decodes one tracking-log line into an Event.
func ParseLine(line []byte) (*Event, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" || trimmed[0] != '{' {
		return nil, ErrMalformedLine
	}
	var ev Event
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return nil, ErrMalformedLine
	}
	return &ev, nil
}

// Data returns the event payload as a map. Payloads arrive either as a JSON
// object or as a string containing JSON; both decode to the same map. Returns
// ErrMissingPayload when the payload is absent or cannot be decoded.
func (e *Event) Data() (map[string]interface{}, error) {
	if e.data != nil {
		return e.data, nil
	}
	if len(e.Payload) == 0 {
		return nil, ErrMissingPayload
	}

	var direct map[string]interface{}
	if err := json.Unmarshal(e.Payload, &direct); err == nil {
		e.data = direct
		return e.data, nil
	}

	// String-encoded payload: unwrap the string, then decode its contents.
	var encoded string
	if err := json.Unmarshal(e.Payload, &encoded); err != nil {
		return nil, ErrMissingPayload
	}
	var nested map[string]interface{}
	if err := json.Unmarshal([]byte(encoded), &nested); err != nil {
		return nil, ErrMissingPayload
	}
	e.data = nested
	return e.data, nil
}

// CourseID returns the course the event belongs to, preferring the request
// context and falling back to a course_id field in the payload. Returns ""
// when no course can be determined.
func (e *Event) CourseID() string {
	if e.Context.CourseID != "" {
		return e.Context.CourseID
	}
	data, err := e.Data()
	if err != nil {
		return ""
	}
	if id, ok := data["course_id"].(string); ok {
		return id
	}
	return ""
}

// TimeString returns the raw ISO-8601 event timestamp, or an error when the
// event carries none.
func (e *Event) TimeString() (string, error) {
	if e.Time == "" {
		return "", ErrMissingTimestamp
	}
	return e.Time, nil
}

// DateString returns the calendar date (YYYY-MM-DD) of the event timestamp.
func (e *Event) DateString() (string, error) {
	ts, err := e.TimeString()
	if err != nil {
		return "", err
	}
	if len(ts) < 10 {
		return "", ErrMissingTimestamp
	}
	return ts[:10], nil
}

// PayloadString returns a string field from the decoded payload, or "" when
// the field is absent or not a string.
func (e *Event) PayloadString(key string) string {
	data, err := e.Data()
	if err != nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
