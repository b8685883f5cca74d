package eventlog

import (
	"testing"
)

func TestParseLine_Valid(t *testing.T) {
	line := `{"username":"alice","event_type":"play_video","event_source":"browser","time":"2021-01-05T10:30:00.123456","context":{"course_id":"course-v1:X+Y+Z"},"event":{"id":"v1"}}`
	ev, err := ParseLine([]byte(line))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ev.Username != "alice" {
		t.Errorf("Expected username alice, got %q", ev.Username)
	}
	if ev.EventType != "play_video" {
		t.Errorf("Expected event_type play_video, got %q", ev.EventType)
	}
	if ev.Context.CourseID != "course-v1:X+Y+Z" {
		t.Errorf("Unexpected course id %q", ev.Context.CourseID)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	for _, line := range []string{"", "   ", "not json", `"just a string"`, `{"username":`} {
		if _, err := ParseLine([]byte(line)); err == nil {
			t.Errorf("Expected error for line %q", line)
		}
	}
}

func TestData_ObjectPayload(t *testing.T) {
	line := `{"username":"a","event_type":"x","time":"2021-01-05T10:00:00","event":{"problem_id":"p1"}}`
	ev, err := ParseLine([]byte(line))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	data, err := ev.Data()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data["problem_id"] != "p1" {
		t.Errorf("Expected problem_id p1, got %v", data["problem_id"])
	}
}

func TestData_StringEncodedPayload(t *testing.T) {
	// Browser-emitted events carry the payload as a JSON string.
	line := `{"username":"a","event_type":"x","time":"2021-01-05T10:00:00","event":"{\"id\":\"v1\"}"}`
	ev, err := ParseLine([]byte(line))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	data, err := ev.Data()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data["id"] != "v1" {
		t.Errorf("Expected id v1, got %v", data["id"])
	}
}

func TestData_MissingOrBadPayload(t *testing.T) {
	for _, line := range []string{
		`{"username":"a","event_type":"x"}`,
		`{"username":"a","event_type":"x","event":"not json"}`,
		`{"username":"a","event_type":"x","event":42}`,
	} {
		ev, err := ParseLine([]byte(line))
		if err != nil {
			t.Fatalf("Unexpected parse error for %q: %v", line, err)
		}
		if _, err := ev.Data(); err == nil {
			t.Errorf("Expected payload error for %q", line)
		}
	}
}

func TestCourseID_ContextThenPayload(t *testing.T) {
	withContext := `{"username":"a","event_type":"x","context":{"course_id":"ctx-course"},"event":{"course_id":"payload-course"}}`
	ev, _ := ParseLine([]byte(withContext))
	if got := ev.CourseID(); got != "ctx-course" {
		t.Errorf("Expected context course id, got %q", got)
	}

	payloadOnly := `{"username":"a","event_type":"x","event":{"course_id":"payload-course"}}`
	ev, _ = ParseLine([]byte(payloadOnly))
	if got := ev.CourseID(); got != "payload-course" {
		t.Errorf("Expected payload course id, got %q", got)
	}

	neither := `{"username":"a","event_type":"x","event":{}}`
	ev, _ = ParseLine([]byte(neither))
	if got := ev.CourseID(); got != "" {
		t.Errorf("Expected empty course id, got %q", got)
	}
}

func TestDateString(t *testing.T) {
	ev := &Event{Time: "2021-01-05T10:30:00.123456"}
	date, err := ev.DateString()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if date != "2021-01-05" {
		t.Errorf("Expected 2021-01-05, got %q", date)
	}

	ev = &Event{}
	if _, err := ev.DateString(); err == nil {
		t.Error("Expected error for missing time")
	}

	ev = &Event{Time: "2021"}
	if _, err := ev.DateString(); err == nil {
		t.Error("Expected error for truncated time")
	}
}
