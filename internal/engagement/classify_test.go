package engagement

import (
	"encoding/json"
	"testing"

	"github.com/openlearn/engage/internal/eventlog"
)

func rawEvent(username, eventType, source, payload string) *eventlog.Event {
	return &eventlog.Event{
		Username:    username,
		EventType:   eventType,
		EventSource: source,
		Time:        "2021-01-05T10:30:00.123456",
		Context:     eventlog.Context{CourseID: "course-v1:OpenLearn+GO101+2021"},
		Payload:     json.RawMessage(payload),
	}
}

func TestClassify_EmptyUsername(t *testing.T) {
	for _, username := range []string{"", "   ", "\t\n"} {
		ev := rawEvent(username, "problem_check", "server", `{"problem_id":"p1"}`)
		if got := Classify(ev); got != nil {
			t.Errorf("Expected nil for username %q, got %+v", username, got)
		}
	}
}

func TestClassify_MissingEventType(t *testing.T) {
	ev := rawEvent("alice", "", "server", `{"problem_id":"p1"}`)
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil for missing event type, got %+v", got)
	}
}

func TestClassify_MissingCourse(t *testing.T) {
	ev := rawEvent("alice", "problem_check", "server", `{"problem_id":"p1"}`)
	ev.Context.CourseID = ""
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil for missing course, got %+v", got)
	}
}

func TestClassify_UnparseablePayload(t *testing.T) {
	ev := rawEvent("alice", "problem_check", "server", `not json`)
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil for unparseable payload, got %+v", got)
	}
}

func TestClassify_ProblemCheckBrowserDropped(t *testing.T) {
	// Client-side problem_check duplicates the server event and is always
	// dropped, regardless of payload contents.
	ev := rawEvent("alice", "problem_check", "browser", `{"problem_id":"p1","success":"correct"}`)
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil for browser-side problem_check, got %+v", got)
	}
}

func TestClassify_ProblemCheckServer(t *testing.T) {
	ev := rawEvent("alice", "problem_check", "server", `{"problem_id":"p1","success":"correct"}`)
	got := Classify(ev)
	if got == nil {
		t.Fatal("Expected classified event, got nil")
	}
	if got.Category != CategoryProblemCheck {
		t.Errorf("Expected category %q, got %q", CategoryProblemCheck, got.Category)
	}
	if got.EntityID != "p1" {
		t.Errorf("Expected entity p1, got %q", got.EntityID)
	}
	if !got.Info.Correct {
		t.Error("Expected Correct=true for success=correct")
	}
	if got.Key.Username != "alice" {
		t.Errorf("Expected username alice, got %q", got.Key.Username)
	}
	if got.Date != "2021-01-05" {
		t.Errorf("Expected date 2021-01-05, got %q", got.Date)
	}
}

func TestClassify_ProblemCheckSuccessCaseInsensitive(t *testing.T) {
	cases := map[string]bool{
		`{"problem_id":"p1","success":"CORRECT"}`:   true,
		`{"problem_id":"p1","success":"Correct"}`:   true,
		`{"problem_id":"p1","success":"incorrect"}`: false,
		`{"problem_id":"p1"}`:                       false,
	}
	for payload, wantCorrect := range cases {
		ev := rawEvent("alice", "problem_check", "server", payload)
		got := Classify(ev)
		if got == nil {
			t.Fatalf("Expected classified event for payload %s", payload)
		}
		if got.Info.Correct != wantCorrect {
			t.Errorf("Payload %s: expected Correct=%v, got %v", payload, wantCorrect, got.Info.Correct)
		}
	}
}

func TestClassify_ProblemCheckMissingProblemID(t *testing.T) {
	ev := rawEvent("alice", "problem_check", "server", `{"success":"correct"}`)
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil without problem_id, got %+v", got)
	}
}

func TestClassify_PlayVideo(t *testing.T) {
	ev := rawEvent("bob", "play_video", "browser", `{"id":"vid-42"}`)
	got := Classify(ev)
	if got == nil {
		t.Fatal("Expected classified event, got nil")
	}
	if got.Category != CategoryVideoPlay {
		t.Errorf("Expected category %q, got %q", CategoryVideoPlay, got.Category)
	}
	if got.EntityID != "vid-42" {
		t.Errorf("Expected entity vid-42, got %q", got.EntityID)
	}
}

func TestClassify_PlayVideoMissingID(t *testing.T) {
	ev := rawEvent("bob", "play_video", "browser", `{}`)
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil without video id, got %+v", got)
	}
}

func TestClassify_SubsectionViewed(t *testing.T) {
	path := "/courses/OpenLearn/GO101/2021/courseware/chapter1/section2/"
	ev := rawEvent("carol", path, "server", `{}`)
	got := Classify(ev)
	if got == nil {
		t.Fatal("Expected classified event, got nil")
	}
	if got.Category != CategorySubsectionViewed {
		t.Errorf("Expected category %q, got %q", CategorySubsectionViewed, got.Category)
	}
	if got.EntityID != "" {
		t.Errorf("Expected empty entity id, got %q", got.EntityID)
	}
	if got.Info.Path != path {
		t.Errorf("Expected path %q, got %q", path, got.Info.Path)
	}
	if got.Info.Timestamp != "2021-01-05T10:30:00.123456" {
		t.Errorf("Unexpected timestamp %q", got.Info.Timestamp)
	}
}

func TestClassify_SubsectionViewedPlusSeparators(t *testing.T) {
	path := "/courses/course-v1:OpenLearn+GO101+2021/courseware/ch/sec/1"
	ev := rawEvent("carol", path, "server", `{}`)
	got := Classify(ev)
	if got == nil {
		t.Fatal("Expected classified event for plus-separated course key")
	}
	if got.Category != CategorySubsectionViewed {
		t.Errorf("Expected category %q, got %q", CategorySubsectionViewed, got.Category)
	}
}

func TestClassify_SubsectionViewedNoTimestamp(t *testing.T) {
	path := "/courses/OpenLearn/GO101/2021/courseware/chapter1/section2/"
	ev := rawEvent("carol", path, "server", `{}`)
	ev.Time = ""
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil without timestamp, got %+v", got)
	}
}

func TestClassify_NonCoursewareURLDropped(t *testing.T) {
	ev := rawEvent("carol", "/courses/OpenLearn/GO101/2021/about", "server", `{}`)
	if got := Classify(ev); got != nil {
		t.Errorf("Expected nil for non-courseware URL, got %+v", got)
	}
}

func TestClassify_ForumAndTextbook(t *testing.T) {
	cases := map[string]Category{
		"edx.forum.comment.created":  CategoryForumComment,
		"edx.forum.response.created": CategoryForumResponse,
		"edx.forum.thread.created":   CategoryForumPost,
		"book":                       CategoryTextbookPage,
	}
	for eventType, want := range cases {
		ev := rawEvent("dave", eventType, "server", `{}`)
		got := Classify(ev)
		if got == nil {
			t.Fatalf("Expected classified event for %q", eventType)
		}
		if got.Category != want {
			t.Errorf("%q: expected category %q, got %q", eventType, want, got.Category)
		}
		if got.EntityID != "" {
			t.Errorf("%q: expected empty entity id, got %q", eventType, got.EntityID)
		}
	}
}

func TestClassify_UnrecognizedTypeDropped(t *testing.T) {
	for _, eventType := range []string{"page_close", "seek_video", "edx.course.enrollment.activated"} {
		ev := rawEvent("dave", eventType, "server", `{}`)
		if got := Classify(ev); got != nil {
			t.Errorf("Expected nil for %q, got %+v", eventType, got)
		}
	}
}
