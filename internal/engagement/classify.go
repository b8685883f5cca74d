// Package engagement implements the student engagement engine: classifying
// raw tracking-log events, bucketing them into reporting periods, and folding
// per-student groups into engagement records. Everything in this package is a
// pure function of its inputs; I/O, logging, and metrics live in the callers.
package engagement

import (
	"regexp"
	"strings"

	"github.com/openlearn/engage/internal/eventlog"
)

// Category is the typed activity class a raw event resolves to.
type Category string

const (
	// CategoryProblemCheck is a server-side problem submission.
	CategoryProblemCheck Category = "problem_check"
	// CategoryVideoPlay is a video playback start.
	CategoryVideoPlay Category = "play_video"
	// CategoryForumComment is a discussion comment creation.
	CategoryForumComment Category = "forum_comment"
	// CategoryForumResponse is a discussion response creation.
	CategoryForumResponse Category = "forum_response"
	// CategoryForumPost is a discussion thread creation.
	CategoryForumPost Category = "forum_post"
	// CategoryTextbookPage is a textbook page view.
	CategoryTextbookPage Category = "textbook_page"
	// CategorySubsectionViewed marks access to a courseware subsection; it
	// contributes only the most-recent-location field, never a count.
	CategorySubsectionViewed Category = "subsection_viewed"
)

// Event type prefixes for forum activity.
const (
	forumCommentPrefix  = "edx.forum.comment.created"
	forumResponsePrefix = "edx.forum.response.created"
	forumThreadPrefix   = "edx.forum.thread.created"
)

// subsectionAccessedRe matches courseware subsection access URLs used as
// event types, e.g. /courses/<course>/courseware/<chapter>/<section>/...
var subsectionAccessedRe = regexp.MustCompile(`^/courses/[^/+]+(/|\+)[^/+]+(/|\+)[^/]+/courseware/[^/]+/[^/]+/.*$`)

// GroupKey identifies one aggregation group: all events for one student in
// one course within one reporting period reduce to a single record.
type GroupKey struct {
	PeriodKey string
	CourseID  string
	Username  string
}

// Info is the category-specific payload carried by a classified event.
type Info struct {
	// Correct is set for problem checks whose submission was graded correct.
	Correct bool
	// Path and Timestamp are set for subsection-viewed markers.
	Path      string
	Timestamp string
}

// ClassifiedEvent is one raw event normalized into the engine's taxonomy.
// PeriodKey is filled in by the caller after bucketing the event date.
type ClassifiedEvent struct {
	Key      GroupKey
	EntityID string
	Category Category
	Info     Info
	Date     string
}

// Classify inspects one raw event and either returns its normalized form or
// nil. Nil means the event is discarded: missing username, missing event
// type, unresolvable course, unparseable payload, or an event type outside
// the engagement taxonomy. Drops are silent; the caller counts them.
func Classify(ev *eventlog.Event) *ClassifiedEvent {
	username := strings.TrimSpace(ev.Username)
	if username == "" {
		return nil
	}

	eventType := ev.EventType
	if eventType == "" {
		return nil
	}

	courseID := ev.CourseID()
	if courseID == "" {
		return nil
	}

	data, err := ev.Data()
	if err != nil {
		return nil
	}

	date, err := ev.DateString()
	if err != nil {
		return nil
	}

	ce := &ClassifiedEvent{
		Key:  GroupKey{CourseID: courseID, Username: username},
		Date: date,
	}

	switch {
	case eventType == "problem_check":
		// Browser-originated problem_check events duplicate the server
		// event; only the server copy carries the graded result.
		if ev.EventSource != "server" {
			return nil
		}
		problemID, _ := data["problem_id"].(string)
		if problemID == "" {
			return nil
		}
		ce.Category = CategoryProblemCheck
		ce.EntityID = problemID
		if success, ok := data["success"].(string); ok && strings.EqualFold(success, "correct") {
			ce.Info.Correct = true
		}

	case eventType == "play_video":
		videoID, _ := data["id"].(string)
		if videoID == "" {
			return nil
		}
		ce.Category = CategoryVideoPlay
		ce.EntityID = videoID

	case strings.HasPrefix(eventType, "/courses/") && subsectionAccessedRe.MatchString(eventType):
		ts, err := ev.TimeString()
		if err != nil {
			return nil
		}
		ce.Category = CategorySubsectionViewed
		ce.Info.Path = eventType
		ce.Info.Timestamp = ts

	case strings.HasPrefix(eventType, forumCommentPrefix):
		ce.Category = CategoryForumComment

	case strings.HasPrefix(eventType, forumResponsePrefix):
		ce.Category = CategoryForumResponse

	case strings.HasPrefix(eventType, forumThreadPrefix):
		ce.Category = CategoryForumPost

	case eventType == "book":
		ce.Category = CategoryTextbookPage

	default:
		return nil
	}

	return ce
}
