// Package roster provides read access to loaded engagement data for the
// roster API. The batch pipeline writes the warehouse tables; this package
// only reads them.
package roster

import (
	"context"
	"errors"
	"time"
)

// Pagination bounds for roster queries.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ErrMissingCourseID is returned when a filter lacks the required course ID.
var ErrMissingCourseID = errors.New("course ID is required")

// EngagementRow is one student's engagement counters for one period,
// as loaded into the warehouse.
type EngagementRow struct {
	IntervalType         string    `json:"interval_type"`
	EndDate              string    `json:"end_date"`
	CourseID             string    `json:"course_id"`
	Username             string    `json:"username"`
	DaysActive           int       `json:"days_active"`
	ProblemsAttempted    int       `json:"problems_attempted"`
	ProblemAttempts      int       `json:"problem_attempts"`
	ProblemsCorrect      int       `json:"problems_correct"`
	VideosPlayed         int       `json:"videos_played"`
	ForumPosts           int       `json:"forum_posts"`
	ForumResponses       int       `json:"forum_responses"`
	ForumComments        int       `json:"forum_comments"`
	TextbookPagesViewed  int       `json:"textbook_pages_viewed"`
	LastSubsectionViewed string    `json:"last_subsection_viewed,omitempty"`
	LoadedAt             time.Time `json:"loaded_at"`
}

// ModuleRow is one student's interaction count with one module on one day.
type ModuleRow struct {
	CourseID        string    `json:"course_id"`
	Username        string    `json:"username"`
	Date            string    `json:"date"`
	ModuleCategory  string    `json:"module_category"`
	EncodedModuleID string    `json:"encoded_module_id"`
	Count           int       `json:"count"`
	LoadedAt        time.Time `json:"loaded_at"`
}

// CourseSummary describes one course present in the warehouse.
type CourseSummary struct {
	CourseID      string `json:"course_id"`
	Students      int    `json:"students"`
	LatestEndDate string `json:"latest_end_date"`
}

// EngagementFilter selects engagement rows. CourseID and IntervalType are
// required. An empty EndDate selects the latest loaded period for the
// course; an empty Username selects the whole roster.
type EngagementFilter struct {
	CourseID     string
	IntervalType string
	EndDate      string
	Username     string
	Limit        int
	Offset       int
}

// ModuleFilter selects module interaction rows. CourseID is required.
type ModuleFilter struct {
	CourseID string
	Username string
	Date     string
	Limit    int
	Offset   int
}

// Store defines read operations over the warehouse tables.
type Store interface {
	// ListCourses returns a summary of every course with loaded data.
	ListCourses(ctx context.Context) ([]CourseSummary, error)

	// ListEngagement returns engagement rows matching the filter,
	// ordered by username.
	ListEngagement(ctx context.Context, filter EngagementFilter) ([]EngagementRow, error)

	// ListModuleCounts returns module interaction rows matching the filter,
	// ordered by date, username, category and module.
	ListModuleCounts(ctx context.Context, filter ModuleFilter) ([]ModuleRow, error)
}

// clampLimit applies the default and maximum page sizes.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
