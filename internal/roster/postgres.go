package roster

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openlearn/engage/internal/tracing"
)

// PostgresStore implements Store over the warehouse database.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// ListCourses returns a summary of every course with loaded data.
func (s *PostgresStore) ListCourses(ctx context.Context) (summaries []CourseSummary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_engagement", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT course_id, COUNT(DISTINCT username), MAX(end_date)::text
		FROM student_engagement
		GROUP BY course_id
		ORDER BY course_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	summaries = []CourseSummary{}
	for rows.Next() {
		var c CourseSummary
		if err := rows.Scan(&c.CourseID, &c.Students, &c.LatestEndDate); err != nil {
			return nil, fmt.Errorf("failed to scan course summary: %w", err)
		}
		summaries = append(summaries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read course summaries: %w", err)
	}

	return summaries, nil
}

// ListEngagement returns engagement rows matching the filter, ordered by username.
// An empty EndDate selects the most recent loaded period for the course.
func (s *PostgresStore) ListEngagement(ctx context.Context, filter EngagementFilter) (result []EngagementRow, err error) {
	if filter.CourseID == "" {
		return nil, ErrMissingCourseID
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "student_engagement", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var sb strings.Builder
	sb.WriteString(`
		SELECT interval_type, end_date::text, course_id, username,
		       days_active, problems_attempted, problem_attempts, problems_correct,
		       videos_played, forum_posts, forum_responses, forum_comments,
		       textbook_pages_viewed, last_subsection_viewed, loaded_at
		FROM student_engagement
		WHERE course_id = $1 AND interval_type = $2`)
	args := []interface{}{filter.CourseID, filter.IntervalType}

	if filter.EndDate != "" {
		args = append(args, filter.EndDate)
		sb.WriteString(" AND end_date = $" + strconv.Itoa(len(args)))
	} else {
		// Default to the most recent loaded period for this course
		sb.WriteString(` AND end_date = (
			SELECT MAX(end_date) FROM student_engagement
			WHERE course_id = $1 AND interval_type = $2
		)`)
	}

	if filter.Username != "" {
		args = append(args, filter.Username)
		sb.WriteString(" AND username = $" + strconv.Itoa(len(args)))
	}

	args = append(args, clampLimit(filter.Limit))
	sb.WriteString(" ORDER BY username LIMIT $" + strconv.Itoa(len(args)))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement: %w", err)
	}
	defer rows.Close()

	result = []EngagementRow{}
	for rows.Next() {
		var r EngagementRow
		if err := rows.Scan(
			&r.IntervalType, &r.EndDate, &r.CourseID, &r.Username,
			&r.DaysActive, &r.ProblemsAttempted, &r.ProblemAttempts, &r.ProblemsCorrect,
			&r.VideosPlayed, &r.ForumPosts, &r.ForumResponses, &r.ForumComments,
			&r.TextbookPagesViewed, &r.LastSubsectionViewed, &r.LoadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan engagement row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read engagement rows: %w", err)
	}

	return result, nil
}

// ListModuleCounts returns module interaction rows matching the filter.
func (s *PostgresStore) ListModuleCounts(ctx context.Context, filter ModuleFilter) (result []ModuleRow, err error) {
	if filter.CourseID == "" {
		return nil, ErrMissingCourseID
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "student_module_engagement", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var sb strings.Builder
	sb.WriteString(`
		SELECT course_id, username, date::text, module_category, encoded_module_id,
		       count, loaded_at
		FROM student_module_engagement
		WHERE course_id = $1`)
	args := []interface{}{filter.CourseID}

	if filter.Username != "" {
		args = append(args, filter.Username)
		sb.WriteString(" AND username = $" + strconv.Itoa(len(args)))
	}

	if filter.Date != "" {
		args = append(args, filter.Date)
		sb.WriteString(" AND date = $" + strconv.Itoa(len(args)))
	}

	args = append(args, clampLimit(filter.Limit))
	sb.WriteString(" ORDER BY date, username, module_category, encoded_module_id LIMIT $" + strconv.Itoa(len(args)))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query module counts: %w", err)
	}
	defer rows.Close()

	result = []ModuleRow{}
	for rows.Next() {
		var r ModuleRow
		if err := rows.Scan(
			&r.CourseID, &r.Username, &r.Date, &r.ModuleCategory,
			&r.EncodedModuleID, &r.Count, &r.LoadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan module row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read module rows: %w", err)
	}

	return result, nil
}
