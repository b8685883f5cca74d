package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openlearn/engage/internal/engagement"
	"github.com/openlearn/engage/internal/interval"
	"github.com/openlearn/engage/internal/tracing"
)

// ErrNoDatabase is returned when a warehouse operation runs without a
// configured database handle.
var ErrNoDatabase = errors.New("no database configured")

// Warehouse loads engagement output into PostgreSQL. Each load runs in one
// transaction: a batch either lands completely or not at all, so a re-run
// after a failure never leaves a period half-loaded.
type Warehouse struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWarehouse creates a Warehouse over an open database handle.
func NewWarehouse(db *sql.DB, logger *slog.Logger) *Warehouse {
	if logger == nil {
		logger = slog.Default()
	}
	return &Warehouse{db: db, logger: logger}
}

// LoadRecords upserts one run's engagement records, keyed by
// (interval_type, end_date, course_id, username). Returns load statistics.
func (w *Warehouse) LoadRecords(ctx context.Context, typ interval.Type, records []engagement.Record) (stats *LoadStats, err error) {
	if w.db == nil {
		return nil, ErrNoDatabase
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_engagement", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()
	stats = NewLoadStats()
	if len(records) == 0 {
		return stats, nil
	}

	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			w.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	// xmax = 0 only for freshly inserted rows, which distinguishes inserts
	// from conflict updates without a second query.
	const query = `
		INSERT INTO student_engagement (
			interval_type, end_date, course_id, username,
			days_active, problems_attempted, problem_attempts, problems_correct,
			videos_played, forum_posts, forum_responses, forum_comments,
			textbook_pages_viewed, last_subsection_viewed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (interval_type, end_date, course_id, username) DO UPDATE SET
			days_active = EXCLUDED.days_active,
			problems_attempted = EXCLUDED.problems_attempted,
			problem_attempts = EXCLUDED.problem_attempts,
			problems_correct = EXCLUDED.problems_correct,
			videos_played = EXCLUDED.videos_played,
			forum_posts = EXCLUDED.forum_posts,
			forum_responses = EXCLUDED.forum_responses,
			forum_comments = EXCLUDED.forum_comments,
			textbook_pages_viewed = EXCLUDED.textbook_pages_viewed,
			last_subsection_viewed = EXCLUDED.last_subsection_viewed
		RETURNING (xmax = 0) AS inserted
	`

	for _, rec := range records {
		var inserted bool
		err := tx.QueryRowContext(ctx, query,
			string(typ), rec.Key.PeriodKey, rec.Key.CourseID, rec.Key.Username,
			rec.DaysActive, rec.ProblemsAttempted, rec.ProblemAttempts, rec.ProblemsCorrect,
			rec.VideosPlayed, rec.ForumPosts, rec.ForumResponses, rec.ForumComments,
			rec.TextbookPagesViewed, rec.LastSubsectionViewed,
		).Scan(&inserted)
		if err != nil {
			w.logger.Error("failed to upsert engagement record",
				slog.String("error", err.Error()),
				slog.String("course_id", rec.Key.CourseID),
				slog.String("username", rec.Key.Username))
			return nil, fmt.Errorf("failed to upsert engagement record: %w", err)
		}
		if inserted {
			stats.RecordInsert()
		} else {
			stats.RecordUpdate()
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit engagement load: %w", err)
	}
	stats.LogSummary(w.logger, "student_engagement")
	return stats, nil
}

// LoadModuleCounts upserts the per-module interaction counts, keyed by
// (course_id, username, date, module_category, encoded_module_id).
func (w *Warehouse) LoadModuleCounts(ctx context.Context, counts []engagement.ModuleCount) (stats *LoadStats, err error) {
	if w.db == nil {
		return nil, ErrNoDatabase
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "student_module_engagement", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()
	stats = NewLoadStats()
	if len(counts) == 0 {
		return stats, nil
	}

	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			w.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	const query = `
		INSERT INTO student_module_engagement (
			course_id, username, date, module_category, encoded_module_id, count
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id, username, date, module_category, encoded_module_id)
		DO UPDATE SET count = EXCLUDED.count
		RETURNING (xmax = 0) AS inserted
	`

	for _, c := range counts {
		var inserted bool
		err := tx.QueryRowContext(ctx, query,
			c.Key.CourseID, c.Key.Username, c.Key.PeriodKey, c.Category, c.EntityID, c.Count,
		).Scan(&inserted)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert module count: %w", err)
		}
		if inserted {
			stats.RecordInsert()
		} else {
			stats.RecordUpdate()
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit module count load: %w", err)
	}
	stats.LogSummary(w.logger, "student_module_engagement")
	return stats, nil
}
