package sink

import (
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/openlearn/engage/internal/engagement"
	"github.com/openlearn/engage/internal/interval"
)

// CSVReportWriter produces the instructor-facing per-course report files.
// Each course gets its own directory named sha1(course_id), the layout the
// instructor dashboard expects, containing one CSV per reporting period.
type CSVReportWriter struct {
	root string
	typ  interval.Type
	iv   interval.Interval
}

// NewCSVReportWriter creates a report writer rooted at the given directory.
func NewCSVReportWriter(root string, typ interval.Type, iv interval.Interval) *CSVReportWriter {
	return &CSVReportWriter{root: root, typ: typ, iv: iv}
}

// dateHeader names the date column depending on interval type.
func (w *CSVReportWriter) dateHeader() string {
	if w.typ == interval.TypeDaily {
		return "Date"
	}
	return "End Date"
}

// activeHeader names the activity column depending on interval type.
func (w *CSVReportWriter) activeHeader() string {
	switch w.typ {
	case interval.TypeDaily:
		return "Was Active"
	case interval.TypeWeekly:
		return "Days Active This Week"
	}
	return "Days Active"
}

// ColumnNames lists the CSV header row. Instructors open these files in
// spreadsheet tools, so the column order is part of the contract.
func (w *CSVReportWriter) ColumnNames() []string {
	return []string{
		"Course ID",
		w.dateHeader(),
		"Username",
		w.activeHeader(),
		"Unique Problems Attempted",
		"Total Problem Attempts",
		"Unique Problems Correct",
		"Unique Videos Played",
		"Discussion Posts",
		"Discussion Responses",
		"Discussion Comments",
		"Textbook Pages Viewed",
		"URL of Last Subsection Viewed",
	}
}

// PathForRecord returns the report file path for a record's course and period.
func (w *CSVReportWriter) PathForRecord(courseID, periodKey string) string {
	date := periodKey
	if w.typ == interval.TypeAll {
		date = w.iv.String()
	}
	hashed := sha1.Sum([]byte(courseID))
	filename := fmt.Sprintf("student_engagement_%s_%s.csv", w.typ, date)
	return filepath.Join(w.root, hex.EncodeToString(hashed[:]), filename)
}

// WriteRecords groups records by (course, period) and writes one sorted CSV
// per group.
func (w *CSVReportWriter) WriteRecords(records []engagement.Record) error {
	type fileKey struct {
		courseID  string
		periodKey string
	}
	groups := make(map[fileKey][]engagement.Record)
	for _, rec := range records {
		k := fileKey{rec.Key.CourseID, rec.Key.PeriodKey}
		groups[k] = append(groups[k], rec)
	}

	for k, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Key.Username < group[j].Key.Username
		})
		if err := w.writeFile(k.courseID, k.periodKey, group); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVReportWriter) writeFile(courseID, periodKey string, records []engagement.Record) error {
	path := w.PathForRecord(courseID, periodKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cw := csv.NewWriter(f)
	if err := cw.Write(w.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Key.CourseID,
			rec.Key.PeriodKey,
			rec.Key.Username,
			strconv.Itoa(rec.DaysActive),
			strconv.Itoa(rec.ProblemsAttempted),
			strconv.Itoa(rec.ProblemAttempts),
			strconv.Itoa(rec.ProblemsCorrect),
			strconv.Itoa(rec.VideosPlayed),
			strconv.Itoa(rec.ForumPosts),
			strconv.Itoa(rec.ForumResponses),
			strconv.Itoa(rec.ForumComments),
			strconv.Itoa(rec.TextbookPagesViewed),
			rec.LastSubsectionViewed,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush report file: %w", err)
	}
	return f.Close()
}
