package roster

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is an in-memory implementation of Store.
// Used for testing and development.
type InMemoryStore struct {
	mu         sync.RWMutex
	engagement []EngagementRow
	moduleRows []ModuleRow
}

// NewInMemoryStore creates a new in-memory roster store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// AddEngagement adds engagement rows to the store.
func (s *InMemoryStore) AddEngagement(rows ...EngagementRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engagement = append(s.engagement, rows...)
}

// AddModuleCounts adds module interaction rows to the store.
func (s *InMemoryStore) AddModuleCounts(rows ...ModuleRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moduleRows = append(s.moduleRows, rows...)
}

// ListCourses returns a summary of every course with loaded data.
func (s *InMemoryStore) ListCourses(_ context.Context) ([]CourseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type courseAgg struct {
		students map[string]struct{}
		latest   string
	}
	courses := make(map[string]*courseAgg)
	for _, r := range s.engagement {
		agg, ok := courses[r.CourseID]
		if !ok {
			agg = &courseAgg{students: make(map[string]struct{})}
			courses[r.CourseID] = agg
		}
		agg.students[r.Username] = struct{}{}
		if r.EndDate > agg.latest {
			agg.latest = r.EndDate
		}
	}

	summaries := make([]CourseSummary, 0, len(courses))
	for id, agg := range courses {
		summaries = append(summaries, CourseSummary{
			CourseID:      id,
			Students:      len(agg.students),
			LatestEndDate: agg.latest,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CourseID < summaries[j].CourseID
	})
	return summaries, nil
}

// ListEngagement returns engagement rows matching the filter, ordered by username.
func (s *InMemoryStore) ListEngagement(_ context.Context, filter EngagementFilter) ([]EngagementRow, error) {
	if filter.CourseID == "" {
		return nil, ErrMissingCourseID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	endDate := filter.EndDate
	if endDate == "" {
		// Latest loaded period for this course and interval type
		for _, r := range s.engagement {
			if r.CourseID == filter.CourseID && r.IntervalType == filter.IntervalType && r.EndDate > endDate {
				endDate = r.EndDate
			}
		}
	}

	var matched []EngagementRow
	for _, r := range s.engagement {
		if r.CourseID != filter.CourseID || r.IntervalType != filter.IntervalType || r.EndDate != endDate {
			continue
		}
		if filter.Username != "" && r.Username != filter.Username {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Username < matched[j].Username
	})

	return paginate(matched, filter.Limit, filter.Offset), nil
}

// ListModuleCounts returns module interaction rows matching the filter.
func (s *InMemoryStore) ListModuleCounts(_ context.Context, filter ModuleFilter) ([]ModuleRow, error) {
	if filter.CourseID == "" {
		return nil, ErrMissingCourseID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []ModuleRow
	for _, r := range s.moduleRows {
		if r.CourseID != filter.CourseID {
			continue
		}
		if filter.Username != "" && r.Username != filter.Username {
			continue
		}
		if filter.Date != "" && r.Date != filter.Date {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		if a.ModuleCategory != b.ModuleCategory {
			return a.ModuleCategory < b.ModuleCategory
		}
		return a.EncodedModuleID < b.EncodedModuleID
	})

	return paginate(matched, filter.Limit, filter.Offset), nil
}

// paginate applies limit and offset to a sorted result set.
func paginate[T any](rows []T, limit, offset int) []T {
	limit = clampLimit(limit)
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
