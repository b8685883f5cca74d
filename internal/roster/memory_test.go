package roster

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testCourse = "course-v1:OpenX+Demo+2021"

func seedStore() *InMemoryStore {
	loaded := time.Date(2021, 1, 11, 3, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()
	store.AddEngagement(
		EngagementRow{
			IntervalType: "daily", EndDate: "2021-01-05", CourseID: testCourse,
			Username: "alice", ProblemsAttempted: 1, ProblemAttempts: 2,
			ProblemsCorrect: 1, VideosPlayed: 1, DaysActive: 1, LoadedAt: loaded,
		},
		EngagementRow{
			IntervalType: "daily", EndDate: "2021-01-06", CourseID: testCourse,
			Username: "alice", VideosPlayed: 2, DaysActive: 1, LoadedAt: loaded,
		},
		EngagementRow{
			IntervalType: "daily", EndDate: "2021-01-06", CourseID: testCourse,
			Username: "bob", ForumPosts: 1, DaysActive: 1, LoadedAt: loaded,
		},
		EngagementRow{
			IntervalType: "daily", EndDate: "2021-01-06", CourseID: "course-v1:OpenX+Other+2021",
			Username: "carol", DaysActive: 1, LoadedAt: loaded,
		},
	)
	store.AddModuleCounts(
		ModuleRow{
			CourseID: testCourse, Username: "alice", Date: "2021-01-05",
			ModuleCategory: "problem", EncodedModuleID: "p1", Count: 2, LoadedAt: loaded,
		},
		ModuleRow{
			CourseID: testCourse, Username: "alice", Date: "2021-01-05",
			ModuleCategory: "video", EncodedModuleID: "v1", Count: 1, LoadedAt: loaded,
		},
		ModuleRow{
			CourseID: testCourse, Username: "bob", Date: "2021-01-06",
			ModuleCategory: "forum", EncodedModuleID: "general", Count: 1, LoadedAt: loaded,
		},
	)
	return store
}

func TestInMemoryListCourses(t *testing.T) {
	store := seedStore()

	courses, err := store.ListCourses(context.Background())
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}

	if len(courses) != 2 {
		t.Fatalf("ListCourses() returned %d courses, want 2", len(courses))
	}
	if courses[0].CourseID != testCourse {
		t.Errorf("courses[0].CourseID = %q, want %q", courses[0].CourseID, testCourse)
	}
	if courses[0].Students != 2 {
		t.Errorf("courses[0].Students = %d, want 2", courses[0].Students)
	}
	if courses[0].LatestEndDate != "2021-01-06" {
		t.Errorf("courses[0].LatestEndDate = %q, want 2021-01-06", courses[0].LatestEndDate)
	}
}

func TestInMemoryListEngagement(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	t.Run("missing course ID", func(t *testing.T) {
		_, err := store.ListEngagement(ctx, EngagementFilter{IntervalType: "daily"})
		if !errors.Is(err, ErrMissingCourseID) {
			t.Errorf("ListEngagement() error = %v, want ErrMissingCourseID", err)
		}
	})

	t.Run("defaults to latest period", func(t *testing.T) {
		rows, err := store.ListEngagement(ctx, EngagementFilter{
			CourseID:     testCourse,
			IntervalType: "daily",
		})
		if err != nil {
			t.Fatalf("ListEngagement() error = %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("ListEngagement() returned %d rows, want 2", len(rows))
		}
		for _, r := range rows {
			if r.EndDate != "2021-01-06" {
				t.Errorf("row end date = %q, want latest 2021-01-06", r.EndDate)
			}
		}
		// Ordered by username
		if rows[0].Username != "alice" || rows[1].Username != "bob" {
			t.Errorf("rows ordered %q, %q; want alice, bob", rows[0].Username, rows[1].Username)
		}
	})

	t.Run("explicit period and username", func(t *testing.T) {
		rows, err := store.ListEngagement(ctx, EngagementFilter{
			CourseID:     testCourse,
			IntervalType: "daily",
			EndDate:      "2021-01-05",
			Username:     "alice",
		})
		if err != nil {
			t.Fatalf("ListEngagement() error = %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("ListEngagement() returned %d rows, want 1", len(rows))
		}
		if rows[0].ProblemAttempts != 2 {
			t.Errorf("ProblemAttempts = %d, want 2", rows[0].ProblemAttempts)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		rows, err := store.ListEngagement(ctx, EngagementFilter{
			CourseID:     testCourse,
			IntervalType: "daily",
			Limit:        1,
			Offset:       1,
		})
		if err != nil {
			t.Fatalf("ListEngagement() error = %v", err)
		}
		if len(rows) != 1 || rows[0].Username != "bob" {
			t.Errorf("page 2 = %v, want single row for bob", rows)
		}
	})
}

func TestInMemoryListModuleCounts(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	t.Run("missing course ID", func(t *testing.T) {
		_, err := store.ListModuleCounts(ctx, ModuleFilter{})
		if !errors.Is(err, ErrMissingCourseID) {
			t.Errorf("ListModuleCounts() error = %v, want ErrMissingCourseID", err)
		}
	})

	t.Run("whole course", func(t *testing.T) {
		rows, err := store.ListModuleCounts(ctx, ModuleFilter{CourseID: testCourse})
		if err != nil {
			t.Fatalf("ListModuleCounts() error = %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("ListModuleCounts() returned %d rows, want 3", len(rows))
		}
		// Ordered by date, username, category, module
		if rows[0].ModuleCategory != "problem" || rows[1].ModuleCategory != "video" {
			t.Errorf("rows not sorted by category: %v", rows)
		}
	})

	t.Run("username and date filter", func(t *testing.T) {
		rows, err := store.ListModuleCounts(ctx, ModuleFilter{
			CourseID: testCourse,
			Username: "alice",
			Date:     "2021-01-05",
		})
		if err != nil {
			t.Fatalf("ListModuleCounts() error = %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("ListModuleCounts() returned %d rows, want 2", len(rows))
		}
	})
}
