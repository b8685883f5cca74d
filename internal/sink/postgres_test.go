package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/openlearn/engage/internal/engagement"
	"github.com/openlearn/engage/internal/interval"
)

// startWarehouseDB spins up a throwaway PostgreSQL container and applies the
// engagement migrations to it.
func startWarehouseDB(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("engage"),
		postgres.WithUsername("engage"),
		postgres.WithPassword("engage"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("failed to start postgres container (docker unavailable?): %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	for _, name := range []string{
		"000001_create_student_engagement.up.sql",
		"000002_create_student_module_engagement.up.sql",
	} {
		schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
		if err != nil {
			t.Fatalf("failed to read migration %s: %v", name, err)
		}
		if _, err := db.ExecContext(ctx, string(schema)); err != nil {
			t.Fatalf("failed to apply migration %s: %v", name, err)
		}
	}
	return db
}

func TestWarehouseLoadRecords(t *testing.T) {
	db := startWarehouseDB(t)
	w := NewWarehouse(db, nil)
	ctx := context.Background()

	records := []engagement.Record{
		{
			Key: engagement.GroupKey{
				PeriodKey: "2021-01-12",
				CourseID:  "course-v1:OpenX+Demo+2021",
				Username:  "alice",
			},
			DaysActive:           3,
			ProblemsAttempted:    2,
			ProblemAttempts:      5,
			ProblemsCorrect:      1,
			LastSubsectionViewed: "/courses/OpenX/Demo/2021/courseware/week1/unit2/",
		},
		{
			Key: engagement.GroupKey{
				PeriodKey: "2021-01-12",
				CourseID:  "course-v1:OpenX+Demo+2021",
				Username:  "bob",
			},
			DaysActive:   1,
			VideosPlayed: 4,
		},
	}

	stats, err := w.LoadRecords(ctx, interval.TypeWeekly, records)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if stats.Inserted() != 2 || stats.Updated() != 0 {
		t.Errorf("first load: expected 2 inserts 0 updates, got %s", stats)
	}

	// A re-run of the same period must overwrite, not duplicate.
	records[0].ProblemAttempts = 7
	stats, err = w.LoadRecords(ctx, interval.TypeWeekly, records)
	if err != nil {
		t.Fatalf("LoadRecords re-run failed: %v", err)
	}
	if stats.Inserted() != 0 || stats.Updated() != 2 {
		t.Errorf("re-run: expected 0 inserts 2 updates, got %s", stats)
	}

	var attempts int
	err = db.QueryRow(`
		SELECT problem_attempts FROM student_engagement
		WHERE interval_type = 'weekly' AND course_id = 'course-v1:OpenX+Demo+2021' AND username = 'alice'
	`).Scan(&attempts)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if attempts != 7 {
		t.Errorf("expected re-run to overwrite problem_attempts to 7, got %d", attempts)
	}

	var total int
	if err := db.QueryRow(`SELECT count(*) FROM student_engagement`).Scan(&total); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 rows after re-run, got %d", total)
	}

	// The same records under a different interval type land as new rows.
	stats, err = w.LoadRecords(ctx, interval.TypeDaily, records)
	if err != nil {
		t.Fatalf("LoadRecords daily failed: %v", err)
	}
	if stats.Inserted() != 2 {
		t.Errorf("daily load: expected 2 inserts, got %s", stats)
	}
}

func TestWarehouseLoadModuleCounts(t *testing.T) {
	db := startWarehouseDB(t)
	w := NewWarehouse(db, nil)
	ctx := context.Background()

	counts := []engagement.ModuleCount{
		{
			Key: engagement.GroupKey{
				PeriodKey: "2021-01-05",
				CourseID:  "course-v1:OpenX+Demo+2021",
				Username:  "alice",
			},
			Category: engagement.ModuleProblem,
			EntityID: "block-v1:OpenX+Demo+2021+type@problem+block@p1",
			Count:    3,
		},
	}

	stats, err := w.LoadModuleCounts(ctx, counts)
	if err != nil {
		t.Fatalf("LoadModuleCounts failed: %v", err)
	}
	if stats.Inserted() != 1 || stats.Updated() != 0 {
		t.Errorf("first load: expected 1 insert, got %s", stats)
	}

	counts[0].Count = 5
	stats, err = w.LoadModuleCounts(ctx, counts)
	if err != nil {
		t.Fatalf("LoadModuleCounts re-run failed: %v", err)
	}
	if stats.Updated() != 1 {
		t.Errorf("re-run: expected 1 update, got %s", stats)
	}

	var count int
	err = db.QueryRow(`
		SELECT count FROM student_module_engagement
		WHERE username = 'alice' AND module_category = 'problem'
	`).Scan(&count)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected count overwritten to 5, got %d", count)
	}
}

func TestWarehouseNoDatabase(t *testing.T) {
	w := NewWarehouse(nil, nil)
	if _, err := w.LoadRecords(context.Background(), interval.TypeDaily, nil); err != ErrNoDatabase {
		t.Errorf("expected ErrNoDatabase, got %v", err)
	}
	if _, err := w.LoadModuleCounts(context.Background(), nil); err != ErrNoDatabase {
		t.Errorf("expected ErrNoDatabase, got %v", err)
	}
}
