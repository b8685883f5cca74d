package engagement

import (
	"testing"

	"github.com/openlearn/engage/internal/interval"
)

func mustInterval(t *testing.T, spec string) interval.Interval {
	t.Helper()
	iv, err := interval.Parse(spec)
	if err != nil {
		t.Fatalf("Failed to parse interval %q: %v", spec, err)
	}
	return iv
}

func TestPeriodKey_Daily(t *testing.T) {
	iv := mustInterval(t, "2021-01-01-2021-02-01")
	got, err := PeriodKey("2021-01-15", iv, interval.TypeDaily)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "2021-01-15" {
		t.Errorf("Expected 2021-01-15, got %q", got)
	}
}

func TestPeriodKey_WeeklyAnchoredToIntervalEnd(t *testing.T) {
	// End is Wednesday 2021-01-20, so the last complete date is Tuesday
	// 2021-01-19 (ISO weekday 2). A Monday event shifts forward one day to
	// the Tuesday of its own week.
	iv := mustInterval(t, "2021-01-01-2021-01-20")

	got, err := PeriodKey("2021-01-11", iv, interval.TypeWeekly) // Monday
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "2021-01-12" {
		t.Errorf("Expected Monday to bucket to 2021-01-12 (Tuesday), got %q", got)
	}
}

func TestPeriodKey_WeeklyWrapsAroundWeek(t *testing.T) {
	// Last complete date Tuesday (weekday 2); a Wednesday event (weekday 3)
	// wraps forward (2-3) mod 7 = 6 days to the Tuesday of the next week.
	iv := mustInterval(t, "2021-01-01-2021-01-20")

	got, err := PeriodKey("2021-01-06", iv, interval.TypeWeekly) // Wednesday
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "2021-01-12" {
		t.Errorf("Expected Wednesday to wrap to 2021-01-12, got %q", got)
	}
}

func TestPeriodKey_WeeklySameWeekdayMapsToItself(t *testing.T) {
	iv := mustInterval(t, "2021-01-01-2021-01-20")

	got, err := PeriodKey("2021-01-12", iv, interval.TypeWeekly) // Tuesday
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "2021-01-12" {
		t.Errorf("Expected anchor weekday to map to itself, got %q", got)
	}
}

func TestPeriodKey_WeeklySundayAnchor(t *testing.T) {
	// End is Monday 2021-01-18, last complete date Sunday 2021-01-17
	// (ISO weekday 7); every weekday shifts forward to its week's Sunday.
	iv := mustInterval(t, "2021-01-01-2021-01-18")

	got, err := PeriodKey("2021-01-11", iv, interval.TypeWeekly) // Monday
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "2021-01-17" {
		t.Errorf("Expected 2021-01-17, got %q", got)
	}
}

func TestPeriodKey_WeeklyBadDate(t *testing.T) {
	iv := mustInterval(t, "2021-01-01-2021-01-20")
	if _, err := PeriodKey("not-a-date", iv, interval.TypeWeekly); err == nil {
		t.Error("Expected error for unparseable date")
	}
}

func TestPeriodKey_AllCollapsesToLastCompleteDate(t *testing.T) {
	iv := mustInterval(t, "2021-01-01-2021-01-31")
	for _, date := range []string{"2021-01-01", "2021-01-30"} {
		got, err := PeriodKey(date, iv, interval.TypeAll)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != "2021-01-30" {
			t.Errorf("Date %s: expected 2021-01-30, got %q", date, got)
		}
	}
}

func TestPeriodKey_UnknownType(t *testing.T) {
	iv := mustInterval(t, "2021-01-01-2021-01-31")
	if _, err := PeriodKey("2021-01-15", iv, interval.Type("monthly")); err == nil {
		t.Error("Expected error for unknown interval type")
	}
}
