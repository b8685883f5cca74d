package engagement

import (
	"fmt"
	"time"

	"github.com/openlearn/engage/internal/interval"
)

// PeriodKey computes the reporting-period bucket for an event date under the
// given interval and interval type. The result depends only on the event date
// and the run's interval, never on event ordering.
//
// Daily passes the event date through unchanged. Weekly maps every date onto
// the week-ending date whose weekday matches the interval's last complete
// day; the anchor weekday is derived from the configured interval end, not a
// fixed day of the week. All collapses every event into the last complete
// day of the interval.
func PeriodKey(date string, iv interval.Interval, typ interval.Type) (string, error) {
	switch typ {
	case interval.TypeDaily:
		return date, nil

	case interval.TypeWeekly:
		eventDate, err := time.ParseInLocation(interval.DateLayout, date, time.UTC)
		if err != nil {
			return "", fmt.Errorf("unparseable event date %q: %w", date, err)
		}
		lastWeekday := isoWeekday(iv.LastCompleteDate())
		daysUntilEnd := lastWeekday - isoWeekday(eventDate)
		if daysUntilEnd < 0 {
			daysUntilEnd += 7
		}
		return eventDate.AddDate(0, 0, daysUntilEnd).Format(interval.DateLayout), nil

	case interval.TypeAll:
		return iv.LastCompleteDate().Format(interval.DateLayout), nil
	}
	return "", fmt.Errorf("%w: got %q", interval.ErrInvalidType, typ)
}

// isoWeekday returns the ISO-8601 weekday: Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
