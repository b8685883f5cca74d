package sink

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// LoadStats tracks cumulative warehouse load statistics.
// All operations are thread-safe using atomic counters.
type LoadStats struct {
	inserted int64
	updated  int64
}

// NewLoadStats creates a new LoadStats instance.
func NewLoadStats() *LoadStats {
	return &LoadStats{}
}

// RecordInsert increments the inserted counter.
func (s *LoadStats) RecordInsert() {
	atomic.AddInt64(&s.inserted, 1)
}

// RecordUpdate increments the updated counter.
func (s *LoadStats) RecordUpdate() {
	atomic.AddInt64(&s.updated, 1)
}

// Inserted returns the total number of inserted rows.
func (s *LoadStats) Inserted() int64 {
	return atomic.LoadInt64(&s.inserted)
}

// Updated returns the total number of updated rows.
func (s *LoadStats) Updated() int64 {
	return atomic.LoadInt64(&s.updated)
}

// Total returns the total number of loaded rows.
func (s *LoadStats) Total() int64 {
	return s.Inserted() + s.Updated()
}

// String returns a human-readable summary of the statistics.
func (s *LoadStats) String() string {
	return fmt.Sprintf("inserted=%d updated=%d total=%d", s.Inserted(), s.Updated(), s.Total())
}

// LogSummary logs a load summary at INFO level.
func (s *LoadStats) LogSummary(logger *slog.Logger, table string) {
	logger.Info("warehouse load statistics",
		"table", table,
		"inserted", s.Inserted(),
		"updated", s.Updated(),
		"total", s.Total(),
	)
}
