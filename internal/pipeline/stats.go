package pipeline

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// RunStats tracks counts for one pipeline run.
// All operations are thread-safe using atomic counters.
type RunStats struct {
	linesRead          int64 // Total log lines received from the source
	eventsClassified   int64 // Lines that resolved to an engagement event
	eventsDiscarded    int64 // Lines dropped as malformed or out of scope
	moduleInteractions int64 // Lines that resolved to a module interaction
	recordsEmitted     int64 // Aggregated records produced
}

// NewRunStats creates a new RunStats instance.
func NewRunStats() *RunStats {
	return &RunStats{}
}

// LinesRead returns the total number of lines received from the source.
func (s *RunStats) LinesRead() int64 {
	return atomic.LoadInt64(&s.linesRead)
}

// EventsClassified returns the number of lines that resolved to an engagement event.
func (s *RunStats) EventsClassified() int64 {
	return atomic.LoadInt64(&s.eventsClassified)
}

// EventsDiscarded returns the number of lines dropped as malformed or out of scope.
func (s *RunStats) EventsDiscarded() int64 {
	return atomic.LoadInt64(&s.eventsDiscarded)
}

// ModuleInteractions returns the number of lines that resolved to a module interaction.
func (s *RunStats) ModuleInteractions() int64 {
	return atomic.LoadInt64(&s.moduleInteractions)
}

// RecordsEmitted returns the number of aggregated records produced.
func (s *RunStats) RecordsEmitted() int64 {
	return atomic.LoadInt64(&s.recordsEmitted)
}

func (s *RunStats) incLinesRead()          { atomic.AddInt64(&s.linesRead, 1) }
func (s *RunStats) incEventsClassified()   { atomic.AddInt64(&s.eventsClassified, 1) }
func (s *RunStats) incEventsDiscarded()    { atomic.AddInt64(&s.eventsDiscarded, 1) }
func (s *RunStats) incModuleInteractions() { atomic.AddInt64(&s.moduleInteractions, 1) }

func (s *RunStats) addRecordsEmitted(n int64) { atomic.AddInt64(&s.recordsEmitted, n) }

// String returns a human-readable summary of the statistics.
func (s *RunStats) String() string {
	return fmt.Sprintf("lines=%d classified=%d discarded=%d modules=%d records=%d",
		s.LinesRead(), s.EventsClassified(), s.EventsDiscarded(),
		s.ModuleInteractions(), s.RecordsEmitted())
}

// LogSummary logs a run summary at INFO level.
func (s *RunStats) LogSummary(logger *slog.Logger) {
	logger.Info("pipeline run statistics",
		"lines_read", s.LinesRead(),
		"events_classified", s.EventsClassified(),
		"events_discarded", s.EventsDiscarded(),
		"module_interactions", s.ModuleInteractions(),
		"records_emitted", s.RecordsEmitted(),
	)
}
