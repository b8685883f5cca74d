package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/openlearn/engage/internal/engagement"
	"github.com/openlearn/engage/internal/eventlog"
	"github.com/openlearn/engage/internal/interval"
	"github.com/openlearn/engage/internal/source"
	"github.com/openlearn/engage/internal/spill"
	"github.com/openlearn/engage/internal/tracing"
)

// Default worker and spill settings.
const (
	DefaultSpillThreshold = 100000
	maxWorkers            = 64
	lineChanBuffer        = 256
	shardChanBuffer       = 256
)

// Config holds the settings for one pipeline run.
type Config struct {
	// Interval is the closed-open date range of the run.
	Interval interval.Interval
	// Type selects daily, weekly, or all-time bucketing.
	Type interval.Type
	// Workers is the classify worker count. Zero means one per CPU,
	// capped at maxWorkers.
	Workers int
	// SpillDir, when set, lets shuffle partitions overflow to CBOR batch
	// files on disk instead of growing without bound in memory.
	SpillDir string
	// SpillThreshold is the per-partition buffered event count that
	// triggers a spill. Zero means DefaultSpillThreshold.
	SpillThreshold int
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers > maxWorkers {
		c.Workers = maxWorkers
	}
	if c.SpillThreshold <= 0 {
		c.SpillThreshold = DefaultSpillThreshold
	}
}

// Result is the output of one pipeline run, sorted deterministically.
type Result struct {
	Records      []engagement.Record
	ModuleCounts []engagement.ModuleCount
	Stats        *RunStats
}

// Runner executes the classify, shuffle, and aggregate phases over a source.
type Runner struct {
	cfg     Config
	source  source.Source
	logger  *slog.Logger
	metrics *Metrics
}

// NewRunner creates a Runner. metrics may be nil when no registry is wired.
func NewRunner(cfg Config, src source.Source, logger *slog.Logger, metrics *Metrics) *Runner {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, source: src, logger: logger, metrics: metrics}
}

// shardItem is one routed unit of work. Exactly one of the two fields is set.
type shardItem struct {
	event       *engagement.ClassifiedEvent
	interaction *engagement.ModuleInteraction
}

// shard accumulates one hash partition of the shuffle. Each shard is owned by
// a single goroutine, so its fields need no locking.
type shard struct {
	id             int
	spillDir       string
	spillThreshold int

	groups       map[engagement.GroupKey][]engagement.ClassifiedEvent
	buffered     int
	spillFiles   []string
	interactions []engagement.ModuleInteraction

	records []engagement.Record
	counts  []engagement.ModuleCount
	err     error
}

// Run streams the source once and returns the aggregated engagement records
// and module counts for the configured interval.
func (r *Runner) Run(ctx context.Context) (result *Result, err error) {
	ctx, finish := tracing.StartSpan(ctx, "pipeline.run")
	defer func() { finish(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("interval", r.cfg.Interval.String()),
		attribute.String("interval_type", string(r.cfg.Type)),
		attribute.Int("workers", r.cfg.Workers),
	)

	start := time.Now()
	stats := NewRunStats()

	result, err = r.run(ctx, stats)

	elapsed := time.Since(start).Seconds()
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	if r.metrics != nil {
		r.metrics.AddEventsProcessed(float64(stats.LinesRead()))
		r.metrics.AddEventsDiscarded(float64(stats.EventsDiscarded()))
		r.metrics.AddRecordsEmitted(float64(stats.RecordsEmitted()))
		r.metrics.ObserveRunDuration(string(r.cfg.Type), elapsed)
		r.metrics.IncRunsTotal(string(r.cfg.Type), status)
	}
	if err != nil {
		r.logger.Error("pipeline run failed",
			"interval", r.cfg.Interval.String(),
			"interval_type", string(r.cfg.Type),
			"error", err.Error())
		return nil, err
	}

	stats.LogSummary(r.logger)
	r.logger.Info("pipeline run complete",
		"interval", r.cfg.Interval.String(),
		"interval_type", string(r.cfg.Type),
		"duration_seconds", elapsed)
	return result, nil
}

func (r *Runner) run(ctx context.Context, stats *RunStats) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	nw := r.cfg.Workers
	lines := make(chan []byte, lineChanBuffer)
	shardChans := make([]chan shardItem, nw)
	shards := make([]*shard, nw)
	for i := 0; i < nw; i++ {
		shardChans[i] = make(chan shardItem, shardChanBuffer)
		shards[i] = &shard{
			id:             i,
			spillDir:       r.cfg.SpillDir,
			spillThreshold: r.cfg.SpillThreshold,
			groups:         make(map[engagement.GroupKey][]engagement.ClassifiedEvent),
		}
	}

	// Collector goroutines, one per shard.
	var collectWG sync.WaitGroup
	for i := 0; i < nw; i++ {
		collectWG.Add(1)
		go func(s *shard, ch <-chan shardItem) {
			defer collectWG.Done()
			s.collect(ch)
		}(shards[i], shardChans[i])
	}

	// Classify workers.
	var workWG sync.WaitGroup
	for i := 0; i < nw; i++ {
		workWG.Add(1)
		go func() {
			defer workWG.Done()
			for line := range lines {
				r.processLine(ctx, line, stats, shardChans)
			}
		}()
	}

	// Producer: drain the source into the line channel. Lines are copied
	// because sources reuse their scan buffers.
	sourceErr := make(chan error, 1)
	go func() {
		err := r.source.Each(ctx, func(line []byte) error {
			buf := make([]byte, len(line))
			copy(buf, line)
			select {
			case lines <- buf:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(lines)
		sourceErr <- err
	}()

	workWG.Wait()
	for _, ch := range shardChans {
		close(ch)
	}
	collectWG.Wait()

	if err := <-sourceErr; err != nil {
		return nil, fmt.Errorf("source read failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []engagement.Record
	var counts []engagement.ModuleCount
	for _, s := range shards {
		s.reduce()
		if s.err != nil {
			return nil, fmt.Errorf("shard %d failed: %w", s.id, s.err)
		}
		records = append(records, s.records...)
		counts = append(counts, s.counts...)
	}
	sortRecords(records)
	sortCounts(counts)
	stats.addRecordsEmitted(int64(len(records)))

	return &Result{Records: records, ModuleCounts: counts, Stats: stats}, nil
}

// processLine parses one raw log line and routes whatever it yields to the
// owning shard. Malformed and out-of-interval lines are dropped silently;
// tracking logs always carry traffic the report does not cover.
func (r *Runner) processLine(ctx context.Context, line []byte, stats *RunStats, shardChans []chan shardItem) {
	stats.incLinesRead()

	ev, err := eventlog.ParseLine(line)
	if err != nil {
		stats.incEventsDiscarded()
		return
	}

	contributed := false
	if ce := engagement.Classify(ev); ce != nil && r.cfg.Interval.Contains(ce.Date) {
		pk, err := engagement.PeriodKey(ce.Date, r.cfg.Interval, r.cfg.Type)
		if err == nil {
			ce.Key.PeriodKey = pk
			if r.route(ctx, shardChans, shardItem{event: ce}, ce.Key) {
				stats.incEventsClassified()
				contributed = true
			}
		}
	}
	if mi := engagement.ClassifyModule(ev); mi != nil && r.cfg.Interval.Contains(mi.Key.PeriodKey) {
		if r.route(ctx, shardChans, shardItem{interaction: mi}, mi.Key) {
			stats.incModuleInteractions()
			contributed = true
		}
	}
	if !contributed {
		stats.incEventsDiscarded()
	}
}

// route hashes the group key and hands the item to its shard. Returns false
// only when the context was cancelled mid-send.
func (r *Runner) route(ctx context.Context, shardChans []chan shardItem, item shardItem, key engagement.GroupKey) bool {
	h := fnv.New32a()
	h.Write([]byte(key.PeriodKey))
	h.Write([]byte{0})
	h.Write([]byte(key.CourseID))
	h.Write([]byte{0})
	h.Write([]byte(key.Username))
	idx := int(h.Sum32() % uint32(len(shardChans)))

	select {
	case shardChans[idx] <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// collect buffers routed items, spilling oversized partitions to disk when a
// spill directory is configured.
func (s *shard) collect(ch <-chan shardItem) {
	for item := range ch {
		switch {
		case item.event != nil:
			s.groups[item.event.Key] = append(s.groups[item.event.Key], *item.event)
			s.buffered++
			if s.spillDir != "" && s.buffered >= s.spillThreshold {
				if err := s.spillToDisk(); err != nil && s.err == nil {
					s.err = err
				}
			}
		case item.interaction != nil:
			s.interactions = append(s.interactions, *item.interaction)
		}
	}
}

// spillToDisk flattens the buffered groups into one CBOR batch file and
// resets the in-memory buffer.
func (s *shard) spillToDisk() error {
	flat := make([]engagement.ClassifiedEvent, 0, s.buffered)
	for _, evs := range s.groups {
		flat = append(flat, evs...)
	}
	name := filepath.Join(s.spillDir, fmt.Sprintf("shard-%03d-%03d.cbor", s.id, len(s.spillFiles)))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create spill file: %w", err)
	}
	if err := spill.WriteBatch(f, s.id, flat); err != nil {
		f.Close()
		return fmt.Errorf("failed to write spill file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close spill file %s: %w", name, err)
	}
	s.spillFiles = append(s.spillFiles, name)
	s.groups = make(map[engagement.GroupKey][]engagement.ClassifiedEvent)
	s.buffered = 0
	return nil
}

// reduce replays any spilled batches back into the group map, then aggregates
// every group into its output record and sums the module interactions.
func (s *shard) reduce() {
	if s.err != nil {
		return
	}
	for _, name := range s.spillFiles {
		f, err := os.Open(name)
		if err != nil {
			s.err = fmt.Errorf("failed to open spill file %s: %w", name, err)
			return
		}
		_, events, err := spill.ReadBatch(f)
		f.Close()
		os.Remove(name)
		if err != nil {
			s.err = fmt.Errorf("failed to read spill file %s: %w", name, err)
			return
		}
		for _, ev := range events {
			s.groups[ev.Key] = append(s.groups[ev.Key], ev)
		}
	}
	s.spillFiles = nil

	for key, events := range s.groups {
		if rec := engagement.Aggregate(key, events); rec != nil {
			s.records = append(s.records, *rec)
		}
	}
	s.groups = nil
	s.counts = engagement.CountModules(s.interactions)
	s.interactions = nil
}

func sortRecords(records []engagement.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Key, records[j].Key
		if a.PeriodKey != b.PeriodKey {
			return a.PeriodKey < b.PeriodKey
		}
		if a.CourseID != b.CourseID {
			return a.CourseID < b.CourseID
		}
		return a.Username < b.Username
	})
}

func sortCounts(counts []engagement.ModuleCount) {
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Key.PeriodKey != b.Key.PeriodKey {
			return a.Key.PeriodKey < b.Key.PeriodKey
		}
		if a.Key.CourseID != b.Key.CourseID {
			return a.Key.CourseID < b.Key.CourseID
		}
		if a.Key.Username != b.Key.Username {
			return a.Key.Username < b.Key.Username
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.EntityID < b.EntityID
	})
}
