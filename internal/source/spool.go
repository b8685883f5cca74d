package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/openlearn/engage/internal/eventlog"
)

// Spooler appends live event-bus messages to dated tracking-log files that
// later batch runs read through FileSource. One file per event date, named
// tracking.log-YYYYMMDD so the normal selection rules apply.
type Spooler struct {
	dir    string
	logger *slog.Logger

	mu          sync.Mutex
	currentDate string
	current     *os.File

	spooled   int64
	discarded int64
}

// NewSpooler creates a Spooler writing under dir, creating it if needed.
func NewSpooler(dir string, logger *slog.Logger) (*Spooler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	return &Spooler{dir: dir, logger: logger}, nil
}

// HandleMessage is a MessageHandler that spools each event-bus message.
// Messages that do not parse as tracking-log events are dropped and counted;
// spooling never fails the connection for a bad payload.
func (s *Spooler) HandleMessage(_ int, payload []byte) error {
	ev, err := eventlog.ParseLine(payload)
	if err != nil {
		atomic.AddInt64(&s.discarded, 1)
		return nil
	}
	date, err := ev.DateString()
	if err != nil {
		atomic.AddInt64(&s.discarded, 1)
		return nil
	}

	if err := s.append(date, payload); err != nil {
		// Disk errors are fatal to the spooler; losing events silently
		// would corrupt later batch runs.
		return err
	}
	atomic.AddInt64(&s.spooled, 1)
	return nil
}

// Spooled returns the number of messages written so far.
func (s *Spooler) Spooled() int64 {
	return atomic.LoadInt64(&s.spooled)
}

// Discarded returns the number of unparseable messages dropped so far.
func (s *Spooler) Discarded() int64 {
	return atomic.LoadInt64(&s.discarded)
}

// Close flushes and closes the current spool file.
func (s *Spooler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.currentDate = ""
	return err
}

func (s *Spooler) append(date string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentDate != date {
		if s.current != nil {
			if err := s.current.Close(); err != nil {
				s.logger.Warn("failed to close spool file",
					slog.String("error", err.Error()))
			}
		}
		name := "tracking.log-" + date[:4] + date[5:7] + date[8:10]
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open spool file: %w", err)
		}
		s.current = f
		s.currentDate = date
		s.logger.Info("rotated spool file", slog.String("file", name))
	}

	if _, err := s.current.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	return nil
}
