package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openlearn/engage/internal/interval"
)

// maxLineBytes bounds a single event line. Tracking-log lines are normally a
// few KB; anything past this is treated as corrupt and split by the scanner,
// whose fragments then fail JSON parsing and are dropped.
const maxLineBytes = 10 * 1024 * 1024

// FileSource reads tracking-log files from a local directory tree. File names
// carrying a date stamp are pre-filtered against the run interval (with one
// day of slack on each side, since events near midnight can land in the
// neighboring day's file); the pipeline still filters individual events by
// their own date.
type FileSource struct {
	root   string
	iv     interval.Interval
	logger *slog.Logger
}

// NewFileSource creates a FileSource rooted at the given path. The path may
// also name a single log file, which is then read unconditionally.
func NewFileSource(root string, iv interval.Interval, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{root: root, iv: iv, logger: logger}
}

// Each streams every selected line to fn.
func (s *FileSource) Each(ctx context.Context, fn func(line []byte) error) error {
	paths, err := s.selectFiles()
	if err != nil {
		return err
	}
	s.logger.Info("selected event log files",
		slog.Int("count", len(paths)),
		slog.String("root", s.root))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.eachInFile(ctx, path, fn); err != nil {
			return err
		}
	}
	return nil
}

// selectFiles walks the root and returns matching log files in sorted order.
func (s *FileSource) selectFiles() ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat event log root: %w", err)
	}
	if !info.IsDir() {
		return []string{s.root}, nil
	}

	lo := s.iv.Start.AddDate(0, 0, -1)
	hi := s.iv.End.AddDate(0, 0, 1)

	var paths []string
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		date, ok := logNameDate(d.Name())
		if !ok {
			return nil
		}
		if date.Before(lo) || !date.Before(hi) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk event log root: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *FileSource) eachInFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close event log file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer func() {
			_ = gz.Close()
		}()
		r = gz
	}

	return eachLine(ctx, r, fn)
}

// eachLine scans a reader line by line, honoring context cancellation.
func eachLine(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
