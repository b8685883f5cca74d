package source

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openlearn/engage/internal/interval"
)

func writeLog(t *testing.T, dir, name string, lines []string, gzipped bool) {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	defer f.Close()

	if gzipped {
		gz := gzip.NewWriter(f)
		for _, l := range lines {
			if _, err := gz.Write([]byte(l + "\n")); err != nil {
				t.Fatalf("Failed to write gzip line: %v", err)
			}
		}
		if err := gz.Close(); err != nil {
			t.Fatalf("Failed to close gzip writer: %v", err)
		}
		return
	}
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatalf("Failed to write line: %v", err)
		}
	}
}

func collectLines(t *testing.T, s Source) []string {
	t.Helper()
	var got []string
	err := s.Each(context.Background(), func(line []byte) error {
		got = append(got, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	return got
}

func TestFileSource_SelectsDatedFilesInInterval(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "tracking.log-20210104", []string{"before"}, false)
	writeLog(t, dir, "tracking.log-20210110", []string{"inside"}, false)
	writeLog(t, dir, "tracking.log-20210301", []string{"after"}, false)
	writeLog(t, dir, "notes.txt", []string{"ignored"}, false)

	iv, _ := interval.Parse("2021-01-06-2021-02-01")
	got := collectLines(t, NewFileSource(dir, iv, nil))

	if len(got) != 1 || got[0] != "inside" {
		t.Errorf("Expected [inside], got %v", got)
	}
}

func TestFileSource_OneDaySlack(t *testing.T) {
	// Events near midnight land in the neighboring day's file, so selection
	// includes one day on each side of the interval.
	dir := t.TempDir()
	writeLog(t, dir, "tracking.log-20210105", []string{"day-before"}, false)
	writeLog(t, dir, "tracking.log-20210201", []string{"end-day"}, false)

	iv, _ := interval.Parse("2021-01-06-2021-02-01")
	got := collectLines(t, NewFileSource(dir, iv, nil))

	if len(got) != 2 {
		t.Errorf("Expected both slack-day files, got %v", got)
	}
}

func TestFileSource_Gzip(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "tracking.log-20210110.gz", []string{"a", "b"}, true)

	iv, _ := interval.Parse("2021-01-06-2021-02-01")
	got := collectLines(t, NewFileSource(dir, iv, nil))

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b], got %v", got)
	}
}

func TestFileSource_SingleFilePathBypassesSelection(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "events.log", []string{"x"}, false)

	iv, _ := interval.Parse("2021-01-06-2021-02-01")
	got := collectLines(t, NewFileSource(filepath.Join(dir, "events.log"), iv, nil))

	if len(got) != 1 || got[0] != "x" {
		t.Errorf("Expected [x], got %v", got)
	}
}

func TestFileSource_MissingRoot(t *testing.T) {
	iv, _ := interval.Parse("2021-01-06-2021-02-01")
	s := NewFileSource("/nonexistent/path", iv, nil)
	if err := s.Each(context.Background(), func([]byte) error { return nil }); err == nil {
		t.Error("Expected error for missing root")
	}
}

func TestFileSource_FilesReadInSortedOrder(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "tracking.log-20210112", []string{"second"}, false)
	writeLog(t, dir, "tracking.log-20210111", []string{"first"}, false)

	iv, _ := interval.Parse("2021-01-06-2021-02-01")
	got := collectLines(t, NewFileSource(dir, iv, nil))

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("Expected [first second], got %v", got)
	}
}
