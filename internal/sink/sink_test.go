package sink

import (
	"bytes"
	"strings"
	"testing"
)

func TestTSVSink_WritesTabDelimitedRows(t *testing.T) {
	var buf bytes.Buffer
	s := NewTSVSink(&buf)

	rows := [][]string{
		{"2021-01-05", "c1", "alice", "1"},
		{"2021-01-05", "c1", "bob", "2"},
	}
	for _, row := range rows {
		if err := s.WriteRow(row); err != nil {
			t.Fatalf("WriteRow failed: %v", err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := "2021-01-05\tc1\talice\t1\n2021-01-05\tc1\tbob\t2\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestTSVSink_SanitizesFramingCharacters(t *testing.T) {
	var buf bytes.Buffer
	s := NewTSVSink(&buf)

	if err := s.WriteRow([]string{"a\tb", "c\nd"}); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	got := buf.String()
	if strings.Count(got, "\t") != 1 {
		t.Errorf("Expected exactly one field separator, got %q", got)
	}
	if strings.Count(got, "\n") != 1 {
		t.Errorf("Expected exactly one row terminator, got %q", got)
	}
}

func TestLoadStats(t *testing.T) {
	stats := NewLoadStats()
	stats.RecordInsert()
	stats.RecordInsert()
	stats.RecordUpdate()

	if stats.Inserted() != 2 {
		t.Errorf("Expected 2 inserts, got %d", stats.Inserted())
	}
	if stats.Updated() != 1 {
		t.Errorf("Expected 1 update, got %d", stats.Updated())
	}
	if stats.Total() != 3 {
		t.Errorf("Expected total 3, got %d", stats.Total())
	}
	if got := stats.String(); got != "inserted=2 updated=1 total=3" {
		t.Errorf("Unexpected summary %q", got)
	}
}
