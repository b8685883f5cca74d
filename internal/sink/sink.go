// Package sink provides output destinations for engagement records: tab
// delimited warehouse files, per-course CSV reports, and a PostgreSQL
// warehouse loader. Sinks receive flat rows; field order is fixed upstream
// and each sink owns only its wire format.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RowSink accepts flat output rows.
type RowSink interface {
	WriteRow(row []string) error
}

// TSVSink writes rows as tab-delimited lines, the format the warehouse
// import expects.
type TSVSink struct {
	w *bufio.Writer
}

// NewTSVSink wraps a writer in a TSVSink.
func NewTSVSink(w io.Writer) *TSVSink {
	return &TSVSink{w: bufio.NewWriter(w)}
}

// WriteRow writes one tab-delimited row. Tabs and newlines inside fields
// would corrupt the framing, so they are replaced with spaces.
func (s *TSVSink) WriteRow(row []string) error {
	for i, field := range row {
		if i > 0 {
			if err := s.w.WriteByte('\t'); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
		cleaned := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(field)
		if _, err := s.w.WriteString(cleaned); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// Flush drains buffered rows to the underlying writer.
func (s *TSVSink) Flush() error {
	return s.w.Flush()
}
