// Package source provides event-log inputs for batch runs: local tracking-log
// files, S3-hosted logs, and a live event-bus spooler that captures a stream
// into dated files for later batch consumption.
package source

import (
	"context"
	"regexp"
	"time"
)

// Source streams raw event-log lines. Each calls fn once per line in file
// order and stops early when fn returns an error or the context is cancelled.
type Source interface {
	Each(ctx context.Context, fn func(line []byte) error) error
}

// logNameRe extracts the eight-digit date stamp from tracking-log file names,
// e.g. tracking.log-20210105.gz.
var logNameRe = regexp.MustCompile(`tracking\.log-(\d{8})`)

// logNameDate returns the calendar date embedded in a tracking-log file name,
// or false when the name carries none.
func logNameDate(name string) (time.Time, bool) {
	m := logNameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("20060102", m[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
