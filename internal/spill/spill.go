// Package spill provides the on-disk hand-off format for classified events
// between the classify and aggregate phases. Oversized shuffle partitions are
// written as CBOR-encoded batches and replayed during reduction.
package spill

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/openlearn/engage/internal/engagement"
)

// Codec errors.
var (
	ErrInvalidBatch = errors.New("invalid spill batch")
	ErrEmptyBatch   = errors.New("spill batch has no events")
)

// batchEvent is the wire form of one classified event. Field names are kept
// short; spill files are volume-bound, not readability-bound.
type batchEvent struct {
	PeriodKey string `cbor:"pk"`
	CourseID  string `cbor:"c"`
	Username  string `cbor:"u"`
	EntityID  string `cbor:"e"`
	Category  string `cbor:"cat"`
	Correct   bool   `cbor:"ok,omitempty"`
	Path      string `cbor:"p,omitempty"`
	Timestamp string `cbor:"ts,omitempty"`
	Date      string `cbor:"d"`
}

// batch is one spill unit: the events of one shuffle partition slice.
type batch struct {
	Partition int          `cbor:"part"`
	Events    []batchEvent `cbor:"events"`
}

// encMode is the deterministic encoding configuration. Core deterministic
// encoding keeps spill files byte-stable for identical input, which makes
// shuffle output content-addressable.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("spill: invalid encode options: %v", err))
	}
}

// WriteBatch encodes one partition's events to the writer.
func WriteBatch(w io.Writer, partition int, events []engagement.ClassifiedEvent) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	b := batch{Partition: partition, Events: make([]batchEvent, len(events))}
	for i, ev := range events {
		b.Events[i] = batchEvent{
			PeriodKey: ev.Key.PeriodKey,
			CourseID:  ev.Key.CourseID,
			Username:  ev.Key.Username,
			EntityID:  ev.EntityID,
			Category:  string(ev.Category),
			Correct:   ev.Info.Correct,
			Path:      ev.Info.Path,
			Timestamp: ev.Info.Timestamp,
			Date:      ev.Date,
		}
	}

	enc := encMode.NewEncoder(w)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("failed to encode spill batch: %w", err)
	}
	return nil
}

// ReadBatch decodes one partition batch from the reader, returning the
// partition number and its events.
func ReadBatch(r io.Reader) (int, []engagement.ClassifiedEvent, error) {
	var b batch
	dec := cbor.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if len(b.Events) == 0 {
		return 0, nil, ErrEmptyBatch
	}

	events := make([]engagement.ClassifiedEvent, len(b.Events))
	for i, be := range b.Events {
		events[i] = engagement.ClassifiedEvent{
			Key: engagement.GroupKey{
				PeriodKey: be.PeriodKey,
				CourseID:  be.CourseID,
				Username:  be.Username,
			},
			EntityID: be.EntityID,
			Category: engagement.Category(be.Category),
			Info: engagement.Info{
				Correct:   be.Correct,
				Path:      be.Path,
				Timestamp: be.Timestamp,
			},
			Date: be.Date,
		}
	}
	return b.Partition, events, nil
}

// Marshal encodes a batch to a byte slice. Convenience wrapper around
// WriteBatch for callers holding batches in memory.
func Marshal(partition int, events []engagement.ClassifiedEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBatch(&buf, partition, events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
