package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dbradf/evg-patch-history/pkg/patch"
)

// ErrSinkFlushed is returned by Append and Flush once the sink has been
// flushed.
var ErrSinkFlushed = errors.New("sink already flushed")

// Writer persists the records of a run.
type Writer interface {
	WriteRecords(ctx context.Context, records []patch.Record) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, records []patch.Record) error

// WriteRecords calls f.
func (f WriterFunc) WriteRecords(ctx context.Context, records []patch.Record) error {
	return f(ctx, records)
}

// Sink accumulates records in arrival order and hands them to a Writer
// exactly once.
type Sink struct {
	mu      sync.Mutex
	records []patch.Record
	flushed bool
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Append adds records.
func (s *Sink) Append(records ...patch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return ErrSinkFlushed
	}
	s.records = append(s.records, records...)
	return nil
}

// Len returns the number of records held.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns a copy of the records held.
func (s *Sink) Records() []patch.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Flush writes every record through w. The sink is marked flushed
// before writing, so a failed write is not retried by a second Flush.
func (s *Sink) Flush(ctx context.Context, w Writer) error {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		return ErrSinkFlushed
	}
	s.flushed = true
	records := slices.Clone(s.records)
	s.mu.Unlock()

	return w.WriteRecords(ctx, records)
}
