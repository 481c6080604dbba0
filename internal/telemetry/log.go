// Package telemetry buffers evaluation records and uploads them to the
// Authority on a fixed interval with at-least-once delivery.
package telemetry

import (
	"sync"

	"github.com/ppiankov/fieldguard/internal/model"
)

// Log is the ordered buffer of records awaiting upload. Producers never
// block on an upload: Swap hands the current contents to the flusher and
// leaves a fresh buffer behind.
type Log struct {
	mu      sync.Mutex
	records []model.Record
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a record at the tail.
func (l *Log) Append(r model.Record) {
	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
}

// Swap removes and returns every buffered record in order. Returns nil
// when the log is empty.
func (l *Log) Swap() []model.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return nil
	}
	batch := l.records
	l.records = nil
	return batch
}

// Restore puts a batch that failed to upload back at the head of the
// log, ahead of anything appended since it was swapped out.
func (l *Log) Restore(batch []model.Record) {
	if len(batch) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := make([]model.Record, 0, len(batch)+len(l.records))
	merged = append(merged, batch...)
	merged = append(merged, l.records...)
	l.records = merged
}

// Len returns the number of buffered records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
