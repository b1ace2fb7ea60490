// Package reqbuffer implements the request buffer: a process-wide,
// bounded, thread-safe FIFO ring of recent request/response records for
// diagnostics.
package reqbuffer

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one request/response entry. Records are immutable after
// insertion.
type Record struct {
	Timestamp  time.Time
	RequestID  string
	ModelID    string
	Messages   json.RawMessage
	Tools      json.RawMessage
	ToolChoice string
	Response   json.RawMessage
	Error      string
	DurationMS float64
}

// NewRecord stamps a Record with a fresh request id and the given
// timestamp (callers pass time.Now() explicitly so this package stays
// deterministic and testable).
func NewRecord(ts time.Time, modelID string, messages, tools json.RawMessage, toolChoice string) Record {
	return Record{
		Timestamp:  ts,
		RequestID:  uuid.NewString(),
		ModelID:    modelID,
		Messages:   messages,
		Tools:      tools,
		ToolChoice: toolChoice,
	}
}

// Buffer is a bounded FIFO ring of Records.
type Buffer struct {
	maxSize int
	mu      sync.Mutex
	records []Record // records[0] is oldest
}

// New creates a Buffer bounded at maxSize records.
func New(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Buffer{maxSize: maxSize}
}

// Add appends record, evicting the oldest entry if the buffer is full.
func (b *Buffer) Add(record Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
	if len(b.records) > b.maxSize {
		b.records = b.records[len(b.records)-b.maxSize:]
	}
}

// GetRecent returns a newest-first snapshot, optionally filtered to
// records newer than sinceMinutes, bounded to limit entries.
func (b *Buffer) GetRecent(limit int, sinceMinutes *int) []Record {
	b.mu.Lock()
	snapshot := append([]Record(nil), b.records...)
	b.mu.Unlock()

	var cutoff time.Time
	if sinceMinutes != nil {
		cutoff = time.Now().Add(-time.Duration(*sinceMinutes) * time.Minute)
	}

	out := make([]Record, 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		r := snapshot[i]
		if sinceMinutes != nil && r.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Clear drops all records.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
}

// Len reports the current record count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// The process-global singleton is a concession to diagnostic convenience;
// its lifecycle is the process lifecycle, never shared across processes.
var (
	globalMu  sync.Mutex
	singleton *Buffer
)

// Global returns the process-global Buffer, lazily creating it with
// maxSize on first call (subsequent calls ignore maxSize until Reset).
func Global(maxSize int) *Buffer {
	globalMu.Lock()
	defer globalMu.Unlock()
	if singleton == nil {
		singleton = New(maxSize)
	}
	return singleton
}

// Reset drops the global singleton. Intended for test isolation only; it
// is never called by production code paths.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	singleton = nil
}
