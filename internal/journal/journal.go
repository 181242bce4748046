// Package journal keeps a rolling history of broadcast snapshots and the
// per-subscriber accounting that decides when a client must reload.
package journal

import (
	"sync"
	"time"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordBroadcastDrop(metric string)
}

// Drop metrics reported through Telemetry.
const (
	MetricQueueFull    = "broadcast_queue_full"
	MetricSlowConsumer = "broadcast_slow_consumer"
	MetricEncodeError  = "broadcast_encode_error"
)

// Record is one published snapshot revision.
type Record struct {
	Revision   uint64
	FightID    string
	Payload    []byte
	RecordedAt time.Time
}

// Journal retains recent broadcast records for diagnostics and re-fetch,
// enforcing retention by count and age.
type Journal struct {
	mu        sync.RWMutex
	records   []Record
	maxFrames int
	maxAge    time.Duration
	telemetry Telemetry
}

// New constructs a journal with storage for the configured number of records
// and retention window.
func New(capacity int, maxAge time.Duration) Journal {
	if capacity < 0 {
		capacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return Journal{
		records:   make([]Record, 0, capacity),
		maxFrames: capacity,
		maxAge:    maxAge,
	}
}

// Eviction notes a record that fell out of the retention window.
type Eviction struct {
	Revision uint64
	Reason   string
}

// RecordResult summarises the retention window after a record lands.
type RecordResult struct {
	Size           int
	OldestRevision uint64
	NewestRevision uint64
	Evicted        []Eviction
}

// RecordBroadcast stores a published snapshot revision in the buffer.
func (j *Journal) RecordBroadcast(record Record) RecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxFrames == 0 {
		j.records = j.records[:0]
		return RecordResult{}
	}

	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	j.records = append(j.records, record)

	evicted := make([]Eviction, 0)
	if j.maxAge > 0 {
		cutoff := record.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.records) {
			if !j.records[idx].RecordedAt.Before(cutoff) {
				break
			}
			evicted = append(evicted, Eviction{Revision: j.records[idx].Revision, Reason: "expired"})
			idx++
		}
		if idx > 0 {
			copy(j.records, j.records[idx:])
			j.records = j.records[:len(j.records)-idx]
		}
	}

	if len(j.records) > j.maxFrames {
		overflow := len(j.records) - j.maxFrames
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, Eviction{Revision: j.records[i].Revision, Reason: "count"})
		}
		copy(j.records, j.records[overflow:])
		j.records = j.records[:len(j.records)-overflow]
	}

	size := len(j.records)
	result := RecordResult{Size: size, Evicted: evicted}
	if size > 0 {
		result.OldestRevision = j.records[0].Revision
		result.NewestRevision = j.records[size-1].Revision
	}
	return result
}

// RecordByRevision returns the record matching the provided revision.
func (j *Journal) RecordByRevision(revision uint64) (Record, bool) {
	if revision == 0 {
		return Record{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, record := range j.records {
		if record.Revision == revision {
			return record, true
		}
	}
	return Record{}, false
}

// Window reports the current retention window.
func (j *Journal) Window() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.records)
	if size == 0 {
		return size, 0, 0
	}
	oldest = j.records[0].Revision
	newest = j.records[size-1].Revision
	return size, oldest, newest
}

// NoteDrop forwards a drop to the metrics adapter.
func (j *Journal) NoteDrop(metric string) {
	j.mu.RLock()
	telemetry := j.telemetry
	j.mu.RUnlock()
	if telemetry == nil || metric == "" {
		return
	}
	telemetry.RecordBroadcastDrop(metric)
}

func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}
