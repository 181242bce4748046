package journal

import (
	"testing"
	"time"
)

func TestJournalRetainsByCount(t *testing.T) {
	j := New(2, 0)

	for rev := uint64(1); rev <= 3; rev++ {
		j.RecordBroadcast(Record{Revision: rev, FightID: "fight-1"})
	}

	size, oldest, newest := j.Window()
	if size != 2 || oldest != 2 || newest != 3 {
		t.Fatalf("expected window [2,3], got size=%d oldest=%d newest=%d", size, oldest, newest)
	}
	if _, ok := j.RecordByRevision(1); ok {
		t.Fatalf("expected revision 1 evicted")
	}
	if record, ok := j.RecordByRevision(3); !ok || record.FightID != "fight-1" {
		t.Fatalf("expected revision 3 retained, got %+v ok=%v", record, ok)
	}
}

func TestJournalRetainsByAge(t *testing.T) {
	j := New(10, time.Minute)
	now := time.Now()

	j.RecordBroadcast(Record{Revision: 1, RecordedAt: now.Add(-2 * time.Minute)})
	result := j.RecordBroadcast(Record{Revision: 2, RecordedAt: now})

	if len(result.Evicted) != 1 || result.Evicted[0].Revision != 1 || result.Evicted[0].Reason != "expired" {
		t.Fatalf("expected revision 1 expired, got %+v", result.Evicted)
	}
	if result.Size != 1 || result.OldestRevision != 2 {
		t.Fatalf("unexpected window: %+v", result)
	}
}

func TestJournalZeroCapacityKeepsNothing(t *testing.T) {
	j := New(0, 0)
	result := j.RecordBroadcast(Record{Revision: 1})
	if result.Size != 0 {
		t.Fatalf("expected empty journal, got %+v", result)
	}
	if size, _, _ := j.Window(); size != 0 {
		t.Fatalf("expected empty window, got size=%d", size)
	}
	if _, ok := j.RecordByRevision(1); ok {
		t.Fatalf("expected nothing retained")
	}
}

type countingTelemetry struct {
	drops map[string]int
}

func (c *countingTelemetry) RecordBroadcastDrop(metric string) {
	if c.drops == nil {
		c.drops = make(map[string]int)
	}
	c.drops[metric]++
}

func TestJournalNoteDropForwardsMetric(t *testing.T) {
	j := New(1, 0)
	telemetry := &countingTelemetry{}
	j.AttachTelemetry(telemetry)

	j.NoteDrop(MetricQueueFull)
	j.NoteDrop(MetricQueueFull)
	j.NoteDrop("")

	if telemetry.drops[MetricQueueFull] != 2 {
		t.Fatalf("expected 2 queue-full drops, got %+v", telemetry.drops)
	}
	if len(telemetry.drops) != 1 {
		t.Fatalf("expected empty metric ignored, got %+v", telemetry.drops)
	}
}

func TestPolicyArmsOnFirstDrop(t *testing.T) {
	p := NewPolicy()
	p.NotePublish()
	p.NotePublish()

	if p.Pending() {
		t.Fatalf("policy pending with no drops")
	}
	if _, ok := p.Consume(); ok {
		t.Fatalf("consume returned a signal with no drops")
	}

	p.NoteDrop(MetricQueueFull, 7)
	if !p.Pending() {
		t.Fatalf("expected pending after drop")
	}

	signal, ok := p.Consume()
	if !ok {
		t.Fatalf("expected armed signal")
	}
	if signal.Dropped != 1 || signal.Published != 2 {
		t.Fatalf("unexpected counters: %+v", signal)
	}
	if len(signal.Reasons) != 1 || signal.Reasons[0].Metric != MetricQueueFull || signal.Reasons[0].Revision != 7 {
		t.Fatalf("unexpected reasons: %+v", signal.Reasons)
	}
	if signal.Summary() == "" {
		t.Fatalf("expected non-empty summary")
	}

	// Counters reset after consumption.
	if _, ok := p.Consume(); ok {
		t.Fatalf("expected policy disarmed after consume")
	}
}

func TestPolicyReasonLimit(t *testing.T) {
	p := NewPolicy()
	for i := 0; i < reloadReasonLimit+5; i++ {
		p.NoteDrop(MetricSlowConsumer, uint64(i))
	}
	signal, ok := p.Consume()
	if !ok {
		t.Fatalf("expected armed signal")
	}
	if signal.Dropped != uint64(reloadReasonLimit+5) {
		t.Fatalf("expected all drops counted, got %d", signal.Dropped)
	}
	if len(signal.Reasons) != reloadReasonLimit {
		t.Fatalf("expected reasons capped at %d, got %d", reloadReasonLimit, len(signal.Reasons))
	}
}

func TestNilPolicyIsSafe(t *testing.T) {
	var p *Policy
	p.NotePublish()
	p.NoteDrop(MetricQueueFull, 1)
	if p.Pending() {
		t.Fatalf("nil policy reported pending")
	}
	if _, ok := p.Consume(); ok {
		t.Fatalf("nil policy produced a signal")
	}
}
