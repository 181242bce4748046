package journal

import (
	"fmt"
)

// ReloadReason records why a subscriber fell behind the broadcast stream.
type ReloadReason struct {
	Metric   string
	Revision uint64
}

// ReloadSignal is handed to the session layer when a subscriber must
// re-fetch the full snapshot instead of trusting its local copy.
type ReloadSignal struct {
	Dropped   uint64
	Published uint64
	Reasons   []ReloadReason
}

// Policy tracks publish and drop counts for a single subscriber. Any drop
// makes the subscriber stale, so a single drop arms the pending signal.
type Policy struct {
	published uint64
	dropped   uint64
	pending   bool
	reasons   []ReloadReason
}

const reloadReasonLimit = 8

func NewPolicy() *Policy {
	return &Policy{reasons: make([]ReloadReason, 0, reloadReasonLimit)}
}

func (p *Policy) NotePublish() {
	if p == nil {
		return
	}
	if p.published == ^uint64(0) {
		p.published = p.published / 2
		p.dropped = p.dropped / 2
	}
	p.published++
}

func (p *Policy) NoteDrop(metric string, revision uint64) {
	if p == nil {
		return
	}
	p.dropped++
	if len(p.reasons) < reloadReasonLimit {
		p.reasons = append(p.reasons, ReloadReason{Metric: metric, Revision: revision})
	}
	p.pending = true
}

// Pending reports whether a reload signal is armed without consuming it.
func (p *Policy) Pending() bool {
	return p != nil && p.pending
}

// Consume returns the armed signal and resets the counters so the caller can
// re-evaluate after the subscriber has reloaded.
func (p *Policy) Consume() (ReloadSignal, bool) {
	if p == nil || !p.pending {
		return ReloadSignal{}, false
	}
	signal := ReloadSignal{
		Dropped:   p.dropped,
		Published: p.published,
		Reasons:   append([]ReloadReason(nil), p.reasons...),
	}
	p.pending = false
	p.published = 0
	p.dropped = 0
	if len(p.reasons) > 0 {
		p.reasons = p.reasons[:0]
	}
	return signal, true
}

func (s ReloadSignal) Summary() string {
	if s.Dropped == 0 && s.Published == 0 {
		return ""
	}
	return fmt.Sprintf("dropped=%d published=%d reasons=%v", s.Dropped, s.Published, s.Reasons)
}
