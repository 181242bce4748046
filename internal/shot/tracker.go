// Package shot owns the initiative ordering for one encounter. A Tracker is
// private to the store that owns it and is never shared across encounters.
package shot

import (
	"errors"
	"fmt"
	"sort"
)

// Track states for a combatant relative to one encounter.
type State int

const (
	// StateAbsent means the combatant has never joined or fully left.
	StateAbsent State = iota
	// StateActive means the combatant holds a slot on the shot track.
	StateActive
	// StateRemoved means the combatant was taken out or withdrew.
	StateRemoved
)

var (
	ErrAlreadyTracked = errors.New("combatant already holds a shot slot")
	ErrNotTracked     = errors.New("combatant is not on the shot track")
)

// Slot pairs a combatant with its current shot count.
type Slot struct {
	CombatantID string `json:"combatantId"`
	Shot        int    `json:"shot"`
	Speed       int    `json:"speed"`
}

type entry struct {
	id     string
	shot   int
	speed  int
	joined uint64
}

// Tracker maintains the ordered shot list and the sequence counter for one
// encounter.
type Tracker struct {
	entries  map[string]*entry
	removed  map[string]struct{}
	joinSeq  uint64
	sequence int
}

// NewTracker starts an empty track at sequence 1.
func NewTracker() *Tracker {
	return &Tracker{
		entries:  make(map[string]*entry),
		removed:  make(map[string]struct{}),
		sequence: 1,
	}
}

// Sequence reports the current round counter.
func (t *Tracker) Sequence() int { return t.sequence }

// State reports the track state for a combatant.
func (t *Tracker) State(id string) State {
	if _, ok := t.entries[id]; ok {
		return StateActive
	}
	if _, ok := t.removed[id]; ok {
		return StateRemoved
	}
	return StateAbsent
}

// Add places a combatant on the track at the given shot. A combatant may
// hold at most one active slot; re-adding after removal is allowed.
func (t *Tracker) Add(id string, speed, shot int) error {
	if _, ok := t.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}
	delete(t.removed, id)
	t.joinSeq++
	t.entries[id] = &entry{id: id, shot: shot, speed: speed, joined: t.joinSeq}
	return nil
}

// Remove takes a combatant off the track.
func (t *Tracker) Remove(id string) error {
	if _, ok := t.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	delete(t.entries, id)
	t.removed[id] = struct{}{}
	return nil
}

// SpendShots debits cost from a combatant's current shot and returns the new
// value. Negative results are legal and reported raw; the count is clamped
// at zero only when the caller opts in.
func (t *Tracker) SpendShots(id string, cost int, clampToZero bool) (int, error) {
	slot, ok := t.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	slot.shot -= cost
	if clampToZero && slot.shot < 0 {
		slot.shot = 0
	}
	return slot.shot, nil
}

// SetShot pins a combatant's shot to an explicit value.
func (t *Tracker) SetShot(id string, shot int) error {
	slot, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	slot.shot = shot
	return nil
}

// Shot reports the current shot for a combatant.
func (t *Tracker) Shot(id string) (int, bool) {
	slot, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	return slot.shot, true
}

// Next reports the combatant who may act now: the active combatant with the
// strictly highest shot. Ties break on higher Speed, then earlier join
// order, so the answer is stable across calls.
func (t *Tracker) Next() (string, bool) {
	slots := t.ordered()
	if len(slots) == 0 {
		return "", false
	}
	return slots[0].id, true
}

// Slots returns the track in acting order.
func (t *Tracker) Slots() []Slot {
	ordered := t.ordered()
	slots := make([]Slot, 0, len(ordered))
	for _, e := range ordered {
		slots = append(slots, Slot{CombatantID: e.id, Shot: e.shot, Speed: e.speed})
	}
	return slots
}

// AdvanceSequence increments the round counter and assigns every active
// combatant its next initiative. The boundary is a GM call, so this never
// fires automatically. Combatants missing from the map keep their shot.
func (t *Tracker) AdvanceSequence(initiatives map[string]int) int {
	t.sequence++
	for id, slot := range t.entries {
		if shot, ok := initiatives[id]; ok {
			slot.shot = shot
		}
	}
	return t.sequence
}

// Clone returns an independent copy of the track. The store clones before
// mutating so a rejected or failed intent never leaves partial state.
func (t *Tracker) Clone() *Tracker {
	clone := &Tracker{
		entries:  make(map[string]*entry, len(t.entries)),
		removed:  make(map[string]struct{}, len(t.removed)),
		joinSeq:  t.joinSeq,
		sequence: t.sequence,
	}
	for id, e := range t.entries {
		copied := *e
		clone.entries[id] = &copied
	}
	for id := range t.removed {
		clone.removed[id] = struct{}{}
	}
	return clone
}

func (t *Tracker) ordered() []*entry {
	ordered := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		ordered = append(ordered, e)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].shot != ordered[j].shot {
			return ordered[i].shot > ordered[j].shot
		}
		if ordered[i].speed != ordered[j].speed {
			return ordered[i].speed > ordered[j].speed
		}
		return ordered[i].joined < ordered[j].joined
	})
	return ordered
}
