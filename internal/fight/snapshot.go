package fight

import (
	"time"

	"shotcounter/server/internal/shot"
)

// TrackState mirrors the shot tracker state for wire payloads.
type TrackState string

const (
	TrackActive  TrackState = "active"
	TrackRemoved TrackState = "removed"
	TrackAbsent  TrackState = "absent"
)

// CombatantView is a combatant plus its track position, as clients see it.
type CombatantView struct {
	Combatant
	CurrentShot *int       `json:"currentShot,omitempty"`
	TrackState  TrackState `json:"trackState"`
}

// Snapshot is the canonical read-only view of one encounter. Every applied
// intent produces a fresh snapshot; clients replace their copy wholesale.
type Snapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Sequence    int             `json:"sequence"`
	StartedAt   time.Time       `json:"startedAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	EndedAt     *time.Time      `json:"endedAt,omitempty"`
	NextActorID string          `json:"nextActorId,omitempty"`
	Shots       []shot.Slot     `json:"shots"`
	Combatants  []CombatantView `json:"combatants"`
	EventCount  int             `json:"eventCount"`
	LastEvent   *Event          `json:"lastEvent,omitempty"`
}

// Snapshot renders the canonical view of the encounter.
func (e *Encounter) Snapshot() Snapshot {
	snapshot := Snapshot{
		ID:         e.ID,
		Name:       e.Name,
		Active:     e.Active,
		Sequence:   e.tracker.Sequence(),
		StartedAt:  e.StartedAt,
		UpdatedAt:  e.UpdatedAt,
		Shots:      e.tracker.Slots(),
		EventCount: len(e.events),
	}
	if e.EndedAt != nil {
		ended := *e.EndedAt
		snapshot.EndedAt = &ended
	}
	if next, ok := e.tracker.Next(); ok {
		snapshot.NextActorID = next
	}
	if len(e.events) > 0 {
		last := e.events[len(e.events)-1]
		snapshot.LastEvent = &last
	}

	combatants := e.sortedCombatants()
	snapshot.Combatants = make([]CombatantView, 0, len(combatants))
	for _, combatant := range combatants {
		view := CombatantView{Combatant: combatant}
		switch e.tracker.State(combatant.ID) {
		case shot.StateActive:
			view.TrackState = TrackActive
			if current, ok := e.tracker.Shot(combatant.ID); ok {
				shotValue := current
				view.CurrentShot = &shotValue
			}
		case shot.StateRemoved:
			view.TrackState = TrackRemoved
		default:
			view.TrackState = TrackAbsent
		}
		snapshot.Combatants = append(snapshot.Combatants, view)
	}
	return snapshot
}
