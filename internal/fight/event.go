package fight

import "time"

// EventType labels an append-only event-log entry.
type EventType string

const (
	EventAttack         EventType = "attack"
	EventHeal           EventType = "heal"
	EventMovement       EventType = "movement"
	EventWoundThreshold EventType = "wound_threshold"
	EventUpCheck        EventType = "up_check"
	EventOutOfFight     EventType = "out_of_fight"
	EventChaseAction    EventType = "chase_action"
	EventBoost          EventType = "boost"
	EventCheeseIt       EventType = "cheese_it"
	EventSequence       EventType = "sequence"
	EventJoin           EventType = "join"
	EventLeave          EventType = "leave"
	EventEnded          EventType = "ended"
)

// Event is one event-log entry. Seq is the entry's position in the log,
// Sequence the round it happened in. Entries are never edited or removed.
type Event struct {
	Seq         int       `json:"seq"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
	Sequence    int       `json:"sequence"`
	Shot        int       `json:"shot,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	TargetIDs   []string  `json:"targetIds,omitempty"`
	Wounds      int       `json:"wounds,omitempty"`
	Kills       int       `json:"kills,omitempty"`
	Swerve      *int      `json:"swerve,omitempty"`
	Boxcars     bool      `json:"boxcars,omitempty"`
}
