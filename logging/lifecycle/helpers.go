package lifecycle

import (
	"context"

	"shotcounter/server/logging"
)

const (
	// EventFightCreated is emitted when a fight opens.
	EventFightCreated logging.EventType = "lifecycle.fight_created"
	// EventFightEnded is emitted when a fight is archived.
	EventFightEnded logging.EventType = "lifecycle.fight_ended"
	// EventCombatantJoined is emitted when a combatant takes a shot slot.
	EventCombatantJoined logging.EventType = "lifecycle.combatant_joined"
	// EventCombatantLeft is emitted when a combatant withdraws.
	EventCombatantLeft logging.EventType = "lifecycle.combatant_left"
	// EventSequenceAdvanced is emitted when a new sequence begins.
	EventSequenceAdvanced logging.EventType = "lifecycle.sequence_advanced"
)

// FightCreatedPayload captures the opening state of a fight.
type FightCreatedPayload struct {
	Name string `json:"name"`
}

// FightEndedPayload captures the closing state of a fight.
type FightEndedPayload struct {
	Sequence   int `json:"sequence"`
	EventCount int `json:"eventCount"`
}

// CombatantJoinedPayload captures the slot a combatant claimed.
type CombatantJoinedPayload struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Initiative int    `json:"initiative"`
}

// CombatantLeftPayload captures why a combatant withdrew.
type CombatantLeftPayload struct {
	Reason string `json:"reason,omitempty"`
}

// SequenceAdvancedPayload carries the sequence counter.
type SequenceAdvancedPayload struct {
	Sequence int `json:"sequence"`
}

// FightCreated publishes a fight open event.
func FightCreated(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, payload FightCreatedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFightCreated,
		Revision: revision,
		FightID:  fightID,
		Actor:    logging.EntityRef{ID: fightID, Kind: logging.EntityKindFight},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FightEnded publishes a fight archive event.
func FightEnded(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, payload FightEndedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFightEnded,
		Revision: revision,
		FightID:  fightID,
		Actor:    logging.EntityRef{ID: fightID, Kind: logging.EntityKindFight},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CombatantJoined publishes a combatant join event.
func CombatantJoined(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload CombatantJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCombatantJoined,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CombatantLeft publishes a combatant withdraw event.
func CombatantLeft(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload CombatantLeftPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCombatantLeft,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SequenceAdvanced publishes the start of a new sequence.
func SequenceAdvanced(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, payload SequenceAdvancedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSequenceAdvanced,
		Revision: revision,
		FightID:  fightID,
		Actor:    logging.EntityRef{ID: fightID, Kind: logging.EntityKindFight},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
