package combat

import (
	"context"

	"shotcounter/server/logging"
)

const (
	// EventAttackResolved is emitted when an attack intent lands.
	EventAttackResolved logging.EventType = "combat.attack_resolved"
	// EventWoundThreshold is emitted when a combatant crosses its wound line.
	EventWoundThreshold logging.EventType = "combat.wound_threshold"
	// EventTakenOut is emitted when a combatant drops out of the fight.
	EventTakenOut logging.EventType = "combat.taken_out"
	// EventUpCheck is emitted when an up check is attempted.
	EventUpCheck logging.EventType = "combat.up_check"
)

// AttackResolvedPayload captures the numbers behind a resolved attack.
type AttackResolvedPayload struct {
	Skill        string `json:"skill,omitempty"`
	Weapon       string `json:"weapon,omitempty"`
	Swerve       int    `json:"swerve"`
	Boxcars      bool   `json:"boxcars,omitempty"`
	ActionResult int    `json:"actionResult"`
	Defense      int    `json:"defense"`
	Outcome      int    `json:"outcome"`
	Wounds       int    `json:"wounds,omitempty"`
	Kills        int    `json:"kills,omitempty"`
}

// WoundThresholdPayload captures the wound line crossing.
type WoundThresholdPayload struct {
	Wounds    int  `json:"wounds"`
	Threshold int  `json:"threshold"`
	UpCheck   bool `json:"upCheck"`
}

// TakenOutPayload describes why a combatant left the fight.
type TakenOutPayload struct {
	Reason string `json:"reason,omitempty"`
	Wounds int    `json:"wounds,omitempty"`
}

// UpCheckPayload captures the outcome of an up check.
type UpCheckPayload struct {
	Succeeded bool `json:"succeeded"`
	Wounds    int  `json:"wounds"`
}

// AttackResolved publishes a resolved attack for one target.
func AttackResolved(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, targets []logging.EntityRef, payload AttackResolvedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAttackResolved,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Targets:  targets,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// WoundThreshold publishes a wound line crossing.
func WoundThreshold(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, target logging.EntityRef, payload WoundThresholdPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventWoundThreshold,
		Revision: revision,
		FightID:  fightID,
		Actor:    target,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// TakenOut publishes a combatant elimination.
func TakenOut(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, target logging.EntityRef, payload TakenOutPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventTakenOut,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// UpCheck publishes an up check attempt.
func UpCheck(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload UpCheckPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventUpCheck,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
