package fight

import (
	"time"

	"shotcounter/server/internal/rules"
)

// IntentType enumerates the mutations a client may submit.
type IntentType string

const (
	IntentAttack          IntentType = "attack"
	IntentHeal            IntentType = "heal"
	IntentMove            IntentType = "move"
	IntentOtherAction     IntentType = "other_action"
	IntentAddCombatant    IntentType = "add_combatant"
	IntentRemoveCombatant IntentType = "remove_combatant"
	IntentAdvanceSequence IntentType = "advance_sequence"
	IntentEndFight        IntentType = "end_fight"
)

// OtherAction names for the OtherActionIntent.Action field.
const (
	ActionBoost    = "boost"
	ActionChase    = "chase"
	ActionUpCheck  = "up_check"
	ActionCheeseIt = "cheese_it"
)

// AttackIntent declares one attack. Swerve must be populated before the
// store sees the intent; the hub rolls it when the client left it empty.
// Overrides carry GM hand-edits of the computed smackdown/wounds.
type AttackIntent struct {
	AttackerID       string                    `json:"attackerId"`
	Skill            string                    `json:"skill"`
	Modifier         int                       `json:"modifier,omitempty"`
	WeaponName       string                    `json:"weaponName,omitempty"`
	TargetIDs        []string                  `json:"targetIds"`
	DefenseModifiers map[string]int            `json:"defenseModifiers,omitempty"`
	CombinedDefense  *int                      `json:"combinedDefense,omitempty"`
	Swerve           *rules.Swerve             `json:"swerve,omitempty"`
	Overrides        map[string]rules.Override `json:"overrides,omitempty"`
	ShotCost         *int                      `json:"shotCost,omitempty"`
}

// HealIntent restores wounds (or mooks, for a mook group) on a combatant.
type HealIntent struct {
	HealerID string `json:"healerId,omitempty"`
	TargetID string `json:"targetId"`
	Amount   int    `json:"amount"`
	ShotCost *int   `json:"shotCost,omitempty"`
}

// MoveIntent relabels a combatant's location.
type MoveIntent struct {
	CombatantID string `json:"combatantId"`
	Location    string `json:"location"`
	ShotCost    *int   `json:"shotCost,omitempty"`
}

// OtherActionIntent covers boosts, chase actions, up checks and attempts to
// cheese it. Succeeded carries the roll outcome for actions that need one.
type OtherActionIntent struct {
	CombatantID string `json:"combatantId"`
	Action      string `json:"action"`
	Succeeded   *bool  `json:"succeeded,omitempty"`
	Points      int    `json:"points,omitempty"`
	Description string `json:"description,omitempty"`
	ShotCost    *int   `json:"shotCost,omitempty"`
}

// AddCombatantIntent places a resolved directory record on the shot track.
// The hub resolves the directory; the store never reads external records.
type AddCombatantIntent struct {
	Combatant  Combatant `json:"combatant"`
	Initiative *int      `json:"initiative,omitempty"`
}

// RemoveCombatantIntent withdraws a combatant from the fight.
type RemoveCombatantIntent struct {
	CombatantID string `json:"combatantId"`
	Reason      string `json:"reason,omitempty"`
}

// AdvanceSequenceIntent starts the next round. Initiatives carry the rolled
// or GM-assigned shot values per active combatant.
type AdvanceSequenceIntent struct {
	Initiatives map[string]int `json:"initiatives,omitempty"`
}

// Intent is one client-submitted mutation, applied atomically by the store.
type Intent struct {
	Type            IntentType             `json:"type"`
	ActorID         string                 `json:"actorId,omitempty"`
	IssuedAt        time.Time              `json:"issuedAt,omitempty"`
	Attack          *AttackIntent          `json:"attack,omitempty"`
	Heal            *HealIntent            `json:"heal,omitempty"`
	Move            *MoveIntent            `json:"move,omitempty"`
	OtherAction     *OtherActionIntent     `json:"otherAction,omitempty"`
	AddCombatant    *AddCombatantIntent    `json:"addCombatant,omitempty"`
	RemoveCombatant *RemoveCombatantIntent `json:"removeCombatant,omitempty"`
	AdvanceSequence *AdvanceSequenceIntent `json:"advanceSequence,omitempty"`
}
