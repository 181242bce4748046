// Package intake turns raw client payloads into validated fight intents.
// Malformed payloads are refused here so the store only ever sees intents
// that are structurally sound.
package intake

import (
	"encoding/json"
	"time"

	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/net/proto"
)

// Rejection reasons produced by the intake layer itself. Store-level
// rejections pass through with their own reason codes.
const (
	ReasonInvalidIntent    = "invalid_intent"
	ReasonUnknownCharacter = "unknown_character"
	ReasonInternal         = "internal_error"
)

// IntentContext carries the hooks intake needs to resolve and submit.
type IntentContext struct {
	ResolveCharacter func(id string) (fight.Combatant, error)
	Submit           func(fight.Intent) (uint64, error)
	Now              func() time.Time
}

type addCombatantEnvelope struct {
	CharacterID string           `json:"characterId,omitempty"`
	CombatantID string           `json:"combatantId,omitempty"`
	Combatant   *fight.Combatant `json:"combatant,omitempty"`
	Initiative  *int             `json:"initiative,omitempty"`
}

type intentEnvelope struct {
	Type            fight.IntentType             `json:"type"`
	Attack          *fight.AttackIntent          `json:"attack,omitempty"`
	Heal            *fight.HealIntent            `json:"heal,omitempty"`
	Move            *fight.MoveIntent            `json:"move,omitempty"`
	OtherAction     *fight.OtherActionIntent     `json:"otherAction,omitempty"`
	AddCombatant    *addCombatantEnvelope        `json:"addCombatant,omitempty"`
	RemoveCombatant *fight.RemoveCombatantIntent `json:"removeCombatant,omitempty"`
	AdvanceSequence *fight.AdvanceSequenceIntent `json:"advanceSequence,omitempty"`
}

// StageClientIntent validates an inbound intent message, resolves directory
// references and submits the result. It returns the broadcast revision the
// applied intent lands in, or a structured rejection.
func StageClientIntent(ctx IntentContext, clientID string, msg proto.ClientMessage) (uint64, bool, string, string) {
	if len(msg.Intent) == 0 {
		return 0, false, ReasonInvalidIntent, "intent payload required"
	}
	var envelope intentEnvelope
	if err := json.Unmarshal(msg.Intent, &envelope); err != nil {
		return 0, false, ReasonInvalidIntent, "intent payload is not valid JSON"
	}

	intent := fight.Intent{
		Type:            envelope.Type,
		ActorID:         clientID,
		Attack:          envelope.Attack,
		Heal:            envelope.Heal,
		Move:            envelope.Move,
		OtherAction:     envelope.OtherAction,
		RemoveCombatant: envelope.RemoveCombatant,
		AdvanceSequence: envelope.AdvanceSequence,
	}
	if ctx.Now != nil {
		intent.IssuedAt = ctx.Now()
	} else {
		intent.IssuedAt = time.Now()
	}

	if reason, message, ok := validate(ctx, &intent, envelope); !ok {
		return 0, false, reason, message
	}

	if ctx.Submit == nil {
		return 0, false, ReasonInternal, "no intent queue attached"
	}
	revision, err := ctx.Submit(intent)
	if err != nil {
		if rejection, ok := fight.AsRejection(err); ok {
			return 0, false, string(rejection.Reason), rejection.Message
		}
		return 0, false, ReasonInternal, err.Error()
	}
	return revision, true, "", ""
}

func validate(ctx IntentContext, intent *fight.Intent, envelope intentEnvelope) (string, string, bool) {
	switch intent.Type {
	case fight.IntentAttack:
		if intent.Attack == nil {
			return ReasonInvalidIntent, "attack payload required", false
		}
		if intent.Attack.AttackerID == "" {
			return ReasonInvalidIntent, "attack needs an attacker", false
		}
		if len(intent.Attack.TargetIDs) == 0 {
			return ReasonInvalidIntent, "attack needs at least one target", false
		}
	case fight.IntentHeal:
		if intent.Heal == nil {
			return ReasonInvalidIntent, "heal payload required", false
		}
		if intent.Heal.TargetID == "" {
			return ReasonInvalidIntent, "heal needs a target", false
		}
		if intent.Heal.Amount <= 0 {
			return ReasonInvalidIntent, "heal amount must be positive", false
		}
	case fight.IntentMove:
		if intent.Move == nil || intent.Move.CombatantID == "" {
			return ReasonInvalidIntent, "move needs a combatant", false
		}
		if intent.Move.Location == "" {
			return ReasonInvalidIntent, "move needs a destination", false
		}
	case fight.IntentOtherAction:
		if intent.OtherAction == nil || intent.OtherAction.CombatantID == "" {
			return ReasonInvalidIntent, "action needs a combatant", false
		}
		switch intent.OtherAction.Action {
		case fight.ActionBoost, fight.ActionChase, fight.ActionUpCheck, fight.ActionCheeseIt:
		default:
			return ReasonInvalidIntent, "unknown action", false
		}
	case fight.IntentAddCombatant:
		resolved, reason, message, ok := resolveAddCombatant(ctx, envelope.AddCombatant)
		if !ok {
			return reason, message, false
		}
		intent.AddCombatant = resolved
	case fight.IntentRemoveCombatant:
		if intent.RemoveCombatant == nil || intent.RemoveCombatant.CombatantID == "" {
			return ReasonInvalidIntent, "removal needs a combatant", false
		}
	case fight.IntentAdvanceSequence:
		if intent.AdvanceSequence == nil {
			intent.AdvanceSequence = &fight.AdvanceSequenceIntent{}
		}
	case fight.IntentEndFight:
	default:
		return ReasonInvalidIntent, "unknown intent type", false
	}
	return "", "", true
}

func resolveAddCombatant(ctx IntentContext, envelope *addCombatantEnvelope) (*fight.AddCombatantIntent, string, string, bool) {
	if envelope == nil {
		return nil, ReasonInvalidIntent, "add payload required", false
	}
	if envelope.Combatant != nil {
		return &fight.AddCombatantIntent{
			Combatant:  *envelope.Combatant,
			Initiative: envelope.Initiative,
		}, "", "", true
	}
	if envelope.CharacterID == "" {
		return nil, ReasonInvalidIntent, "add needs a combatant or character reference", false
	}
	if ctx.ResolveCharacter == nil {
		return nil, ReasonInternal, "no character directory attached", false
	}
	combatant, err := ctx.ResolveCharacter(envelope.CharacterID)
	if err != nil {
		return nil, ReasonUnknownCharacter, "character " + envelope.CharacterID + " is not in the directory", false
	}
	if envelope.CombatantID != "" {
		combatant.ID = envelope.CombatantID
	}
	return &fight.AddCombatantIntent{
		Combatant:  combatant,
		Initiative: envelope.Initiative,
	}, "", "", true
}
