package rules

import (
	"errors"
	"fmt"
)

// Validation failures returned by ResolveAttack. Game-rule outcomes such as
// a miss or zero wounds are results, never errors.
var (
	ErrNoTargets            = errors.New("attack requires at least one target")
	ErrNegativeWeaponDamage = errors.New("weapon damage must not be negative")
	ErrMissingActionValue   = errors.New("attacker action value is required")
	ErrMissingDefense       = errors.New("target defense is required")
	ErrDuplicateTarget      = errors.New("target list contains a duplicate")
	ErrEmptyMookGroup       = errors.New("mook group has no remaining count")
)

// Attacker carries the values the resolver reads for the acting combatant.
type Attacker struct {
	ID          string
	ActionValue int
	Modifier    int
}

// Target carries the defender-side inputs for one target of an attack.
// Wounds is the target's total before this attack so the resolver can judge
// threshold crossings after applying damage.
type Target struct {
	ID              string
	Type            CombatantType
	Defense         int
	DefenseModifier int
	Toughness       int
	Wounds          int
	MookCount       int
}

// Override lets a human hand-adjust the computed smackdown or wounds before
// the result is applied. A present value wins over the computation.
type Override struct {
	Smackdown *int `json:"smackdown,omitempty"`
	Wounds    *int `json:"wounds,omitempty"`
}

// AttackInput bundles everything one resolution needs. CombinedDefense, when
// set, replaces the derived multi-target defense value.
type AttackInput struct {
	Attacker        Attacker
	Weapon          Weapon
	Swerve          Swerve
	Targets         []Target
	CombinedDefense *int
	Overrides       map[string]Override
	ShotCost        *int
}

// TargetResult is the per-target slice of an attack resolution.
type TargetResult struct {
	TargetID         string
	Hit              bool
	Outcome          int
	Smackdown        int
	Wounds           int
	MooksEliminated  int
	TakenOut         bool
	UpCheckRequired  bool
	SmackdownEdited  bool
	WoundsEdited     bool
	EffectiveDefense int
}

// AttackResult is the full resolution outcome. It is ephemeral: the store
// applies it and keeps only the event-log summary.
type AttackResult struct {
	EffectiveAttack int
	ActionResult    int
	DefenseUsed     int
	Swerve          Swerve
	ShotCost        int
	Targets         []TargetResult
}

// mookKillDivisor converts a damage total into eliminated mooks. One kill is
// guaranteed on any hit; the cap by remaining count is enforced separately.
const mookKillDivisor = 5

// ResolveAttack computes the outcome of a single attack declaration against
// one or more targets. It mutates nothing and is safe to call speculatively
// for previews.
func ResolveAttack(in AttackInput) (AttackResult, error) {
	if len(in.Targets) == 0 {
		return AttackResult{}, ErrNoTargets
	}
	if in.Weapon.Damage < 0 {
		return AttackResult{}, fmt.Errorf("%w: %d", ErrNegativeWeaponDamage, in.Weapon.Damage)
	}
	if in.Attacker.ActionValue <= 0 {
		return AttackResult{}, fmt.Errorf("%w: attacker %s", ErrMissingActionValue, in.Attacker.ID)
	}
	seen := make(map[string]struct{}, len(in.Targets))
	for _, target := range in.Targets {
		if _, dup := seen[target.ID]; dup {
			return AttackResult{}, fmt.Errorf("%w: %s", ErrDuplicateTarget, target.ID)
		}
		seen[target.ID] = struct{}{}
		if target.Defense < 0 {
			return AttackResult{}, fmt.Errorf("%w: target %s", ErrMissingDefense, target.ID)
		}
		if target.Type.IsMook() && target.MookCount <= 0 {
			return AttackResult{}, fmt.Errorf("%w: %s", ErrEmptyMookGroup, target.ID)
		}
	}

	effectiveAttack := in.Attacker.ActionValue + in.Attacker.Modifier
	actionResult := effectiveAttack + in.Swerve.Value
	defense := combinedDefense(in)
	outcome := actionResult - defense

	shotCost := DefaultShotCost
	if in.ShotCost != nil && *in.ShotCost >= 0 {
		shotCost = *in.ShotCost
	}

	result := AttackResult{
		EffectiveAttack: effectiveAttack,
		ActionResult:    actionResult,
		DefenseUsed:     defense,
		Swerve:          in.Swerve,
		ShotCost:        shotCost,
		Targets:         make([]TargetResult, 0, len(in.Targets)),
	}

	for _, target := range in.Targets {
		result.Targets = append(result.Targets, resolveTarget(in, target, outcome))
	}
	return result, nil
}

// combinedDefense picks the defense value subtracted from the action result.
// Multi-target attacks share a single value; an explicit combined defense
// wins, otherwise the highest effective individual defense is used.
func combinedDefense(in AttackInput) int {
	if in.CombinedDefense != nil {
		return *in.CombinedDefense
	}
	defense := 0
	for i, target := range in.Targets {
		effective := target.Defense + target.DefenseModifier
		if i == 0 || effective > defense {
			defense = effective
		}
	}
	return defense
}

func resolveTarget(in AttackInput, target Target, outcome int) TargetResult {
	res := TargetResult{
		TargetID:         target.ID,
		Outcome:          outcome,
		EffectiveDefense: target.Defense + target.DefenseModifier,
	}
	if outcome < 0 {
		return res
	}
	res.Hit = true

	if target.Type.IsMook() {
		raw := outcome + in.Weapon.Damage + in.Weapon.MookBonus
		kills := raw / mookKillDivisor
		if kills < 1 {
			kills = 1
		}
		if kills > target.MookCount {
			kills = target.MookCount
		}
		res.MooksEliminated = kills
		return res
	}

	smackdown := outcome + in.Weapon.Damage
	wounds := smackdown - target.Toughness
	if wounds < 0 {
		wounds = 0
	}
	if override, ok := in.Overrides[target.ID]; ok {
		if override.Smackdown != nil {
			smackdown = *override.Smackdown
			res.SmackdownEdited = true
			wounds = smackdown - target.Toughness
			if wounds < 0 {
				wounds = 0
			}
		}
		if override.Wounds != nil {
			wounds = *override.Wounds
			res.WoundsEdited = true
			if wounds < 0 {
				wounds = 0
			}
		}
	}
	res.Smackdown = smackdown
	res.Wounds = wounds

	// Threshold status is judged on the post-attack total, not the outcome.
	total := target.Wounds + wounds
	if threshold, ok := WoundThreshold(target.Type); ok && total >= threshold.Wounds {
		if threshold.UpCheck {
			res.UpCheckRequired = true
		} else {
			res.TakenOut = true
		}
	}
	return res
}
