package fight

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"shotcounter/server/internal/rules"
	"shotcounter/server/internal/shot"
)

// Encounter aggregates the roster, the shot track, the round counter and the
// append-only event log for one fight. All mutation flows through Apply.
type Encounter struct {
	ID        string
	Name      string
	Active    bool
	StartedAt time.Time
	UpdatedAt time.Time
	EndedAt   *time.Time

	combatants map[string]*Combatant
	tracker    *shot.Tracker
	events     []Event
}

// NewEncounter opens a fight at sequence 1 with an empty roster.
func NewEncounter(id, name string, now time.Time) *Encounter {
	return &Encounter{
		ID:         id,
		Name:       name,
		Active:     true,
		StartedAt:  now,
		UpdatedAt:  now,
		combatants: make(map[string]*Combatant),
		tracker:    shot.NewTracker(),
	}
}

// Sequence reports the current round counter.
func (e *Encounter) Sequence() int { return e.tracker.Sequence() }

// Combatant returns a copy of the named combatant.
func (e *Encounter) Combatant(id string) (Combatant, bool) {
	c, ok := e.combatants[id]
	if !ok {
		return Combatant{}, false
	}
	return *c.clone(), true
}

// EventLog returns a copy of the full event log.
func (e *Encounter) EventLog() []Event {
	return append([]Event(nil), e.events...)
}

// Apply runs one intent against the encounter and returns the mutated copy
// plus the events it appended. The receiver is never touched: callers swap
// in the returned encounter only after persistence succeeds, so a rejected
// or failed intent leaves no partial state behind.
func (e *Encounter) Apply(intent Intent, now time.Time) (*Encounter, []Event, error) {
	if !e.Active {
		return nil, nil, reject(RejectFightEnded, "fight %s has ended", e.ID)
	}

	next := e.clone()
	before := len(next.events)

	var err error
	switch intent.Type {
	case IntentAttack:
		err = next.applyAttack(intent.Attack, now)
	case IntentHeal:
		err = next.applyHeal(intent.Heal, now)
	case IntentMove:
		err = next.applyMove(intent.Move, now)
	case IntentOtherAction:
		err = next.applyOtherAction(intent.OtherAction, now)
	case IntentAddCombatant:
		err = next.applyAddCombatant(intent.AddCombatant, now)
	case IntentRemoveCombatant:
		err = next.applyRemoveCombatant(intent.RemoveCombatant, now)
	case IntentAdvanceSequence:
		err = next.applyAdvanceSequence(intent.AdvanceSequence, now)
	case IntentEndFight:
		err = next.applyEndFight(now)
	default:
		err = reject(RejectInvalidIntent, "unknown intent type %q", intent.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	next.UpdatedAt = now
	return next, append([]Event(nil), next.events[before:]...), nil
}

func (e *Encounter) applyAttack(intent *AttackIntent, now time.Time) error {
	if intent == nil {
		return reject(RejectInvalidIntent, "attack intent payload is required")
	}
	if intent.Swerve == nil {
		return reject(RejectInvalidIntent, "attack is missing its swerve roll")
	}
	attacker, err := e.activeCombatant(intent.AttackerID)
	if err != nil {
		return err
	}
	actionValue, ok := attacker.ActionValue(intent.Skill)
	if !ok {
		return reject(RejectInvalidIntent, "%s has no action value for %q", attacker.Name, intent.Skill)
	}
	weapon, ok := attacker.Weapon(intent.WeaponName)
	if !ok {
		return reject(RejectInvalidIntent, "%s carries no weapon %q", attacker.Name, intent.WeaponName)
	}

	targets := make([]rules.Target, 0, len(intent.TargetIDs))
	byID := make(map[string]*Combatant, len(intent.TargetIDs))
	for _, targetID := range intent.TargetIDs {
		target, err := e.activeCombatant(targetID)
		if err != nil {
			return err
		}
		byID[targetID] = target
		targets = append(targets, rules.Target{
			ID:              targetID,
			Type:            target.Type,
			Defense:         target.Defense,
			DefenseModifier: intent.DefenseModifiers[targetID],
			Toughness:       target.Toughness,
			Wounds:          target.Wounds,
			MookCount:       target.Count,
		})
	}

	result, resolveErr := rules.ResolveAttack(rules.AttackInput{
		Attacker:        rules.Attacker{ID: attacker.ID, ActionValue: actionValue, Modifier: intent.Modifier},
		Weapon:          weapon,
		Swerve:          *intent.Swerve,
		Targets:         targets,
		CombinedDefense: intent.CombinedDefense,
		Overrides:       intent.Overrides,
		ShotCost:        intent.ShotCost,
	})
	if resolveErr != nil {
		return reject(RejectInvalidIntent, "attack rejected: %v", resolveErr)
	}

	attackerShot, _ := e.tracker.Shot(attacker.ID)
	swerve := result.Swerve.Value
	event := Event{
		Type:      EventAttack,
		At:        now,
		Sequence:  e.tracker.Sequence(),
		Shot:      attackerShot,
		ActorID:   attacker.ID,
		TargetIDs: append([]string(nil), intent.TargetIDs...),
		Swerve:    &swerve,
		Boxcars:   result.Swerve.Boxcars,
	}

	lines := make([]string, 0, len(result.Targets))
	for _, tr := range result.Targets {
		target := byID[tr.TargetID]
		if !tr.Hit {
			lines = append(lines, fmt.Sprintf("misses %s (outcome %d)", target.Name, tr.Outcome))
			continue
		}
		if target.Type.IsMook() {
			target.Count -= tr.MooksEliminated
			event.Kills += tr.MooksEliminated
			lines = append(lines, fmt.Sprintf("drops %d of %s (%d left)", tr.MooksEliminated, target.Name, target.Count))
			if target.Count <= 0 {
				e.markOut(target, now, "the last of the group goes down")
			}
			continue
		}
		target.Wounds += tr.Wounds
		event.Wounds += tr.Wounds
		lines = append(lines, fmt.Sprintf("hits %s for %d wounds (smackdown %d)", target.Name, tr.Wounds, tr.Smackdown))
		if tr.TakenOut {
			e.markOut(target, now, fmt.Sprintf("%d wounds crosses the line", target.Wounds))
		} else if tr.UpCheckRequired && !target.UpCheckRequired {
			target.UpCheckRequired = true
			e.appendEvent(Event{
				Type:        EventWoundThreshold,
				At:          now,
				Sequence:    e.tracker.Sequence(),
				ActorID:     target.ID,
				Description: fmt.Sprintf("%s is at %d wounds and owes an up check", target.Name, target.Wounds),
			})
		}
	}

	if _, err := e.tracker.SpendShots(attacker.ID, result.ShotCost, false); err != nil {
		return reject(RejectInvalidIntent, "spend shots: %v", err)
	}
	event.Description = fmt.Sprintf("%s attacks: %s", attacker.Name, strings.Join(lines, "; "))
	e.appendEventFirst(event)
	return nil
}

func (e *Encounter) applyHeal(intent *HealIntent, now time.Time) error {
	if intent == nil {
		return reject(RejectInvalidIntent, "heal intent payload is required")
	}
	if intent.Amount <= 0 {
		return reject(RejectInvalidIntent, "heal amount must be positive")
	}
	target, err := e.activeCombatant(intent.TargetID)
	if err != nil {
		return err
	}

	var description string
	if target.Type.IsMook() {
		target.Count += intent.Amount
		description = fmt.Sprintf("%s regains %d mooks (%d total)", target.Name, intent.Amount, target.Count)
	} else {
		target.Wounds -= intent.Amount
		if target.Wounds < 0 {
			target.Wounds = 0
		}
		if target.UpCheckRequired && !rules.CrossedThreshold(target.Type, target.Wounds) {
			target.UpCheckRequired = false
		}
		description = fmt.Sprintf("%s is healed for %d (%d wounds remain)", target.Name, intent.Amount, target.Wounds)
	}

	if intent.HealerID != "" {
		healer, err := e.activeCombatant(intent.HealerID)
		if err != nil {
			return err
		}
		cost := rules.DefaultShotCost
		if intent.ShotCost != nil && *intent.ShotCost >= 0 {
			cost = *intent.ShotCost
		}
		if _, err := e.tracker.SpendShots(healer.ID, cost, false); err != nil {
			return reject(RejectInvalidIntent, "spend shots: %v", err)
		}
	}

	e.appendEvent(Event{
		Type:        EventHeal,
		At:          now,
		Sequence:    e.tracker.Sequence(),
		ActorID:     intent.HealerID,
		TargetIDs:   []string{target.ID},
		Description: description,
	})
	return nil
}

func (e *Encounter) applyMove(intent *MoveIntent, now time.Time) error {
	if intent == nil {
		return reject(RejectInvalidIntent, "move intent payload is required")
	}
	combatant, err := e.activeCombatant(intent.CombatantID)
	if err != nil {
		return err
	}
	from := combatant.Location
	combatant.Location = intent.Location
	if intent.ShotCost != nil && *intent.ShotCost > 0 {
		if _, err := e.tracker.SpendShots(combatant.ID, *intent.ShotCost, false); err != nil {
			return reject(RejectInvalidIntent, "spend shots: %v", err)
		}
	}
	description := fmt.Sprintf("%s moves to %s", combatant.Name, intent.Location)
	if from != "" {
		description = fmt.Sprintf("%s moves from %s to %s", combatant.Name, from, intent.Location)
	}
	e.appendEvent(Event{
		Type:        EventMovement,
		At:          now,
		Sequence:    e.tracker.Sequence(),
		ActorID:     combatant.ID,
		Description: description,
	})
	return nil
}

func (e *Encounter) applyOtherAction(intent *OtherActionIntent, now time.Time) error {
	if intent == nil {
		return reject(RejectInvalidIntent, "action intent payload is required")
	}
	combatant, err := e.activeCombatant(intent.CombatantID)
	if err != nil {
		return err
	}
	cost := rules.DefaultShotCost
	if intent.ShotCost != nil && *intent.ShotCost >= 0 {
		cost = *intent.ShotCost
	}

	switch intent.Action {
	case ActionBoost:
		if _, err := e.tracker.SpendShots(combatant.ID, cost, false); err != nil {
			return reject(RejectInvalidIntent, "spend shots: %v", err)
		}
		description := intent.Description
		if description == "" {
			description = fmt.Sprintf("%s spends %d shots on a boost", combatant.Name, cost)
		}
		e.appendEvent(Event{
			Type:        EventBoost,
			At:          now,
			Sequence:    e.tracker.Sequence(),
			ActorID:     combatant.ID,
			Description: description,
		})
	case ActionChase:
		combatant.Wounds += intent.Points
		if _, err := e.tracker.SpendShots(combatant.ID, cost, false); err != nil {
			return reject(RejectInvalidIntent, "spend shots: %v", err)
		}
		e.appendEvent(Event{
			Type:        EventChaseAction,
			At:          now,
			Sequence:    e.tracker.Sequence(),
			ActorID:     combatant.ID,
			Wounds:      intent.Points,
			Description: fmt.Sprintf("%s takes %d chase points (%d total)", combatant.Name, intent.Points, combatant.Wounds),
		})
		if rules.CrossedThreshold(combatant.Type, combatant.Wounds) {
			e.markOut(combatant, now, "condition points cross the line")
		}
	case ActionUpCheck:
		if intent.Succeeded == nil {
			return reject(RejectInvalidIntent, "up check needs a success flag")
		}
		if !combatant.UpCheckRequired {
			return reject(RejectInvalidIntent, "%s does not owe an up check", combatant.Name)
		}
		if *intent.Succeeded {
			combatant.UpCheckRequired = false
			e.appendEvent(Event{
				Type:        EventUpCheck,
				At:          now,
				Sequence:    e.tracker.Sequence(),
				ActorID:     combatant.ID,
				Description: fmt.Sprintf("%s makes the up check and stays in the fight", combatant.Name),
			})
		} else {
			e.appendEvent(Event{
				Type:        EventUpCheck,
				At:          now,
				Sequence:    e.tracker.Sequence(),
				ActorID:     combatant.ID,
				Description: fmt.Sprintf("%s fails the up check", combatant.Name),
			})
			e.markOut(combatant, now, "failed up check")
		}
	case ActionCheeseIt:
		switch {
		case intent.Succeeded == nil:
			combatant.CheesingIt = true
			if _, err := e.tracker.SpendShots(combatant.ID, cost, false); err != nil {
				return reject(RejectInvalidIntent, "spend shots: %v", err)
			}
			e.appendEvent(Event{
				Type:        EventCheeseIt,
				At:          now,
				Sequence:    e.tracker.Sequence(),
				ActorID:     combatant.ID,
				Description: fmt.Sprintf("%s is cheesing it", combatant.Name),
			})
		case *intent.Succeeded:
			combatant.CheesingIt = false
			combatant.CheesedIt = true
			if err := e.tracker.Remove(combatant.ID); err != nil {
				return reject(RejectInvalidIntent, "leave track: %v", err)
			}
			e.appendEvent(Event{
				Type:        EventCheeseIt,
				At:          now,
				Sequence:    e.tracker.Sequence(),
				ActorID:     combatant.ID,
				Description: fmt.Sprintf("%s cheeses it and escapes the fight", combatant.Name),
			})
		default:
			e.appendEvent(Event{
				Type:        EventCheeseIt,
				At:          now,
				Sequence:    e.tracker.Sequence(),
				ActorID:     combatant.ID,
				Description: fmt.Sprintf("%s fails to get away", combatant.Name),
			})
		}
	default:
		return reject(RejectInvalidIntent, "unknown action %q", intent.Action)
	}
	return nil
}

func (e *Encounter) applyAddCombatant(intent *AddCombatantIntent, now time.Time) error {
	if intent == nil {
		return reject(RejectInvalidIntent, "add intent payload is required")
	}
	combatant := intent.Combatant
	if combatant.ID == "" {
		return reject(RejectInvalidIntent, "combatant id is required")
	}
	if _, ok := rules.ParseCombatantType(string(combatant.Type)); !ok {
		return reject(RejectInvalidIntent, "unknown combatant type %q", combatant.Type)
	}
	if _, exists := e.combatants[combatant.ID]; exists && e.tracker.State(combatant.ID) == shot.StateActive {
		return reject(RejectDuplicateCombatant, "%s already holds a shot slot", combatant.ID)
	}
	// The same character record may back at most one active slot.
	if combatant.CharacterID != "" {
		for _, existing := range e.combatants {
			if existing.CharacterID == combatant.CharacterID && e.tracker.State(existing.ID) == shot.StateActive {
				return reject(RejectDuplicateCombatant, "character %s is already in this fight as %s", combatant.CharacterID, existing.Name)
			}
		}
	}

	initiative := combatant.Speed
	if intent.Initiative != nil {
		initiative = *intent.Initiative
	}
	if err := e.tracker.Add(combatant.ID, combatant.Speed, initiative); err != nil {
		return reject(RejectDuplicateCombatant, "%v", err)
	}
	stored := combatant
	e.combatants[combatant.ID] = stored.clone()
	e.appendEvent(Event{
		Type:        EventJoin,
		At:          now,
		Sequence:    e.tracker.Sequence(),
		ActorID:     combatant.ID,
		Shot:        initiative,
		Description: fmt.Sprintf("%s joins the fight at shot %d", combatant.Name, initiative),
	})
	return nil
}

func (e *Encounter) applyRemoveCombatant(intent *RemoveCombatantIntent, now time.Time) error {
	if intent == nil {
		return reject(RejectInvalidIntent, "remove intent payload is required")
	}
	combatant, err := e.activeCombatant(intent.CombatantID)
	if err != nil {
		return err
	}
	if err := e.tracker.Remove(combatant.ID); err != nil {
		return reject(RejectCombatantRemoved, "%v", err)
	}
	description := fmt.Sprintf("%s leaves the fight", combatant.Name)
	if intent.Reason != "" {
		description = fmt.Sprintf("%s leaves the fight: %s", combatant.Name, intent.Reason)
	}
	e.appendEvent(Event{
		Type:        EventLeave,
		At:          now,
		Sequence:    e.tracker.Sequence(),
		ActorID:     combatant.ID,
		Description: description,
	})
	return nil
}

func (e *Encounter) applyAdvanceSequence(intent *AdvanceSequenceIntent, now time.Time) error {
	var initiatives map[string]int
	if intent != nil {
		initiatives = intent.Initiatives
	}
	sequence := e.tracker.AdvanceSequence(initiatives)
	e.appendEvent(Event{
		Type:        EventSequence,
		At:          now,
		Sequence:    sequence,
		Description: fmt.Sprintf("sequence %d begins", sequence),
	})
	return nil
}

func (e *Encounter) applyEndFight(now time.Time) error {
	e.Active = false
	ended := now
	e.EndedAt = &ended
	e.appendEvent(Event{
		Type:        EventEnded,
		At:          now,
		Sequence:    e.tracker.Sequence(),
		Description: fmt.Sprintf("%s ends after %d sequences", e.Name, e.tracker.Sequence()),
	})
	return nil
}

// activeCombatant resolves a combatant that can still be acted on or
// against. Unknown and removed combatants produce the two distinct
// rejection reasons clients use to decide whether to re-fetch.
func (e *Encounter) activeCombatant(id string) (*Combatant, error) {
	if id == "" {
		return nil, reject(RejectInvalidIntent, "combatant id is required")
	}
	combatant, ok := e.combatants[id]
	if !ok {
		return nil, reject(RejectUnknownCombatant, "no combatant %s in this fight", id)
	}
	if e.tracker.State(id) != shot.StateActive {
		return nil, reject(RejectCombatantRemoved, "%s is no longer in this fight", combatant.Name)
	}
	return combatant, nil
}

// markOut flags a combatant as out of the fight and drops its shot slot.
func (e *Encounter) markOut(combatant *Combatant, now time.Time, cause string) {
	combatant.OutOfFight = true
	combatant.UpCheckRequired = false
	_ = e.tracker.Remove(combatant.ID)
	e.appendEvent(Event{
		Type:        EventOutOfFight,
		At:          now,
		Sequence:    e.tracker.Sequence(),
		ActorID:     combatant.ID,
		Description: fmt.Sprintf("%s is out of the fight: %s", combatant.Name, cause),
	})
}

func (e *Encounter) appendEvent(event Event) {
	event.Seq = len(e.events)
	e.events = append(e.events, event)
}

// appendEventFirst inserts the primary action event ahead of any secondary
// events (threshold, out-of-fight) appended while resolving it, so the log
// reads in narrative order.
func (e *Encounter) appendEventFirst(event Event) {
	e.appendEvent(event)
	last := len(e.events) - 1
	// Walk the freshly appended event back past secondary events that were
	// recorded during the same application.
	for last > 0 && e.events[last-1].At.Equal(event.At) && e.events[last-1].Type != EventAttack && isSecondary(e.events[last-1].Type) {
		e.events[last-1], e.events[last] = e.events[last], e.events[last-1]
		e.events[last-1].Seq = last - 1
		e.events[last].Seq = last
		last--
	}
}

func isSecondary(t EventType) bool {
	switch t {
	case EventWoundThreshold, EventOutOfFight:
		return true
	default:
		return false
	}
}

func (e *Encounter) clone() *Encounter {
	next := &Encounter{
		ID:         e.ID,
		Name:       e.Name,
		Active:     e.Active,
		StartedAt:  e.StartedAt,
		UpdatedAt:  e.UpdatedAt,
		combatants: make(map[string]*Combatant, len(e.combatants)),
		tracker:    e.tracker.Clone(),
		events:     append([]Event(nil), e.events...),
	}
	if e.EndedAt != nil {
		ended := *e.EndedAt
		next.EndedAt = &ended
	}
	for id, combatant := range e.combatants {
		next.combatants[id] = combatant.clone()
	}
	return next
}

// sortedCombatants returns roster copies in a stable display order: shot
// track order first, then everyone else by name.
func (e *Encounter) sortedCombatants() []Combatant {
	slots := e.tracker.Slots()
	onTrack := make(map[string]struct{}, len(slots))
	ordered := make([]Combatant, 0, len(e.combatants))
	for _, slot := range slots {
		if combatant, ok := e.combatants[slot.CombatantID]; ok {
			onTrack[slot.CombatantID] = struct{}{}
			ordered = append(ordered, *combatant.clone())
		}
	}
	rest := make([]Combatant, 0, len(e.combatants)-len(ordered))
	for id, combatant := range e.combatants {
		if _, ok := onTrack[id]; !ok {
			rest = append(rest, *combatant.clone())
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })
	return append(ordered, rest...)
}
