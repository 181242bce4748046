package rules

// Threshold describes the wound danger line for one combatant type.
// UpCheck types are not automatically out at the line; they owe an up check
// instead. The table is the single source of truth so call sites never
// hard-code a limit.
type Threshold struct {
	Wounds  int
	UpCheck bool
}

var woundThresholds = map[CombatantType]Threshold{
	TypePC:          {Wounds: 35, UpCheck: true},
	TypeAlly:        {Wounds: 35, UpCheck: true},
	TypeFeaturedFoe: {Wounds: 30},
	TypeBoss:        {Wounds: 50},
	TypeUberBoss:    {Wounds: 50},
	TypeVehicle:     {Wounds: 35},
}

// WoundThreshold returns the threshold entry for the given type. Mooks have
// no threshold; the second return is false for them and unknown types.
func WoundThreshold(t CombatantType) (Threshold, bool) {
	threshold, ok := woundThresholds[t]
	return threshold, ok
}

// CrossedThreshold reports whether a wound total sits on or past the danger
// line for the given type.
func CrossedThreshold(t CombatantType, wounds int) bool {
	threshold, ok := woundThresholds[t]
	if !ok {
		return false
	}
	return wounds >= threshold.Wounds
}
