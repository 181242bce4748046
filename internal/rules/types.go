package rules

// CombatantType enumerates the archetypes a combatant can belong to.
// The type decides how damage is tracked (wounds versus a mook headcount)
// and which wound threshold applies.
type CombatantType string

const (
	TypePC          CombatantType = "pc"
	TypeAlly        CombatantType = "ally"
	TypeMook        CombatantType = "mook"
	TypeFeaturedFoe CombatantType = "featured_foe"
	TypeBoss        CombatantType = "boss"
	TypeUberBoss    CombatantType = "uber_boss"
	TypeVehicle     CombatantType = "vehicle"
)

// ParseCombatantType validates a raw type label.
func ParseCombatantType(value string) (CombatantType, bool) {
	switch CombatantType(value) {
	case TypePC, TypeAlly, TypeMook, TypeFeaturedFoe, TypeBoss, TypeUberBoss, TypeVehicle:
		return CombatantType(value), true
	default:
		return "", false
	}
}

// IsMook reports whether damage against this type is tracked as a headcount.
func (t CombatantType) IsMook() bool {
	return t == TypeMook
}

// Swerve carries the signed result of the two-die mechanic. The roll is
// produced upstream; the resolver only consumes it.
type Swerve struct {
	Value   int  `json:"value"`
	Boxcars bool `json:"boxcars"`
}

// Weapon captures the fields of a weapon record the resolver reads.
type Weapon struct {
	Name      string `json:"name"`
	Damage    int    `json:"damage"`
	MookBonus int    `json:"mookBonus,omitempty"`
}

// DefaultShotCost is the number of shots a standard attack consumes.
const DefaultShotCost = 3
