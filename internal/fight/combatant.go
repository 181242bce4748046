package fight

import (
	"shotcounter/server/internal/rules"
)

// Combatant is a character or vehicle inside one encounter. The encounter
// owns only the fields below; the backing directory record is read-only.
type Combatant struct {
	ID           string              `json:"id"`
	CharacterID  string              `json:"characterId"`
	Name         string              `json:"name"`
	Type         rules.CombatantType `json:"type"`
	ActionValues map[string]int      `json:"actionValues,omitempty"`
	Defense      int                 `json:"defense"`
	Toughness    int                 `json:"toughness"`
	Speed        int                 `json:"speed"`
	Weapons      []rules.Weapon      `json:"weapons,omitempty"`

	Wounds          int    `json:"wounds"`
	Count           int    `json:"count,omitempty"`
	UpCheckRequired bool   `json:"upCheckRequired,omitempty"`
	OutOfFight      bool   `json:"outOfFight,omitempty"`
	CheesingIt      bool   `json:"cheesingIt,omitempty"`
	CheesedIt       bool   `json:"cheesedIt,omitempty"`
	Location        string `json:"location,omitempty"`
}

// ActionValue looks up the attack rating for a named skill.
func (c *Combatant) ActionValue(skill string) (int, bool) {
	value, ok := c.ActionValues[skill]
	return value, ok
}

// Weapon finds a carried weapon by name. An empty name selects the first
// weapon, mirroring the "just attack" flow in the UI.
func (c *Combatant) Weapon(name string) (rules.Weapon, bool) {
	if len(c.Weapons) == 0 {
		return rules.Weapon{}, false
	}
	if name == "" {
		return c.Weapons[0], true
	}
	for _, weapon := range c.Weapons {
		if weapon.Name == name {
			return weapon, true
		}
	}
	return rules.Weapon{}, false
}

func (c *Combatant) clone() *Combatant {
	copied := *c
	if c.ActionValues != nil {
		copied.ActionValues = make(map[string]int, len(c.ActionValues))
		for k, v := range c.ActionValues {
			copied.ActionValues[k] = v
		}
	}
	if c.Weapons != nil {
		copied.Weapons = append([]rules.Weapon(nil), c.Weapons...)
	}
	return &copied
}
