// Package directory stores the character records fights draw combatants
// from. Records hold the durable stat blocks; fights hold the per-encounter
// state.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/rules"
)

var ErrNotFound = errors.New("directory: record not found")

// Record is one durable character entry.
type Record struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Type         rules.CombatantType `json:"type"`
	ActionValues map[string]int      `json:"actionValues,omitempty"`
	Defense      int                 `json:"defense"`
	Toughness    int                 `json:"toughness"`
	Speed        int                 `json:"speed"`
	Weapons      []rules.Weapon      `json:"weapons,omitempty"`
	DefaultCount int                 `json:"defaultCount,omitempty"`
	Notes        string              `json:"notes,omitempty"`
}

// Combatant materializes a fight combatant from the record. The instance id
// is per-fight; the record id stays on CharacterID so rejoin checks work.
func (r Record) Combatant(instanceID string) fight.Combatant {
	values := make(map[string]int, len(r.ActionValues))
	for skill, value := range r.ActionValues {
		values[skill] = value
	}
	weapons := append([]rules.Weapon(nil), r.Weapons...)
	count := 0
	if r.Type.IsMook() {
		count = r.DefaultCount
		if count <= 0 {
			count = 1
		}
	}
	return fight.Combatant{
		ID:           instanceID,
		CharacterID:  r.ID,
		Name:         r.Name,
		Type:         r.Type,
		ActionValues: values,
		Defense:      r.Defense,
		Toughness:    r.Toughness,
		Speed:        r.Speed,
		Weapons:      weapons,
		Count:        count,
	}
}

// Directory exposes the lookups the hub needs when resolving add-combatant
// intents.
type Directory interface {
	Lookup(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Put(ctx context.Context, record Record) error
}

// Memory is an in-process Directory.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Lookup(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("lookup %q: %w", id, ErrNotFound)
	}
	return record, nil
}

func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (m *Memory) Put(_ context.Context, record Record) error {
	if record.ID == "" {
		return errors.New("directory: record id required")
	}
	if _, ok := rules.ParseCombatantType(string(record.Type)); !ok {
		return fmt.Errorf("directory: unknown combatant type %q", record.Type)
	}
	m.mu.Lock()
	m.records[record.ID] = record
	m.mu.Unlock()
	return nil
}

// SeedRoster fills the directory with a small playable roster so a fresh
// server has something to fight with.
func SeedRoster(ctx context.Context, dir Directory) error {
	roster := []Record{
		{
			ID:   "char-archer",
			Name: "The Archer",
			Type: rules.TypePC,
			ActionValues: map[string]int{
				"Guns": 15, "Martial Arts": 12,
			},
			Defense: 14, Toughness: 7, Speed: 8,
			Weapons: []rules.Weapon{{Name: "Bow", Damage: 9, MookBonus: 2}},
		},
		{
			ID:   "char-bruiser",
			Name: "Big Bruiser",
			Type: rules.TypePC,
			ActionValues: map[string]int{
				"Martial Arts": 14,
			},
			Defense: 13, Toughness: 9, Speed: 6,
			Weapons: []rules.Weapon{{Name: "Fists", Damage: 10}},
		},
		{
			ID:   "char-lieutenant",
			Name: "Lieutenant Kan",
			Type: rules.TypeFeaturedFoe,
			ActionValues: map[string]int{
				"Guns": 14,
			},
			Defense: 13, Toughness: 6, Speed: 7,
			Weapons: []rules.Weapon{{Name: "Pistol", Damage: 10}},
		},
		{
			ID:   "char-thugs",
			Name: "Alley Thugs",
			Type: rules.TypeMook,
			ActionValues: map[string]int{
				"Guns": 9,
			},
			Defense: 13, Speed: 5, DefaultCount: 5,
			Weapons: []rules.Weapon{{Name: "SMG", Damage: 9}},
		},
	}
	for _, record := range roster {
		if err := dir.Put(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
