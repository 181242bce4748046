package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shotcounter/server/internal/fight"
)

// Memory is an in-process Store. It backs tests and single-node setups
// that do not need durability.
type Memory struct {
	mu         sync.RWMutex
	encounters map[string]EncounterRecord
	events     map[string][]fight.Event
}

func NewMemory() *Memory {
	return &Memory{
		encounters: make(map[string]EncounterRecord),
		events:     make(map[string][]fight.Event),
	}
}

func (m *Memory) SaveEncounter(_ context.Context, record EncounterRecord) error {
	if record.ID == "" {
		return fmt.Errorf("storage: encounter id required")
	}
	m.mu.Lock()
	record.Snapshot = append([]byte(nil), record.Snapshot...)
	m.encounters[record.ID] = record
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadEncounter(_ context.Context, id string) (EncounterRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.encounters[id]
	if !ok {
		return EncounterRecord{}, fmt.Errorf("load %q: %w", id, ErrNotFound)
	}
	record.Snapshot = append([]byte(nil), record.Snapshot...)
	return record, nil
}

func (m *Memory) ListEncounters(_ context.Context, activeOnly bool) ([]EncounterRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]EncounterRecord, 0, len(m.encounters))
	for _, record := range m.encounters {
		if activeOnly && !record.Active {
			continue
		}
		record.Snapshot = append([]byte(nil), record.Snapshot...)
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *Memory) AppendEvents(_ context.Context, fightID string, events []fight.Event) error {
	if fightID == "" {
		return fmt.Errorf("storage: fight id required")
	}
	if len(events) == 0 {
		return nil
	}
	m.mu.Lock()
	m.events[fightID] = append(m.events[fightID], events...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Events(_ context.Context, fightID string) ([]fight.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.events[fightID]
	events := make([]fight.Event, len(stored))
	copy(events, stored)
	return events, nil
}

func (m *Memory) Close() error {
	return nil
}
