// Package storage persists encounter state. The hub writes the new state
// before swapping it in, so a failed write never leaves clients ahead of
// the database.
package storage

import (
	"context"
	"errors"
	"time"

	"shotcounter/server/internal/fight"
)

var ErrNotFound = errors.New("storage: encounter not found")

// EncounterRecord is the persisted form of one fight. Snapshot holds the
// serialized canonical view; the event log is stored separately so the
// archive keeps full history.
type EncounterRecord struct {
	ID        string
	Name      string
	Active    bool
	Revision  uint64
	Snapshot  []byte
	UpdatedAt time.Time
}

// Store is the persistence boundary for fights.
type Store interface {
	SaveEncounter(ctx context.Context, record EncounterRecord) error
	LoadEncounter(ctx context.Context, id string) (EncounterRecord, error)
	ListEncounters(ctx context.Context, activeOnly bool) ([]EncounterRecord, error)
	AppendEvents(ctx context.Context, fightID string, events []fight.Event) error
	Events(ctx context.Context, fightID string) ([]fight.Event, error)
	Close() error
}
