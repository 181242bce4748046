package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"shotcounter/server/internal/fight"
)

// SQL is a Store backed by database/sql. The postgres and sqlite3 drivers
// are both supported; the placeholder style is chosen by driver name.
type SQL struct {
	db       *sql.DB
	driver   string
	rebinder func(string) string
}

// OpenSQL opens the database and ensures the schema exists.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	store := &SQL{db: db, driver: driver, rebinder: rebinderFor(driver)}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func rebinderFor(driver string) func(string) string {
	if driver != "postgres" {
		return func(query string) string { return query }
	}
	return func(query string) string {
		var sb strings.Builder
		n := 0
		for _, r := range query {
			if r == '?' {
				n++
				sb.WriteByte('$')
				sb.WriteString(strconv.Itoa(n))
				continue
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
}

func (s *SQL) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS encounters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			revision BIGINT NOT NULL,
			snapshot TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fight_events (
			fight_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (fight_id, seq)
		)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQL) SaveEncounter(ctx context.Context, record EncounterRecord) error {
	if record.ID == "" {
		return errors.New("storage: encounter id required")
	}
	query := s.rebinder(`INSERT INTO encounters (id, name, active, revision, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			revision = excluded.revision,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Name, record.Active, int64(record.Revision),
		string(record.Snapshot), record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save encounter %q: %w", record.ID, err)
	}
	return nil
}

func (s *SQL) LoadEncounter(ctx context.Context, id string) (EncounterRecord, error) {
	query := s.rebinder(`SELECT id, name, active, revision, snapshot, updated_at FROM encounters WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, query, id)
	var record EncounterRecord
	var revision int64
	var snapshot string
	err := row.Scan(&record.ID, &record.Name, &record.Active, &revision, &snapshot, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EncounterRecord{}, fmt.Errorf("load %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return EncounterRecord{}, fmt.Errorf("load encounter %q: %w", id, err)
	}
	record.Revision = uint64(revision)
	record.Snapshot = []byte(snapshot)
	return record, nil
}

func (s *SQL) ListEncounters(ctx context.Context, activeOnly bool) ([]EncounterRecord, error) {
	query := `SELECT id, name, active, revision, snapshot, updated_at FROM encounters`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var records []EncounterRecord
	for rows.Next() {
		var record EncounterRecord
		var revision int64
		var snapshot string
		if err := rows.Scan(&record.ID, &record.Name, &record.Active, &revision, &snapshot, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		record.Revision = uint64(revision)
		record.Snapshot = []byte(snapshot)
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQL) AppendEvents(ctx context.Context, fightID string, events []fight.Event) error {
	if fightID == "" {
		return errors.New("storage: fight id required")
	}
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	query := s.rebinder(`INSERT INTO fight_events (fight_id, seq, payload) VALUES (?, ?, ?)
		ON CONFLICT (fight_id, seq) DO NOTHING`)
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode event %d: %w", event.Seq, err)
		}
		if _, err := tx.ExecContext(ctx, query, fightID, event.Seq, string(payload)); err != nil {
			tx.Rollback()
			return fmt.Errorf("append event %d: %w", event.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) Events(ctx context.Context, fightID string) ([]fight.Event, error) {
	query := s.rebinder(`SELECT payload FROM fight_events WHERE fight_id = ? ORDER BY seq`)
	rows, err := s.db.QueryContext(ctx, query, fightID)
	if err != nil {
		return nil, fmt.Errorf("events %q: %w", fightID, err)
	}
	defer rows.Close()

	var events []fight.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event fight.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *SQL) Close() error {
	return s.db.Close()
}
