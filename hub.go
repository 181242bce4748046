// Package server hosts the fight hub: the authoritative owner of every
// live encounter. Intents are applied one at a time per fight, the new
// state is persisted before it becomes visible, and every applied intent
// produces a full-snapshot broadcast to all subscribers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"shotcounter/server/internal/dice"
	"shotcounter/server/internal/directory"
	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/journal"
	"shotcounter/server/internal/net/proto"
	"shotcounter/server/internal/rules"
	"shotcounter/server/internal/storage"
	"shotcounter/server/internal/telemetry"
	"shotcounter/server/logging"
	logcombat "shotcounter/server/logging/combat"
	loglifecycle "shotcounter/server/logging/lifecycle"
	lognetwork "shotcounter/server/logging/network"
)

// HubConfig tunes the hub's buffering behaviour.
type HubConfig struct {
	// BroadcastBuffer is the per-subscriber outbound queue depth. A full
	// queue drops the frame and arms that subscriber's reload signal.
	BroadcastBuffer int
	// JournalCapacity bounds the per-fight broadcast history.
	JournalCapacity int
	// JournalMaxAge expires history entries by age.
	JournalMaxAge time.Duration
}

// DefaultHubConfig returns the production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BroadcastBuffer: 16,
		JournalCapacity: 64,
		JournalMaxAge:   10 * time.Minute,
	}
}

func (c HubConfig) normalized() HubConfig {
	if c.BroadcastBuffer <= 0 {
		c.BroadcastBuffer = 16
	}
	if c.JournalCapacity <= 0 {
		c.JournalCapacity = 64
	}
	return c
}

// HubDeps carries the collaborators the hub needs. Zero-value fields fall
// back to in-memory or no-op implementations.
type HubDeps struct {
	Store     storage.Store
	Directory directory.Directory
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Logger    telemetry.Logger
	Roller    *dice.Roller
	Clock     func() time.Time
}

// Hub owns all live fights and their subscribers.
type Hub struct {
	mu     sync.RWMutex
	fights map[string]*fightRuntime

	cfg       HubConfig
	store     storage.Store
	directory directory.Directory
	publisher logging.Publisher
	metrics   telemetry.Metrics
	logger    telemetry.Logger
	roller    *dice.Roller
	clock     func() time.Time

	nextFightID     atomic.Uint64
	nextCombatantID atomic.Uint64
}

type fightRuntime struct {
	mu          sync.Mutex
	encounter   *fight.Encounter
	revision    uint64
	journal     journal.Journal
	subscribers map[string]*subscriber
}

type subscriber struct {
	id     string
	out    chan proto.Broadcast
	policy *journal.Policy
	closed bool
}

// Subscription is the handle a session holds on a fight's broadcast stream.
// The handle identifies its own registration: unsubscribing through a stale
// handle never detaches a newer subscription under the same client id.
type Subscription struct {
	ClientID string
	FightID  string
	Revision uint64
	Snapshot fight.Snapshot
	C        <-chan proto.Broadcast

	owner *subscriber
}

// NewHub builds a hub around the provided collaborators.
func NewHub(cfg HubConfig, deps HubDeps) *Hub {
	if deps.Store == nil {
		deps.Store = storage.NewMemory()
	}
	if deps.Directory == nil {
		deps.Directory = directory.NewMemory()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Roller == nil {
		deps.Roller = dice.NewRoller()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(nil)
	}
	return &Hub{
		fights:    make(map[string]*fightRuntime),
		cfg:       cfg.normalized(),
		store:     deps.Store,
		directory: deps.Directory,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		roller:    deps.Roller,
		clock:     deps.Clock,
	}
}

// Directory exposes the character directory for intake wiring.
func (h *Hub) Directory() directory.Directory {
	return h.directory
}

// CreateFight opens a new encounter and persists its opening state.
func (h *Hub) CreateFight(ctx context.Context, name string) (fight.Snapshot, error) {
	if name == "" {
		name = "Untitled Fight"
	}
	id := fmt.Sprintf("fight-%d", h.nextFightID.Add(1))
	now := h.clock()
	encounter := fight.NewEncounter(id, name, now)

	if err := h.persist(ctx, encounter, 1, nil); err != nil {
		return fight.Snapshot{}, err
	}

	runtime := &fightRuntime{
		encounter:   encounter,
		revision:    1,
		journal:     journal.New(h.cfg.JournalCapacity, h.cfg.JournalMaxAge),
		subscribers: make(map[string]*subscriber),
	}
	runtime.journal.AttachTelemetry(h)
	h.mu.Lock()
	h.fights[id] = runtime
	h.mu.Unlock()

	loglifecycle.FightCreated(ctx, h.publisher, 1, id, loglifecycle.FightCreatedPayload{Name: name}, nil)
	h.addMetric("fights_created_total", 1)
	h.logger.Printf("fight %s created (%s)", id, name)
	return encounter.Snapshot(), nil
}

// ResolveCharacter materializes a directory record into a fresh combatant
// instance. Used by the intake layer for add-combatant intents.
func (h *Hub) ResolveCharacter(ctx context.Context, characterID string) (fight.Combatant, error) {
	record, err := h.directory.Lookup(ctx, characterID)
	if err != nil {
		return fight.Combatant{}, err
	}
	instanceID := fmt.Sprintf("c-%d", h.nextCombatantID.Add(1))
	return record.Combatant(instanceID), nil
}

// SubmitIntent applies one intent to a fight. The sequence is strict:
// enrich, apply on a clone, persist, swap, broadcast. A failure at any step
// before the swap leaves the authoritative state untouched.
func (h *Hub) SubmitIntent(ctx context.Context, fightID string, intent fight.Intent) (uint64, error) {
	runtime, err := h.runtime(fightID)
	if err != nil {
		return 0, err
	}

	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	now := h.clock()
	h.enrichIntent(runtime.encounter, &intent)

	next, events, err := runtime.encounter.Apply(intent, now)
	if err != nil {
		h.logRejection(ctx, runtime, fightID, intent, err)
		return 0, err
	}

	revision := runtime.revision + 1
	if err := h.persist(ctx, next, revision, events); err != nil {
		h.addMetric("persist_failures_total", 1)
		h.logger.Printf("fight %s: persist failed, state not advanced: %v", fightID, err)
		return 0, err
	}

	runtime.encounter = next
	runtime.revision = revision
	h.addMetric("intents_applied_total", 1)

	h.publishLocked(ctx, fightID, runtime)
	h.logApplied(ctx, fightID, revision, next, intent, events)
	return revision, nil
}

// Subscribe attaches a client to a fight's broadcast stream. The returned
// subscription carries the current snapshot so the session can render
// before the first broadcast.
func (h *Hub) Subscribe(ctx context.Context, fightID, clientID string) (*Subscription, error) {
	runtime, err := h.runtime(fightID)
	if err != nil {
		return nil, err
	}

	runtime.mu.Lock()
	if existing, ok := runtime.subscribers[clientID]; ok && !existing.closed {
		existing.closed = true
		close(existing.out)
	}
	sub := &subscriber{
		id:     clientID,
		out:    make(chan proto.Broadcast, h.cfg.BroadcastBuffer),
		policy: journal.NewPolicy(),
	}
	runtime.subscribers[clientID] = sub
	snapshot := runtime.encounter.Snapshot()
	revision := runtime.revision
	count := len(runtime.subscribers)
	runtime.mu.Unlock()

	lognetwork.ClientSubscribed(ctx, h.publisher, revision, fightID,
		logging.EntityRef{ID: clientID, Kind: logging.EntityKindClient},
		lognetwork.SubscriptionPayload{Subscribers: count}, nil)
	h.storeMetric("subscribers_"+fightID, uint64(count))

	return &Subscription{
		ClientID: clientID,
		FightID:  fightID,
		Revision: revision,
		Snapshot: snapshot,
		C:        sub.out,
		owner:    sub,
	}, nil
}

// Unsubscribe detaches one subscription and closes its stream. A handle
// whose registration was already replaced by a reconnect is a no-op, so a
// stale session tearing down cannot detach the fresh one.
func (h *Hub) Unsubscribe(ctx context.Context, sub *Subscription, reason string) {
	if sub == nil || sub.owner == nil {
		return
	}
	runtime, err := h.runtime(sub.FightID)
	if err != nil {
		return
	}
	runtime.mu.Lock()
	current, ok := runtime.subscribers[sub.ClientID]
	removed := ok && current == sub.owner
	if removed {
		delete(runtime.subscribers, sub.ClientID)
		if !current.closed {
			current.closed = true
			close(current.out)
		}
	}
	revision := runtime.revision
	count := len(runtime.subscribers)
	runtime.mu.Unlock()
	if !removed {
		return
	}

	lognetwork.ClientDisconnected(ctx, h.publisher, revision, sub.FightID,
		logging.EntityRef{ID: sub.ClientID, Kind: logging.EntityKindClient},
		lognetwork.DisconnectPayload{Reason: reason}, nil)
	h.storeMetric("subscribers_"+sub.FightID, uint64(count))
}

// RecordBroadcastDrop implements journal.Telemetry: each drop reason the
// journal observes lands in the metrics under its own counter.
func (h *Hub) RecordBroadcastDrop(metric string) {
	h.addMetric(metric+"_total", 1)
}

// JournalFrame returns the encoded broadcast recorded for a revision, if it
// is still inside the retention window. Sessions use it to answer
// revision-addressed resync requests without re-encoding state.
func (h *Hub) JournalFrame(fightID string, revision uint64) ([]byte, bool) {
	runtime, err := h.runtime(fightID)
	if err != nil {
		return nil, false
	}
	runtime.mu.Lock()
	record, ok := runtime.journal.RecordByRevision(revision)
	runtime.mu.Unlock()
	if !ok {
		return nil, false
	}
	return record.Payload, true
}

// CurrentSnapshot returns the authoritative snapshot and its revision.
func (h *Hub) CurrentSnapshot(fightID string) (fight.Snapshot, uint64, error) {
	runtime, err := h.runtime(fightID)
	if err != nil {
		return fight.Snapshot{}, 0, err
	}
	runtime.mu.Lock()
	defer runtime.mu.Unlock()
	return runtime.encounter.Snapshot(), runtime.revision, nil
}

// Events returns the persisted event log for a fight.
func (h *Hub) Events(ctx context.Context, fightID string) ([]fight.Event, error) {
	if _, err := h.runtime(fightID); err != nil {
		if _, loadErr := h.store.LoadEncounter(ctx, fightID); loadErr != nil {
			return nil, err
		}
	}
	return h.store.Events(ctx, fightID)
}

// Fights lists the snapshots of all hosted fights, active first.
func (h *Hub) Fights() []fight.Snapshot {
	h.mu.RLock()
	runtimes := make([]*fightRuntime, 0, len(h.fights))
	for _, runtime := range h.fights {
		runtimes = append(runtimes, runtime)
	}
	h.mu.RUnlock()

	snapshots := make([]fight.Snapshot, 0, len(runtimes))
	for _, runtime := range runtimes {
		runtime.mu.Lock()
		snapshots = append(snapshots, runtime.encounter.Snapshot())
		runtime.mu.Unlock()
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Active != snapshots[j].Active {
			return snapshots[i].Active
		}
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

// FightDiagnostics describes one fight's runtime health.
type FightDiagnostics struct {
	FightID        string `json:"fightId"`
	Active         bool   `json:"active"`
	Revision       uint64 `json:"revision"`
	Subscribers    int    `json:"subscribers"`
	PendingReloads int    `json:"pendingReloads"`
	JournalSize    int    `json:"journalSize"`
	JournalOldest  uint64 `json:"journalOldest"`
	JournalNewest  uint64 `json:"journalNewest"`
}

// Diagnostics reports per-fight runtime health for the diagnostics endpoint.
func (h *Hub) Diagnostics() []FightDiagnostics {
	h.mu.RLock()
	ids := make([]string, 0, len(h.fights))
	for id := range h.fights {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)

	reports := make([]FightDiagnostics, 0, len(ids))
	for _, id := range ids {
		runtime, err := h.runtime(id)
		if err != nil {
			continue
		}
		runtime.mu.Lock()
		report := FightDiagnostics{
			FightID:     id,
			Active:      runtime.encounter.Active,
			Revision:    runtime.revision,
			Subscribers: len(runtime.subscribers),
		}
		for _, sub := range runtime.subscribers {
			if sub.policy.Pending() {
				report.PendingReloads++
			}
		}
		report.JournalSize, report.JournalOldest, report.JournalNewest = runtime.journal.Window()
		runtime.mu.Unlock()
		reports = append(reports, report)
	}
	return reports
}

func (h *Hub) runtime(fightID string) (*fightRuntime, error) {
	h.mu.RLock()
	runtime, ok := h.fights[fightID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fight %q: %w", fightID, storage.ErrNotFound)
	}
	return runtime, nil
}

// enrichIntent fills in the rolls the client left to the server: the attack
// swerve and per-combatant initiatives for a new sequence.
func (h *Hub) enrichIntent(encounter *fight.Encounter, intent *fight.Intent) {
	switch intent.Type {
	case fight.IntentAttack:
		if intent.Attack != nil && intent.Attack.Swerve == nil {
			roll := h.roller.Swerve()
			intent.Attack.Swerve = &rules.Swerve{Value: roll.Value, Boxcars: roll.Boxcars}
			h.addMetric("server_swerves_total", 1)
		}
	case fight.IntentAdvanceSequence:
		if intent.AdvanceSequence == nil {
			intent.AdvanceSequence = &fight.AdvanceSequenceIntent{}
		}
		if len(intent.AdvanceSequence.Initiatives) == 0 {
			initiatives := make(map[string]int)
			for _, slot := range encounter.Snapshot().Shots {
				combatant, ok := encounter.Combatant(slot.CombatantID)
				if !ok {
					continue
				}
				initiatives[slot.CombatantID] = h.roller.Initiative() + combatant.Speed
			}
			intent.AdvanceSequence.Initiatives = initiatives
		}
	}
}

func (h *Hub) persist(ctx context.Context, encounter *fight.Encounter, revision uint64, events []fight.Event) error {
	snapshot := encounter.Snapshot()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	record := storage.EncounterRecord{
		ID:        encounter.ID,
		Name:      encounter.Name,
		Active:    encounter.Active,
		Revision:  revision,
		Snapshot:  payload,
		UpdatedAt: encounter.UpdatedAt,
	}
	if err := h.store.SaveEncounter(ctx, record); err != nil {
		return err
	}
	return h.store.AppendEvents(ctx, encounter.ID, events)
}

// publishLocked fans the new snapshot out to every subscriber. The caller
// holds runtime.mu. A subscriber with an armed reload signal gets a reload
// frame instead of the snapshot until it re-fetches.
func (h *Hub) publishLocked(ctx context.Context, fightID string, runtime *fightRuntime) {
	snapshot := runtime.encounter.Snapshot()
	serverTime := h.clock().UnixMilli()
	frame := proto.SnapshotBroadcast(fightID, runtime.revision, serverTime, snapshot)

	if payload, err := json.Marshal(frame); err == nil {
		runtime.journal.RecordBroadcast(journal.Record{
			Revision:   runtime.revision,
			FightID:    fightID,
			Payload:    payload,
			RecordedAt: h.clock(),
		})
	} else {
		runtime.journal.NoteDrop(journal.MetricEncodeError)
	}

	for _, sub := range runtime.subscribers {
		if sub.closed {
			continue
		}
		if sub.policy.Pending() {
			h.sendReloadLocked(ctx, fightID, runtime, sub)
			continue
		}
		select {
		case sub.out <- frame:
			sub.policy.NotePublish()
		default:
			sub.policy.NoteDrop(journal.MetricQueueFull, runtime.revision)
			runtime.journal.NoteDrop(journal.MetricQueueFull)
			h.addMetric("broadcast_drops_total", 1)
		}
	}
}

func (h *Hub) sendReloadLocked(ctx context.Context, fightID string, runtime *fightRuntime, sub *subscriber) {
	signal, ok := sub.policy.Consume()
	if !ok {
		return
	}
	frame := proto.ReloadBroadcast(fightID, runtime.revision, signal.Dropped, signal.Published)
	select {
	case sub.out <- frame:
		lognetwork.ReloadSignalled(ctx, h.publisher, runtime.revision, fightID,
			logging.EntityRef{ID: sub.id, Kind: logging.EntityKindClient},
			lognetwork.ReloadPayload{Dropped: signal.Dropped, Published: signal.Published}, nil)
		h.addMetric("reload_signals_total", 1)
	default:
		// Still wedged. Re-arm so the next publish retries.
		sub.policy.NoteDrop(journal.MetricSlowConsumer, runtime.revision)
		runtime.journal.NoteDrop(journal.MetricSlowConsumer)
	}
}

func (h *Hub) logApplied(ctx context.Context, fightID string, revision uint64, encounter *fight.Encounter, intent fight.Intent, events []fight.Event) {
	h.logSecondaryEvents(ctx, fightID, revision, encounter, intent, events)
	switch intent.Type {
	case fight.IntentAttack:
		if intent.Attack == nil {
			return
		}
		actor := logging.EntityRef{ID: intent.Attack.AttackerID, Kind: logging.EntityKindCombatant}
		targets := make([]logging.EntityRef, 0, len(intent.Attack.TargetIDs))
		for _, id := range intent.Attack.TargetIDs {
			targets = append(targets, logging.EntityRef{ID: id, Kind: logging.EntityKindCombatant})
		}
		payload := logcombat.AttackResolvedPayload{Skill: intent.Attack.Skill, Weapon: intent.Attack.WeaponName}
		for _, event := range events {
			if event.Type != fight.EventAttack {
				continue
			}
			if event.Swerve != nil {
				payload.Swerve = *event.Swerve
			}
			payload.Boxcars = event.Boxcars
			payload.Wounds = event.Wounds
			payload.Kills = event.Kills
		}
		logcombat.AttackResolved(ctx, h.publisher, revision, fightID, actor, targets, payload, nil)
	case fight.IntentAdvanceSequence:
		for _, event := range events {
			if event.Type == fight.EventSequence {
				loglifecycle.SequenceAdvanced(ctx, h.publisher, revision, fightID,
					loglifecycle.SequenceAdvancedPayload{Sequence: event.Sequence}, nil)
			}
		}
	case fight.IntentAddCombatant:
		if intent.AddCombatant == nil {
			return
		}
		combatant := intent.AddCombatant.Combatant
		initiative := combatant.Speed
		if intent.AddCombatant.Initiative != nil {
			initiative = *intent.AddCombatant.Initiative
		}
		loglifecycle.CombatantJoined(ctx, h.publisher, revision, fightID,
			logging.EntityRef{ID: combatant.ID, Kind: logging.EntityKindCombatant},
			loglifecycle.CombatantJoinedPayload{Name: combatant.Name, Type: string(combatant.Type), Initiative: initiative}, nil)
	case fight.IntentRemoveCombatant:
		if intent.RemoveCombatant == nil {
			return
		}
		loglifecycle.CombatantLeft(ctx, h.publisher, revision, fightID,
			logging.EntityRef{ID: intent.RemoveCombatant.CombatantID, Kind: logging.EntityKindCombatant},
			loglifecycle.CombatantLeftPayload{Reason: intent.RemoveCombatant.Reason}, nil)
	case fight.IntentEndFight:
		for _, event := range events {
			if event.Type == fight.EventEnded {
				loglifecycle.FightEnded(ctx, h.publisher, revision, fightID,
					loglifecycle.FightEndedPayload{Sequence: event.Sequence, EventCount: event.Seq + 1}, nil)
			}
		}
	}
}

// logSecondaryEvents publishes the threshold, up-check and taken-out
// entries an intent produced alongside its primary event.
func (h *Hub) logSecondaryEvents(ctx context.Context, fightID string, revision uint64, encounter *fight.Encounter, intent fight.Intent, events []fight.Event) {
	for _, event := range events {
		switch event.Type {
		case fight.EventWoundThreshold:
			payload := logcombat.WoundThresholdPayload{}
			if combatant, ok := encounter.Combatant(event.ActorID); ok {
				payload.Wounds = combatant.Wounds
				if threshold, known := rules.WoundThreshold(combatant.Type); known {
					payload.Threshold = threshold.Wounds
					payload.UpCheck = threshold.UpCheck
				}
			}
			logcombat.WoundThreshold(ctx, h.publisher, revision, fightID,
				logging.EntityRef{ID: event.ActorID, Kind: logging.EntityKindCombatant}, payload, nil)
		case fight.EventUpCheck:
			payload := logcombat.UpCheckPayload{Succeeded: true}
			for _, other := range events {
				if other.Type == fight.EventOutOfFight && other.ActorID == event.ActorID {
					payload.Succeeded = false
				}
			}
			if combatant, ok := encounter.Combatant(event.ActorID); ok {
				payload.Wounds = combatant.Wounds
			}
			logcombat.UpCheck(ctx, h.publisher, revision, fightID,
				logging.EntityRef{ID: event.ActorID, Kind: logging.EntityKindCombatant}, payload, nil)
		case fight.EventOutOfFight:
			payload := logcombat.TakenOutPayload{Reason: event.Description}
			if combatant, ok := encounter.Combatant(event.ActorID); ok {
				payload.Wounds = combatant.Wounds
			}
			logcombat.TakenOut(ctx, h.publisher, revision, fightID,
				logging.EntityRef{ID: intent.ActorID, Kind: logging.EntityKindClient},
				logging.EntityRef{ID: event.ActorID, Kind: logging.EntityKindCombatant}, payload, nil)
		}
	}
}

func (h *Hub) logRejection(ctx context.Context, runtime *fightRuntime, fightID string, intent fight.Intent, err error) {
	h.addMetric("intents_rejected_total", 1)
	rejection, ok := fight.AsRejection(err)
	if !ok {
		h.logger.Printf("fight %s: intent %s failed: %v", fightID, intent.Type, err)
		return
	}
	lognetwork.IntentRejected(ctx, h.publisher, runtime.revision, fightID,
		logging.EntityRef{ID: intent.ActorID, Kind: logging.EntityKindClient},
		lognetwork.RejectionPayload{Reason: string(rejection.Reason), Message: rejection.Message}, nil)
}

func (h *Hub) addMetric(key string, delta uint64) {
	if h.metrics == nil {
		return
	}
	h.metrics.Add(key, delta)
}

func (h *Hub) storeMetric(key string, value uint64) {
	if h.metrics == nil {
		return
	}
	h.metrics.Store(key, value)
}
