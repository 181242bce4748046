// Package client keeps a local mirror of one fight for a connected
// session. The mirror holds the last authoritative snapshot plus the
// intents sent but not yet confirmed, so the UI can render predicted
// outcomes without waiting a round trip. The server always wins: every
// snapshot broadcast replaces the local state wholesale, and a reload
// frame invalidates it entirely until a resync lands.
package client

import (
	"errors"
	"sync"

	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/net/proto"
	"shotcounter/server/internal/shot"
)

// ErrNotJoined is returned when the replica is asked to act before the
// join response seeded it.
var ErrNotJoined = errors.New("client: replica not joined")

// Prediction is one intent awaiting server acknowledgement.
type Prediction struct {
	Seq    uint64
	Intent fight.Intent
}

// Replica mirrors one fight for a single client.
type Replica struct {
	mu       sync.Mutex
	clientID string
	fightID  string
	revision uint64
	snapshot fight.Snapshot
	pending  []Prediction
	nextSeq  uint64
	joined   bool
	stale    bool
}

// NewReplica builds an empty replica for the given client.
func NewReplica(clientID string) *Replica {
	return &Replica{clientID: clientID}
}

// ApplyJoin seeds the replica from the join response.
func (r *Replica) ApplyJoin(join proto.JoinResponseV1) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fightID = join.FightID
	r.revision = join.Revision
	r.snapshot = join.Snapshot
	r.pending = nil
	r.joined = true
	r.stale = false
}

// Predict registers an intent as sent and returns the sequence number to
// attach to the outgoing message.
func (r *Replica) Predict(intent fight.Intent) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.joined {
		return 0, ErrNotJoined
	}
	r.nextSeq++
	r.pending = append(r.pending, Prediction{Seq: r.nextSeq, Intent: intent})
	return r.nextSeq, nil
}

// ObserveAck confirms an intent. Acknowledged predictions and everything
// before them are dropped; the authoritative snapshot carrying their
// outcome arrives separately.
func (r *Replica) ObserveAck(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropThroughLocked(seq)
}

// ObserveReject rolls back a refused prediction.
func (r *Replica) ObserveReject(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.pending[:0]
	for _, prediction := range r.pending {
		if prediction.Seq != seq {
			kept = append(kept, prediction)
		}
	}
	r.pending = kept
}

func (r *Replica) dropThroughLocked(seq uint64) {
	kept := r.pending[:0]
	for _, prediction := range r.pending {
		if prediction.Seq > seq {
			kept = append(kept, prediction)
		}
	}
	r.pending = kept
}

// ObserveBroadcast folds a server frame into the replica. Snapshots
// replace local state wholesale; older revisions are ignored so late
// frames cannot roll the view backwards. A reload marks the replica
// stale until the next snapshot or resync.
func (r *Replica) ObserveBroadcast(msg proto.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.joined {
		return ErrNotJoined
	}
	if msg.FightID != r.fightID {
		return errors.New("client: broadcast for a different fight")
	}
	switch msg.Type {
	case proto.TypeSnapshot:
		if msg.Snapshot == nil {
			return errors.New("client: snapshot broadcast without snapshot")
		}
		if msg.Revision < r.revision {
			return nil
		}
		r.revision = msg.Revision
		r.snapshot = *msg.Snapshot
		r.stale = false
		return nil
	case proto.TypeReload:
		r.stale = true
		return nil
	default:
		return errors.New("client: unknown broadcast type " + msg.Type)
	}
}

// NeedsResync reports whether a reload invalidated the local copy.
func (r *Replica) NeedsResync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale
}

// Revision returns the authoritative revision currently mirrored.
func (r *Replica) Revision() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}

// Pending returns a copy of the unacknowledged predictions.
func (r *Replica) Pending() []Prediction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Prediction(nil), r.pending...)
}

// View renders the state the UI should draw: the authoritative snapshot
// with the cheap predictions layered on top. Only effects the client can
// compute without dice are predicted; attack outcomes wait for the
// server. A stale replica renders nothing predicted.
func (r *Replica) View() fight.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := cloneSnapshot(r.snapshot)
	if r.stale {
		return view
	}
	for _, prediction := range r.pending {
		overlayIntent(&view, prediction.Intent)
	}
	return view
}

func overlayIntent(view *fight.Snapshot, intent fight.Intent) {
	switch intent.Type {
	case fight.IntentMove:
		if intent.Move == nil {
			return
		}
		if combatant := findView(view, intent.Move.CombatantID); combatant != nil {
			combatant.Location = intent.Move.Location
		}
	case fight.IntentHeal:
		if intent.Heal == nil {
			return
		}
		if combatant := findView(view, intent.Heal.TargetID); combatant != nil {
			combatant.Wounds -= intent.Heal.Amount
			if combatant.Wounds < 0 {
				combatant.Wounds = 0
			}
		}
	case fight.IntentRemoveCombatant:
		if intent.RemoveCombatant == nil {
			return
		}
		if combatant := findView(view, intent.RemoveCombatant.CombatantID); combatant != nil {
			combatant.OutOfFight = true
			combatant.TrackState = fight.TrackRemoved
			combatant.CurrentShot = nil
		}
	}
}

func findView(view *fight.Snapshot, id string) *fight.CombatantView {
	for i := range view.Combatants {
		if view.Combatants[i].ID == id {
			return &view.Combatants[i]
		}
	}
	return nil
}

func cloneSnapshot(snapshot fight.Snapshot) fight.Snapshot {
	copied := snapshot
	copied.Shots = append([]shot.Slot(nil), snapshot.Shots...)
	copied.Combatants = make([]fight.CombatantView, len(snapshot.Combatants))
	for i, combatant := range snapshot.Combatants {
		view := combatant
		if combatant.ActionValues != nil {
			view.ActionValues = make(map[string]int, len(combatant.ActionValues))
			for k, v := range combatant.ActionValues {
				view.ActionValues[k] = v
			}
		}
		view.Weapons = append(view.Weapons[:0:0], combatant.Weapons...)
		if combatant.CurrentShot != nil {
			current := *combatant.CurrentShot
			view.CurrentShot = &current
		}
		copied.Combatants[i] = view
	}
	if snapshot.EndedAt != nil {
		ended := *snapshot.EndedAt
		copied.EndedAt = &ended
	}
	if snapshot.LastEvent != nil {
		last := *snapshot.LastEvent
		copied.LastEvent = &last
	}
	return copied
}
