package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"shotcounter/server"
	"shotcounter/server/internal/dice"
	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/net/proto"
	"shotcounter/server/internal/rules"
)

type fakeConn struct {
	reads  chan []byte
	writes chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case payload, ok := <-c.reads:
		if !ok {
			return 0, nil, errors.New("client hung up")
		}
		return 1, payload, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case c.writes <- buf:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, raw string) {
	t.Helper()
	select {
	case c.reads <- []byte(raw):
	case <-time.After(time.Second):
		t.Fatalf("session never read %q", raw)
	}
}

// recvFrame blocks for the next outbound payload and returns its wire type
// along with the raw bytes.
func (c *fakeConn) recvFrame(t *testing.T) (string, []byte) {
	t.Helper()
	select {
	case payload := <-c.writes:
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &head); err != nil {
			t.Fatalf("unparseable frame %s: %v", payload, err)
		}
		return head.Type, payload
	case <-time.After(time.Second):
		t.Fatalf("no frame arrived")
		return "", nil
	}
}

// recvFrameOfType skips interleaved frames (acks race broadcasts) until one
// of the wanted type arrives.
func (c *fakeConn) recvFrameOfType(t *testing.T, wanted string) []byte {
	t.Helper()
	for i := 0; i < 8; i++ {
		frameType, payload := c.recvFrame(t)
		if frameType == wanted {
			return payload
		}
	}
	t.Fatalf("no %s frame within 8 frames", wanted)
	return nil
}

type sessionFixture struct {
	hub     *server.Hub
	fightID string
	conn    *fakeConn
	done    chan struct{}
}

func startSession(t *testing.T) *sessionFixture {
	t.Helper()
	hub := server.NewHub(server.DefaultHubConfig(), server.HubDeps{
		Roller: dice.NewRollerFromSource(rand.NewSource(1)),
		Clock:  func() time.Time { return time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC) },
	})
	created, err := hub.CreateFight(context.Background(), "Dockside Brawl")
	if err != nil {
		t.Fatalf("create fight: %v", err)
	}
	if _, err := hub.SubmitIntent(context.Background(), created.ID, fight.Intent{
		Type: fight.IntentAddCombatant,
		AddCombatant: &fight.AddCombatantIntent{
			Combatant: fight.Combatant{
				ID:           "hero",
				CharacterID:  "char-hero",
				Name:         "Hero",
				Type:         rules.TypePC,
				ActionValues: map[string]int{"Guns": 15},
				Defense:      14,
				Toughness:    7,
				Speed:        8,
				Weapons:      []rules.Weapon{{Name: "Pistol", Damage: 9}},
			},
			Initiative: intPtr(12),
		},
	}); err != nil {
		t.Fatalf("seed hero: %v", err)
	}

	conn := newFakeConn()
	done := make(chan struct{})
	handler := NewHandler(hub, nil)
	go func() {
		defer close(done)
		handler.Serve(context.Background(), created.ID, "client-1", conn)
	}()

	fx := &sessionFixture{hub: hub, fightID: created.ID, conn: conn, done: done}
	t.Cleanup(func() {
		conn.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("session did not stop")
		}
	})
	return fx
}

func intPtr(v int) *int { return &v }

func (fx *sessionFixture) joinResponse(t *testing.T) proto.JoinResponseV1 {
	t.Helper()
	_, payload := fx.conn.recvFrame(t)
	var join proto.JoinResponseV1
	if err := json.Unmarshal(payload, &join); err != nil {
		t.Fatalf("decode join: %v", err)
	}
	return join
}

func TestServeSendsJoinThenBroadcasts(t *testing.T) {
	fx := startSession(t)

	join := fx.joinResponse(t)
	if join.ClientID != "client-1" || join.FightID != fx.fightID {
		t.Fatalf("unexpected join response: %+v", join)
	}
	if len(join.Snapshot.Combatants) != 1 {
		t.Fatalf("join snapshot missing combatants: %+v", join.Snapshot)
	}

	fx.conn.send(t, `{"ver":1,"type":"intent","seq":1,"intent":{"type":"move","move":{"combatantId":"hero","location":"catwalk"}}}`)

	ackPayload := fx.conn.recvFrameOfType(t, "intentAck")
	var ack struct {
		Seq      uint64 `json:"seq"`
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal(ackPayload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Seq != 1 || ack.Revision != join.Revision+1 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	framePayload := fx.conn.recvFrameOfType(t, proto.TypeSnapshot)
	frame, err := proto.DecodeBroadcast(framePayload)
	if err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if frame.Revision != join.Revision+1 {
		t.Fatalf("unexpected broadcast revision: %d", frame.Revision)
	}
	if frame.Snapshot.Combatants[0].Location != "catwalk" {
		t.Fatalf("move not reflected: %+v", frame.Snapshot.Combatants[0])
	}
}

func TestDuplicateSeqIsNotReapplied(t *testing.T) {
	fx := startSession(t)
	fx.joinResponse(t)

	raw := `{"ver":1,"type":"intent","seq":1,"intent":{"type":"move","move":{"combatantId":"hero","location":"catwalk"}}}`
	fx.conn.send(t, raw)
	fx.conn.recvFrameOfType(t, "intentAck")

	events, err := fx.hub.Events(context.Background(), fx.fightID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	applied := len(events)

	fx.conn.send(t, raw)
	ackPayload := fx.conn.recvFrameOfType(t, "intentAck")
	var ack struct {
		Seq      uint64 `json:"seq"`
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal(ackPayload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Seq != 1 || ack.Revision != 0 {
		t.Fatalf("duplicate ack should carry no revision: %+v", ack)
	}

	events, err = fx.hub.Events(context.Background(), fx.fightID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != applied {
		t.Fatalf("duplicate intent was applied: %d -> %d events", applied, len(events))
	}
}

func TestRejectedIntentProducesRejectFrame(t *testing.T) {
	fx := startSession(t)
	fx.joinResponse(t)

	fx.conn.send(t, `{"ver":1,"type":"intent","seq":1,"intent":{"type":"heal","heal":{"targetId":"ghost","amount":5}}}`)

	payload := fx.conn.recvFrameOfType(t, "intentReject")
	var reject struct {
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &reject); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if reject.Seq != 1 || reject.Reason != string(fight.RejectUnknownCombatant) {
		t.Fatalf("unexpected reject: %+v", reject)
	}

	fx.conn.send(t, `{"ver":1,"type":"intent","seq":2,"intent":{"type":"move","move":{"combatantId":"hero","location":"bar"}}}`)
	fx.conn.recvFrameOfType(t, "intentAck")
}

func TestHeartbeatEchoesClientTime(t *testing.T) {
	fx := startSession(t)
	fx.joinResponse(t)

	sent := time.Date(2024, 5, 10, 18, 59, 59, 0, time.UTC).UnixMilli()
	fx.conn.send(t, fmt.Sprintf(`{"ver":1,"type":"heartbeat","sentAt":%d}`, sent))

	payload := fx.conn.recvFrameOfType(t, "heartbeat")
	var beat struct {
		ServerTime int64 `json:"serverTime"`
		ClientTime int64 `json:"clientTime"`
		RTT        int64 `json:"rtt"`
	}
	if err := json.Unmarshal(payload, &beat); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if beat.ClientTime != sent {
		t.Fatalf("client time not echoed: %+v", beat)
	}
	if beat.RTT != beat.ServerTime-sent {
		t.Fatalf("unexpected rtt: %+v", beat)
	}
}

func TestResyncReturnsCurrentSnapshot(t *testing.T) {
	fx := startSession(t)
	join := fx.joinResponse(t)

	if _, err := fx.hub.SubmitIntent(context.Background(), fx.fightID, fight.Intent{
		Type: fight.IntentMove,
		Move: &fight.MoveIntent{CombatantID: "hero", Location: "rooftop"},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	fx.conn.recvFrameOfType(t, proto.TypeSnapshot)

	fx.conn.send(t, `{"ver":1,"type":"resync"}`)
	payload := fx.conn.recvFrameOfType(t, proto.TypeSnapshot)
	frame, err := proto.DecodeBroadcast(payload)
	if err != nil {
		t.Fatalf("decode resync frame: %v", err)
	}
	if frame.Revision != join.Revision+1 {
		t.Fatalf("resync revision %d, want %d", frame.Revision, join.Revision+1)
	}
	if frame.Snapshot.Combatants[0].Location != "rooftop" {
		t.Fatalf("resync snapshot stale: %+v", frame.Snapshot.Combatants[0])
	}
}

func TestIntentThrottleRejectsBursts(t *testing.T) {
	hub := server.NewHub(server.DefaultHubConfig(), server.HubDeps{})
	created, err := hub.CreateFight(context.Background(), "Back Alley")
	if err != nil {
		t.Fatalf("create fight: %v", err)
	}

	conn := newFakeConn()
	handler := NewHandler(hub, nil)
	handler.SetIntentInterval(time.Hour)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Serve(context.Background(), created.ID, "client-1", conn)
	}()
	defer func() {
		conn.Close()
		<-done
	}()
	conn.recvFrame(t)

	conn.send(t, `{"ver":1,"type":"intent","seq":1,"intent":{"type":"advance_sequence"}}`)
	conn.recvFrameOfType(t, "intentAck")

	conn.send(t, `{"ver":1,"type":"intent","seq":2,"intent":{"type":"advance_sequence"}}`)
	payload := conn.recvFrameOfType(t, "intentReject")
	var reject struct {
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry"`
	}
	if err := json.Unmarshal(payload, &reject); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if reject.Seq != 2 || reject.Reason != ReasonRateLimited || !reject.Retry {
		t.Fatalf("unexpected reject: %+v", reject)
	}
}

func TestReconnectReplacesStaleSession(t *testing.T) {
	fx := startSession(t)
	fx.joinResponse(t)

	// Second connection under the same client id. Subscribing closes the
	// stale stream, which tears the first session down; that teardown must
	// leave the replacement registration alone.
	conn2 := newFakeConn()
	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		NewHandler(fx.hub, nil).Serve(context.Background(), fx.fightID, "client-1", conn2)
	}()
	t.Cleanup(func() {
		conn2.Close()
		select {
		case <-done2:
		case <-time.After(time.Second):
			t.Errorf("second session did not stop")
		}
	})

	_, joinPayload := conn2.recvFrame(t)
	var join proto.JoinResponseV1
	if err := json.Unmarshal(joinPayload, &join); err != nil {
		t.Fatalf("decode join: %v", err)
	}

	select {
	case <-fx.done:
	case <-time.After(time.Second):
		t.Fatalf("stale session did not tear down")
	}

	revision, err := fx.hub.SubmitIntent(context.Background(), fx.fightID, fight.Intent{
		Type: fight.IntentMove,
		Move: &fight.MoveIntent{CombatantID: "hero", Location: "catwalk"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	framePayload := conn2.recvFrameOfType(t, proto.TypeSnapshot)
	frame, err := proto.DecodeBroadcast(framePayload)
	if err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if frame.Revision != revision || frame.Snapshot.Combatants[0].Location != "catwalk" {
		t.Fatalf("reconnected session missed the broadcast: %+v", frame)
	}
}

func TestResyncAtRevisionServesJournaledFrame(t *testing.T) {
	fx := startSession(t)
	join := fx.joinResponse(t)

	if _, err := fx.hub.SubmitIntent(context.Background(), fx.fightID, fight.Intent{
		Type: fight.IntentMove,
		Move: &fight.MoveIntent{CombatantID: "hero", Location: "rooftop"},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	fx.conn.recvFrameOfType(t, proto.TypeSnapshot)

	fx.conn.send(t, fmt.Sprintf(`{"ver":1,"type":"resync","revision":%d}`, join.Revision))
	payload := fx.conn.recvFrameOfType(t, proto.TypeSnapshot)
	frame, err := proto.DecodeBroadcast(payload)
	if err != nil {
		t.Fatalf("decode journaled frame: %v", err)
	}
	if frame.Revision != join.Revision {
		t.Fatalf("expected journaled revision %d, got %d", join.Revision, frame.Revision)
	}
	if frame.Snapshot.Combatants[0].Location == "rooftop" {
		t.Fatalf("journaled frame should predate the move: %+v", frame.Snapshot.Combatants[0])
	}

	// A revision outside the retention window falls back to live state.
	fx.conn.send(t, `{"ver":1,"type":"resync","revision":999}`)
	payload = fx.conn.recvFrameOfType(t, proto.TypeSnapshot)
	frame, err = proto.DecodeBroadcast(payload)
	if err != nil {
		t.Fatalf("decode fallback frame: %v", err)
	}
	if frame.Revision != join.Revision+1 || frame.Snapshot.Combatants[0].Location != "rooftop" {
		t.Fatalf("fallback should serve the live snapshot: %+v", frame)
	}
}

func TestRemovedCombatantRejectSignalsRetry(t *testing.T) {
	fx := startSession(t)
	fx.joinResponse(t)

	if _, err := fx.hub.SubmitIntent(context.Background(), fx.fightID, fight.Intent{
		Type:            fight.IntentRemoveCombatant,
		RemoveCombatant: &fight.RemoveCombatantIntent{CombatantID: "hero"},
	}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	fx.conn.send(t, `{"ver":1,"type":"intent","seq":1,"intent":{"type":"heal","heal":{"targetId":"hero","amount":3}}}`)
	payload := fx.conn.recvFrameOfType(t, "intentReject")
	var reject struct {
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry"`
	}
	if err := json.Unmarshal(payload, &reject); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if reject.Reason != string(fight.RejectCombatantRemoved) || !reject.Retry {
		t.Fatalf("expected retryable combatant_removed reject: %+v", reject)
	}
}

func TestServeRefusesUnknownFight(t *testing.T) {
	hub := server.NewHub(server.DefaultHubConfig(), server.HubDeps{})
	conn := newFakeConn()
	NewHandler(hub, nil).Serve(context.Background(), "fight-missing", "client-1", conn)
	select {
	case <-conn.closed:
	default:
		t.Fatalf("connection left open for unknown fight")
	}
}
