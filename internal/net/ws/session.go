// Package ws runs one websocket session per subscriber: join snapshot
// first, then broadcast frames from the hub, with intents, heartbeats and
// resync requests flowing the other way.
package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shotcounter/server"
	"shotcounter/server/internal/fight"
	"shotcounter/server/internal/net/intake"
	"shotcounter/server/internal/net/proto"
)

// Conn is the subset of *websocket.Conn the session touches. Tests drive
// sessions through in-memory implementations.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ReasonRateLimited marks intents arriving faster than the configured
// per-session interval. Clients should retry after backing off.
const ReasonRateLimited = "rate_limited"

// Handler coordinates websocket sessions against the hub.
type Handler struct {
	hub         *server.Hub
	logger      *log.Logger
	now         func() time.Time
	minInterval time.Duration
}

// NewHandler constructs a session handler for the given hub.
func NewHandler(hub *server.Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{hub: hub, logger: logger, now: time.Now}
}

// SetIntentInterval enforces a minimum spacing between intents per
// session. Zero disables the throttle.
func (h *Handler) SetIntentInterval(interval time.Duration) {
	h.minInterval = interval
}

type session struct {
	handler    *Handler
	fightID    string
	clientID   string
	conn       Conn
	sub        *server.Subscription
	writeMu    sync.Mutex
	lastSeq    uint64
	lastIntent time.Time
	closed     sync.Once
}

// Serve runs the session until the connection drops or the fight vanishes.
func (h *Handler) Serve(ctx context.Context, fightID, clientID string, conn Conn) {
	if h == nil || h.hub == nil || conn == nil {
		return
	}

	sub, err := h.hub.Subscribe(ctx, fightID, clientID)
	if err != nil {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown fight")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	s := &session{handler: h, fightID: fightID, clientID: clientID, conn: conn, sub: sub}

	join := proto.JoinResponseV1{
		ClientID:   clientID,
		FightID:    fightID,
		Revision:   sub.Revision,
		ServerTime: h.now().UnixMilli(),
		Snapshot:   sub.Snapshot,
	}
	payload, err := proto.EncodeJoinResponseV1(join)
	if err != nil {
		h.logger.Printf("failed to encode join response for %s: %v", clientID, err)
		s.teardown(ctx, "join encode failed")
		return
	}
	if !s.write(ctx, payload) {
		return
	}

	go s.forwardBroadcasts(ctx, sub)
	s.readLoop(ctx)
}

// forwardBroadcasts drains the hub's stream into the socket. A closed
// stream means the hub dropped us; a write error means the socket died.
func (s *session) forwardBroadcasts(ctx context.Context, sub *server.Subscription) {
	for frame := range sub.C {
		payload, err := proto.EncodeBroadcast(frame)
		if err != nil {
			s.handler.logger.Printf("failed to encode broadcast for %s: %v", s.clientID, err)
			continue
		}
		if !s.write(ctx, payload) {
			return
		}
	}
	s.teardown(ctx, "stream closed")
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.teardown(ctx, "read error")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			s.handler.logger.Printf("discarding malformed message from %s: %v", s.clientID, err)
			continue
		}

		switch msg.Type {
		case proto.TypeIntent:
			if !s.handleIntent(ctx, msg) {
				return
			}
		case proto.TypeHeartbeat:
			if !s.handleHeartbeat(ctx, msg) {
				return
			}
		case proto.TypeResync:
			if !s.handleResync(ctx, msg) {
				return
			}
		default:
			s.handler.logger.Printf("unknown message type %q from %s", msg.Type, s.clientID)
		}
	}
}

// handleIntent stages one intent. Sequence numbers deduplicate retries: a
// seq at or below the last acknowledged one gets a duplicate ack and no
// second application.
func (s *session) handleIntent(ctx context.Context, msg proto.ClientMessage) bool {
	seq := uint64(0)
	if msg.Seq != nil {
		seq = *msg.Seq
	}
	if seq > 0 && seq <= s.lastSeq {
		return s.writeAck(ctx, proto.IntentAck{Seq: seq})
	}

	now := s.handler.now()
	if interval := s.handler.minInterval; interval > 0 && !s.lastIntent.IsZero() && now.Sub(s.lastIntent) < interval {
		if seq == 0 {
			return true
		}
		payload, err := proto.EncodeIntentReject(proto.IntentReject{
			Seq:     seq,
			Reason:  ReasonRateLimited,
			Message: "intents arriving too fast",
			Retry:   true,
		})
		if err != nil {
			s.handler.logger.Printf("failed to encode reject for %s: %v", s.clientID, err)
			return true
		}
		return s.write(ctx, payload)
	}
	s.lastIntent = now

	intentCtx := intake.IntentContext{
		ResolveCharacter: func(id string) (fight.Combatant, error) {
			return s.handler.hub.ResolveCharacter(ctx, id)
		},
		Submit: func(intent fight.Intent) (uint64, error) {
			return s.handler.hub.SubmitIntent(ctx, s.fightID, intent)
		},
		Now: s.handler.now,
	}

	revision, ok, reason, message := intake.StageClientIntent(intentCtx, s.clientID, msg)
	if !ok {
		if seq == 0 {
			return true
		}
		payload, err := proto.EncodeIntentReject(proto.IntentReject{
			Seq:     seq,
			Reason:  reason,
			Message: message,
			Retry:   reason == string(fight.RejectCombatantRemoved),
		})
		if err != nil {
			s.handler.logger.Printf("failed to encode reject for %s: %v", s.clientID, err)
			return true
		}
		return s.write(ctx, payload)
	}

	if seq > 0 {
		s.lastSeq = seq
		return s.writeAck(ctx, proto.IntentAck{Seq: seq, Revision: revision})
	}
	return true
}

func (s *session) writeAck(ctx context.Context, ack proto.IntentAck) bool {
	payload, err := proto.EncodeIntentAck(ack)
	if err != nil {
		s.handler.logger.Printf("failed to encode ack for %s: %v", s.clientID, err)
		return true
	}
	return s.write(ctx, payload)
}

func (s *session) handleHeartbeat(ctx context.Context, msg proto.ClientMessage) bool {
	now := s.handler.now()
	rtt := int64(0)
	if msg.SentAt > 0 {
		rtt = now.UnixMilli() - msg.SentAt
		if rtt < 0 {
			rtt = 0
		}
	}
	payload, err := proto.EncodeHeartbeat(proto.Heartbeat{
		ServerTime: now.UnixMilli(),
		ClientTime: msg.SentAt,
		RTTMillis:  rtt,
	})
	if err != nil {
		s.handler.logger.Printf("failed to encode heartbeat for %s: %v", s.clientID, err)
		return true
	}
	return s.write(ctx, payload)
}

// handleResync sends the current authoritative snapshot directly. Clients
// call this after a reload frame told them their copy is stale. A request
// naming a revision is served from the broadcast journal when that revision
// is still retained; otherwise it falls back to the live snapshot.
func (s *session) handleResync(ctx context.Context, msg proto.ClientMessage) bool {
	if msg.Revision != nil && *msg.Revision > 0 {
		if payload, ok := s.handler.hub.JournalFrame(s.fightID, *msg.Revision); ok {
			return s.write(ctx, payload)
		}
	}
	snapshot, revision, err := s.handler.hub.CurrentSnapshot(s.fightID)
	if err != nil {
		s.teardown(ctx, "fight gone")
		return false
	}
	frame := proto.SnapshotBroadcast(s.fightID, revision, s.handler.now().UnixMilli(), snapshot)
	payload, err := proto.EncodeBroadcast(frame)
	if err != nil {
		s.handler.logger.Printf("failed to encode resync for %s: %v", s.clientID, err)
		return true
	}
	return s.write(ctx, payload)
}

func (s *session) write(ctx context.Context, payload []byte) bool {
	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.TextMessage, payload)
	s.writeMu.Unlock()
	if err != nil {
		s.teardown(ctx, "write error")
		return false
	}
	return true
}

func (s *session) teardown(ctx context.Context, reason string) {
	s.closed.Do(func() {
		s.handler.hub.Unsubscribe(ctx, s.sub, reason)
		s.conn.Close()
	})
}
