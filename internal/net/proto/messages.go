package proto

import (
	"encoding/json"
	"fmt"

	"shotcounter/server/internal/fight"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for websocket payloads.
	typeIntentAck    = "intentAck"
	typeIntentReject = "intentReject"
	typeHeartbeat    = "heartbeat"
	typeSnapshot     = "snapshot"
	typeReload       = "reload"
)

// Client message type identifiers.
const (
	TypeIntent    = "intent"
	TypeHeartbeat = "heartbeat"
	TypeResync    = "resync"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeSnapshot = typeSnapshot
	TypeReload   = typeReload
)

// ClientMessage captures an inbound websocket message. Intent payloads are
// decoded downstream by the intake layer so malformed intents can be
// rejected with a structured reason instead of a closed connection.
type ClientMessage struct {
	Ver    int             `json:"ver,omitempty"`
	Type   string          `json:"type"`
	SentAt int64           `json:"sentAt,omitempty"`
	Seq    *uint64         `json:"seq,omitempty"`
	Intent json.RawMessage `json:"intent,omitempty"`

	// Revision addresses a resync at a specific journaled broadcast.
	// Absent, a resync returns the live snapshot.
	Revision *uint64 `json:"revision,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// IntentAck acknowledges an applied intent. Revision names the broadcast
// the intent's outcome first appears in.
type IntentAck struct {
	Seq      uint64
	Revision uint64
}

// EncodeIntentAck renders an intent acknowledgement response.
func EncodeIntentAck(msg IntentAck) ([]byte, error) {
	frame := struct {
		Ver      int    `json:"ver"`
		Type     string `json:"type"`
		Seq      uint64 `json:"seq"`
		Revision uint64 `json:"revision,omitempty"`
	}{
		Ver:  Version,
		Type: typeIntentAck,
		Seq:  msg.Seq,
	}
	if msg.Revision > 0 {
		frame.Revision = msg.Revision
	}
	return json.Marshal(frame)
}

// IntentReject notifies the client that an intent was refused.
type IntentReject struct {
	Seq      uint64
	Reason   string
	Message  string
	Retry    bool
	Revision uint64
}

// EncodeIntentReject renders an intent rejection response.
func EncodeIntentReject(msg IntentReject) ([]byte, error) {
	frame := struct {
		Ver      int    `json:"ver"`
		Type     string `json:"type"`
		Seq      uint64 `json:"seq"`
		Reason   string `json:"reason"`
		Message  string `json:"message,omitempty"`
		Retry    bool   `json:"retry,omitempty"`
		Revision uint64 `json:"revision,omitempty"`
	}{
		Ver:     Version,
		Type:    typeIntentReject,
		Seq:     msg.Seq,
		Reason:  msg.Reason,
		Message: msg.Message,
	}
	if msg.Retry {
		frame.Retry = true
	}
	if msg.Revision > 0 {
		frame.Revision = msg.Revision
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// Broadcast is the tagged server-to-client payload. A snapshot carries the
// full authoritative state; a reload tells the subscriber its copy is stale
// and it must re-fetch before trusting local predictions again.
type Broadcast struct {
	Ver        int             `json:"ver"`
	Type       string          `json:"type"`
	FightID    string          `json:"fightId"`
	Revision   uint64          `json:"revision"`
	ServerTime int64           `json:"serverTime,omitempty"`
	Snapshot   *fight.Snapshot `json:"snapshot,omitempty"`
	Dropped    uint64          `json:"dropped,omitempty"`
	Published  uint64          `json:"published,omitempty"`
}

// SnapshotBroadcast builds a snapshot frame.
func SnapshotBroadcast(fightID string, revision uint64, serverTime int64, snapshot fight.Snapshot) Broadcast {
	return Broadcast{
		Ver:        Version,
		Type:       typeSnapshot,
		FightID:    fightID,
		Revision:   revision,
		ServerTime: serverTime,
		Snapshot:   &snapshot,
	}
}

// ReloadBroadcast builds a reload frame.
func ReloadBroadcast(fightID string, revision uint64, dropped, published uint64) Broadcast {
	return Broadcast{
		Ver:       Version,
		Type:      typeReload,
		FightID:   fightID,
		Revision:  revision,
		Dropped:   dropped,
		Published: published,
	}
}

// EncodeBroadcast renders a broadcast frame.
func EncodeBroadcast(msg Broadcast) ([]byte, error) {
	if msg.Type != typeSnapshot && msg.Type != typeReload {
		return nil, fmt.Errorf("unknown broadcast type %q", msg.Type)
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

// DecodeBroadcast parses a broadcast frame and validates its tag.
func DecodeBroadcast(payload []byte) (Broadcast, error) {
	var msg Broadcast
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported broadcast version %d", msg.Ver)
	}
	switch msg.Type {
	case typeSnapshot:
		if msg.Snapshot == nil {
			return msg, fmt.Errorf("snapshot broadcast without snapshot")
		}
	case typeReload:
	default:
		return msg, fmt.Errorf("unknown broadcast type %q", msg.Type)
	}
	return msg, nil
}

// JoinResponseV1 is the first frame a subscriber receives. It carries the
// full snapshot so the client renders before any broadcast arrives.
type JoinResponseV1 struct {
	Ver        int            `json:"ver"`
	ClientID   string         `json:"clientId"`
	FightID    string         `json:"fightId"`
	Revision   uint64         `json:"revision"`
	ServerTime int64          `json:"serverTime"`
	Snapshot   fight.Snapshot `json:"snapshot"`
}

// EncodeJoinResponseV1 renders a versioned join response payload.
func EncodeJoinResponseV1(msg JoinResponseV1) ([]byte, error) {
	msg.Ver = Version
	return json.Marshal(msg)
}
