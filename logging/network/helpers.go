package network

import (
	"context"

	"shotcounter/server/logging"
)

const (
	// EventClientSubscribed is emitted when a client attaches to a fight.
	EventClientSubscribed logging.EventType = "network.client_subscribed"
	// EventClientDisconnected is emitted when a client detaches.
	EventClientDisconnected logging.EventType = "network.client_disconnected"
	// EventReloadSignalled is emitted when a stale client is told to re-fetch.
	EventReloadSignalled logging.EventType = "network.reload_signalled"
	// EventIntentRejected is emitted when a submitted intent is refused.
	EventIntentRejected logging.EventType = "network.intent_rejected"
)

// SubscriptionPayload captures the subscriber handshake details.
type SubscriptionPayload struct {
	Subscribers int `json:"subscribers"`
}

// DisconnectPayload captures the reason a client detached.
type DisconnectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ReloadPayload captures the drop accounting behind a reload signal.
type ReloadPayload struct {
	Dropped   uint64 `json:"dropped"`
	Published uint64 `json:"published"`
}

// RejectionPayload captures a refused intent.
type RejectionPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// ClientSubscribed publishes a subscriber attach event.
func ClientSubscribed(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload SubscriptionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventClientSubscribed,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ClientDisconnected publishes a subscriber detach event.
func ClientDisconnected(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload DisconnectPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventClientDisconnected,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ReloadSignalled publishes a warning that a subscriber fell behind.
func ReloadSignalled(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload ReloadPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventReloadSignalled,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// IntentRejected publishes a refused intent.
func IntentRejected(ctx context.Context, pub logging.Publisher, revision uint64, fightID string, actor logging.EntityRef, payload RejectionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventIntentRejected,
		Revision: revision,
		FightID:  fightID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
