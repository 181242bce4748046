package logging_test

import (
	"context"
	"testing"
	"time"

	"shotcounter/server/logging"
	"shotcounter/server/logging/sinks"
)

func waitForEvents(t *testing.T, sink *sinks.MemorySink, want int) []logging.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := sink.Events()
		if len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", want, len(sink.Events()))
	return nil
}

func TestRouterForwardsToSinks(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	router, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	router.Publish(context.Background(), logging.Event{
		Type:     "combat.attack_resolved",
		Revision: 3,
		FightID:  "fight-1",
		Actor:    logging.EntityRef{ID: "hero", Kind: logging.EntityKindCombatant},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
	})

	events := waitForEvents(t, sink, 1)
	if events[0].Type != "combat.attack_resolved" || events[0].FightID != "fight-1" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].Time.IsZero() {
		t.Fatalf("expected router to stamp event time")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "network.client_subscribed", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "network.reload_signalled", Severity: logging.SeverityWarn})

	events := waitForEvents(t, sink, 1)
	for _, event := range events {
		if event.Severity < logging.SeverityWarn {
			t.Fatalf("severity filter let through %+v", event)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRouterAppliesConfiguredFields(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	cfg.Fields = map[string]any{"node": "test-node"}
	router, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	router.Publish(context.Background(), logging.Event{Type: "lifecycle.fight_created", Severity: logging.SeverityInfo})

	events := waitForEvents(t, sink, 1)
	if events[0].Extra["node"] != "test-node" {
		t.Fatalf("expected configured field on event, got %+v", events[0].Extra)
	}
}

func TestMetricsCounters(t *testing.T) {
	metrics := logging.Metrics{}
	metrics.TelemetryAdd("intents_total", 2)
	metrics.TelemetryAdd("intents_total", 1)
	metrics.TelemetryStore("subscribers", 4)

	snapshot := metrics.Snapshot()
	if snapshot["intents_total"] != 3 || snapshot["subscribers"] != 4 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	var nilMetrics *logging.Metrics
	nilMetrics.TelemetryAdd("ignored", 1)
	if nilMetrics.Snapshot() != nil {
		t.Fatalf("nil metrics should snapshot nil")
	}
}
