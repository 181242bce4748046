package shot

import (
	"errors"
	"testing"
)

func TestNextPrefersHighestShot(t *testing.T) {
	tracker := NewTracker()
	if err := tracker.Add("a", 7, 10); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := tracker.Add("b", 5, 12); err != nil {
		t.Fatalf("add b: %v", err)
	}
	next, ok := tracker.Next()
	if !ok || next != "b" {
		t.Fatalf("expected b to act, got %q ok=%v", next, ok)
	}
}

func TestTieBreakSpeedThenJoinOrder(t *testing.T) {
	tracker := NewTracker()
	if err := tracker.Add("a", 8, 10); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := tracker.Add("b", 6, 10); err != nil {
		t.Fatalf("add b: %v", err)
	}
	// Same shot, higher Speed acts first.
	next, _ := tracker.Next()
	if next != "a" {
		t.Fatalf("expected a (faster) first, got %q", next)
	}

	// A spends 3 shots; B at 10 is next while A sits at 7.
	newShot, err := tracker.SpendShots("a", 3, false)
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if newShot != 7 {
		t.Fatalf("expected a at shot 7, got %d", newShot)
	}
	next, _ = tracker.Next()
	if next != "b" {
		t.Fatalf("expected b next, got %q", next)
	}

	// Equal shot and Speed falls back to join order, repeatably.
	if err := tracker.Add("c", 6, 10); err != nil {
		t.Fatalf("add c: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, _ = tracker.Next()
		if next != "b" {
			t.Fatalf("iteration %d: expected join order to break the tie, got %q", i, next)
		}
	}
}

func TestNegativeShotsAndClampOptIn(t *testing.T) {
	tracker := NewTracker()
	if err := tracker.Add("a", 5, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	newShot, err := tracker.SpendShots("a", 5, false)
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if newShot != -3 {
		t.Fatalf("expected raw -3, got %d", newShot)
	}
	if err := tracker.SetShot("a", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	newShot, err = tracker.SpendShots("a", 4, true)
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if newShot != 0 {
		t.Fatalf("expected clamp to zero, got %d", newShot)
	}
}

func TestSingleActiveSlotInvariant(t *testing.T) {
	tracker := NewTracker()
	if err := tracker.Add("a", 5, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tracker.Add("a", 5, 12); !errors.Is(err, ErrAlreadyTracked) {
		t.Fatalf("expected duplicate slot rejection, got %v", err)
	}
	if err := tracker.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if state := tracker.State("a"); state != StateRemoved {
		t.Fatalf("expected removed state, got %v", state)
	}
	// Re-joining after removal is a fresh slot.
	if err := tracker.Add("a", 5, 6); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if state := tracker.State("a"); state != StateActive {
		t.Fatalf("expected active state, got %v", state)
	}
}

func TestRemoveUnknown(t *testing.T) {
	tracker := NewTracker()
	if err := tracker.Remove("ghost"); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected not-tracked error, got %v", err)
	}
	if _, err := tracker.SpendShots("ghost", 3, false); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected not-tracked error, got %v", err)
	}
}

func TestAdvanceSequence(t *testing.T) {
	tracker := NewTracker()
	if tracker.Sequence() != 1 {
		t.Fatalf("expected opening sequence 1, got %d", tracker.Sequence())
	}
	if err := tracker.Add("a", 7, 0); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := tracker.Add("b", 5, -2); err != nil {
		t.Fatalf("add b: %v", err)
	}
	seq := tracker.AdvanceSequence(map[string]int{"a": 11, "b": 8})
	if seq != 2 {
		t.Fatalf("expected sequence 2, got %d", seq)
	}
	if shot, _ := tracker.Shot("a"); shot != 11 {
		t.Fatalf("expected a at 11, got %d", shot)
	}
	if shot, _ := tracker.Shot("b"); shot != 8 {
		t.Fatalf("expected b at 8, got %d", shot)
	}
	// Combatants without a rolled value keep their current shot.
	tracker.AdvanceSequence(map[string]int{"a": 9})
	if shot, _ := tracker.Shot("b"); shot != 8 {
		t.Fatalf("expected b untouched, got %d", shot)
	}
}

func TestSlotsOrdered(t *testing.T) {
	tracker := NewTracker()
	_ = tracker.Add("slow", 4, 6)
	_ = tracker.Add("fast", 9, 6)
	_ = tracker.Add("top", 5, 14)
	slots := tracker.Slots()
	want := []string{"top", "fast", "slow"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %+v", len(want), slots)
	}
	for i, id := range want {
		if slots[i].CombatantID != id {
			t.Fatalf("slot %d: expected %s, got %+v", i, id, slots)
		}
	}
}
