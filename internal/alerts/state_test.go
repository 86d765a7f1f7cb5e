package alerts

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"flotta/api/internal/docstore"
)

func TestSnoozeArithmetic(t *testing.T) {
	cand := Candidate{ID: "scadenza:AB123CD", Meta: Meta{Type: "scadenza", Ref: "abc"}}
	state, err := ApplyAction(NewState(), cand.ID, cand.Meta, ActionSnooze1d, now)
	if err != nil {
		t.Fatal(err)
	}

	item := state.Items[cand.ID]
	if item.SnoozeUntil != now+86_400_000 {
		t.Fatalf("snoozeUntil = %d, want now+86400000", item.SnoozeUntil)
	}
	if item.LastShownAt != now {
		t.Errorf("lastShownAt = %d, want now", item.LastShownAt)
	}

	if !Hidden(state, cand, now) {
		t.Error("hidden at T")
	}
	if !Hidden(state, cand, now+86_400_000-1) {
		t.Error("hidden just before expiry")
	}
	if Hidden(state, cand, now+86_400_000) {
		t.Error("visible again exactly at expiry")
	}
}

func TestSnooze3d(t *testing.T) {
	state, err := ApplyAction(NewState(), "x", Meta{}, ActionSnooze3d, now)
	if err != nil {
		t.Fatal(err)
	}
	if got := state.Items["x"].SnoozeUntil; got != now+3*DayMillis {
		t.Errorf("snoozeUntil = %d, want now+3d", got)
	}
}

func TestApplyActionUnknown(t *testing.T) {
	if _, err := ApplyAction(NewState(), "x", Meta{}, "snooze_7d", now); err == nil {
		t.Error("unknown action must error")
	}
}

func TestApplyActionIsPure(t *testing.T) {
	before := NewState()
	_, err := ApplyAction(before, "x", Meta{}, ActionAck, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(before.Items) != 0 {
		t.Error("input state must not be mutated")
	}
}

func TestAckHidesUntilMetaChanges(t *testing.T) {
	cand := Candidate{ID: "segnalazione:r1", Meta: Meta{Type: "segnalazione", Ref: "v1"}}
	state, err := ApplyAction(NewState(), cand.ID, cand.Meta, ActionAck, now)
	if err != nil {
		t.Fatal(err)
	}
	if !Hidden(state, cand, now+365*DayMillis) {
		t.Error("ack has no expiry while meta is unchanged")
	}

	edited := cand
	edited.Meta.Ref = "v2"
	if Hidden(state, edited, now) {
		t.Error("changed fingerprint must not stay hidden")
	}
}

func TestReconcileDropsChangedMeta(t *testing.T) {
	cand := Candidate{ID: "a", Meta: Meta{Type: "scadenza", Ref: "v1"}}
	state, _ := ApplyAction(NewState(), cand.ID, cand.Meta, ActionAck, now)

	edited := cand
	edited.Meta.Ref = "v2"
	got := Reconcile(state, []Candidate{edited}, now)
	if _, ok := got.Items[cand.ID]; ok {
		t.Error("item with stale fingerprint must be dropped")
	}

	// Unchanged meta survives.
	got = Reconcile(state, []Candidate{cand}, now)
	if _, ok := got.Items[cand.ID]; !ok {
		t.Error("item with matching fingerprint must be kept")
	}
}

func TestReconcilePrunesOldItems(t *testing.T) {
	old := now - 91*DayMillis
	state := NewState()
	state.Items["gone"] = StateItem{AckAt: old, SnoozeUntil: old, LastShownAt: old, Meta: Meta{Type: "scadenza", Ref: "x"}}
	state.Items["fresh"] = StateItem{AckAt: now - DayMillis, LastShownAt: now - DayMillis, Meta: Meta{Type: "scadenza", Ref: "y"}}

	got := Reconcile(state, nil, now)
	if _, ok := got.Items["gone"]; ok {
		t.Error("91-day-old absent item must be pruned")
	}
	if _, ok := got.Items["fresh"]; !ok {
		t.Error("recent item must survive even when absent from candidates")
	}
}

func TestReconcileKeepsRecentAbsentItems(t *testing.T) {
	state := NewState()
	state.Items["away"] = StateItem{AckAt: now - DayMillis, LastShownAt: now - DayMillis, Meta: Meta{Type: "conflict", Ref: "z"}}
	got := Reconcile(state, []Candidate{}, now)
	if _, ok := got.Items["away"]; !ok {
		t.Error("recently shown item must not be pruned just for being absent")
	}
}

func TestVisibleFiltersInOrder(t *testing.T) {
	a := Candidate{ID: "a", Meta: Meta{Ref: "1"}}
	b := Candidate{ID: "b", Meta: Meta{Ref: "2"}}
	state, _ := ApplyAction(NewState(), "a", a.Meta, ActionAck, now)

	got := Visible(state, []Candidate{a, b}, now)
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("expected only b visible, got %+v", got)
	}
}

func TestLifecycleStoreRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := docstore.NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ls := NewLifecycleStore(store)

	// Missing document degrades to empty state.
	if got := ls.Load(ctx); len(got.Items) != 0 || got.Version != StateVersion {
		t.Fatalf("expected fresh state, got %+v", got)
	}

	state, _ := ApplyAction(NewState(), "a", Meta{Type: "scadenza", Ref: "v1"}, ActionAck, now)
	if err := ls.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := ls.Load(ctx)
	if got.Items["a"].AckAt != now {
		t.Errorf("round trip lost ackAt, got %+v", got.Items["a"])
	}
}

func TestLifecycleStoreMalformedDocument(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := docstore.NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, docstore.KeyAlertsState, map[string]any{"version": 99}); err != nil {
		t.Fatal(err)
	}
	if got := NewLifecycleStore(store).Load(ctx); len(got.Items) != 0 || got.Version != StateVersion {
		t.Errorf("future version must degrade to fresh state, got %+v", got)
	}
}
