package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"flotta/api/internal/alerts"
	"flotta/api/internal/config"
	"flotta/api/internal/docstore"
	"flotta/api/internal/normalize"
)

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]any
	failing map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]any), failing: make(map[string]bool)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if f.failing[key] {
		return nil, errors.New("store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.docs[key]
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value any) error {
	// Round-trip through JSON like the real store would.
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var back any
	if err := json.Unmarshal(raw, &back); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = back
	return nil
}

const testNow = int64(1_700_000_000_000)

func newTestService(store docstore.Store) *Service {
	s := New(config.Load(), store, normalize.NewRegistry())
	s.now = func() time.Time { return time.UnixMilli(testNow) }
	return s
}

func seedTimelineData(t *testing.T, store *fakeStore) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(store.Set(ctx, docstore.KeySessions, []normalize.Record{
		{"id": "s1", "badge": "7", "autista": "Mario Rossi", "motrice": "AA111BB", "inizio": testNow - 3*alerts.DayMillis},
	}))
	must(store.Set(ctx, docstore.KeyHistory, []normalize.Record{
		{"id": "h1", "badge": "7", "motrice": "CC222DD", "dataEvento": testNow - alerts.DayMillis},
	}))
	must(store.Set(ctx, docstore.KeyReports, []normalize.Record{
		{"id": "r1", "autista": "Mario Rossi", "targa": "AA111BB", "stato": "nuova", "timestamp": testNow - 2*alerts.DayMillis, "tipoProblema": "freni"},
	}))
}

func TestTimelineEndToEnd(t *testing.T) {
	store := newFakeStore()
	seedTimelineData(t, store)
	svc := newTestService(store)

	view, err := svc.Timeline(context.Background(), "7")
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if view.DisplayName != "Mario Rossi" {
		t.Errorf("display name = %q", view.DisplayName)
	}
	if len(view.Events) != 3 {
		t.Fatalf("expected 3 events (hookup, report, history), got %d", len(view.Events))
	}
	// Descending order: history, report, hookup.
	if view.Events[0].ID != "storico_operativo:h1" {
		t.Errorf("newest first, got %s", view.Events[0].ID)
	}
	// The deriver carries the hookup's tractor into the history event.
	if view.Events[0].BeforeMotrice != "AA111BB" || view.Events[0].AfterMotrice != "CC222DD" {
		t.Errorf("derived coupling wrong: %+v", view.Events[0])
	}
	// The name-only report attaches weakly.
	if view.Events[1].ID != "segnalazioni:r1" || view.Events[1].Match != "WEAK" {
		t.Errorf("unexpected middle event %+v", view.Events[1])
	}
}

func TestTimelineUnavailableSourceDegrades(t *testing.T) {
	store := newFakeStore()
	seedTimelineData(t, store)
	store.failing[docstore.KeyReports] = true
	svc := newTestService(store)

	view, err := svc.Timeline(context.Background(), "7")
	if err != nil {
		t.Fatalf("Timeline must not fail on one bad source: %v", err)
	}
	if len(view.Events) != 2 {
		t.Errorf("expected partial result without reports, got %d events", len(view.Events))
	}
}

func TestTimelineRequiresBadge(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.Timeline(context.Background(), "  ")
	var domain *DomainError
	if !errors.As(err, &domain) || domain.Status != 400 {
		t.Errorf("expected 400 domain error, got %v", err)
	}
}

func TestSearchDrivers(t *testing.T) {
	store := newFakeStore()
	seedTimelineData(t, store)
	svc := newTestService(store)

	matches, err := svc.SearchDrivers(context.Background(), "Mario Rossi")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Badge != "7" {
		t.Errorf("unexpected matches %+v", matches)
	}
}

func seedAlertData(t *testing.T, store *fakeStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.Set(ctx, docstore.KeyVehicles, []normalize.Record{
		{"targa": "AB123CD", "scadenzaRevisione": testNow + 10*alerts.DayMillis},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestAlertsAckLifecycle(t *testing.T) {
	store := newFakeStore()
	seedAlertData(t, store)
	svc := newTestService(store)
	ctx := context.Background()

	view, err := svc.Alerts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Alerts) != 1 || view.Alerts[0].ID != "scadenza:AB123CD" {
		t.Fatalf("expected one deadline alert, got %+v", view.Alerts)
	}

	if err := svc.AlertAction(ctx, "scadenza:AB123CD", "ack"); err != nil {
		t.Fatalf("ack failed: %v", err)
	}

	view, err = svc.Alerts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Alerts) != 0 || view.Suppressed != 1 {
		t.Errorf("acknowledged alert should be suppressed, got %+v", view)
	}

	// Moving the deadline invalidates the acknowledgement.
	if err := store.Set(ctx, docstore.KeyVehicles, []normalize.Record{
		{"targa": "AB123CD", "scadenzaRevisione": testNow + 20*alerts.DayMillis},
	}); err != nil {
		t.Fatal(err)
	}
	view, err = svc.Alerts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Alerts) != 1 {
		t.Errorf("edited deadline must resurface, got %+v", view)
	}
}

func TestAlertActionUnknownAlert(t *testing.T) {
	svc := newTestService(newFakeStore())
	err := svc.AlertAction(context.Background(), "scadenza:ZZ999ZZ", "ack")
	var domain *DomainError
	if !errors.As(err, &domain) || domain.Status != 404 {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestRefreshVisibilityDoesNotWrite(t *testing.T) {
	store := newFakeStore()
	seedAlertData(t, store)
	svc := newTestService(store)
	ctx := context.Background()

	svc.RefreshVisibility(ctx)
	store.mu.Lock()
	_, wrote := store.docs[docstore.KeyAlertsState]
	store.mu.Unlock()
	if wrote {
		t.Error("the periodic tick must never persist state")
	}
}
