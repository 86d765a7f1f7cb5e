package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"flotta/api/internal/docstore"
)

// LifecycleStore persists the alert lifecycle state as one document in the
// shared store. Writes are last-write-wins; two admins acknowledging the
// same alert race benignly.
type LifecycleStore struct {
	store docstore.Store
}

func NewLifecycleStore(store docstore.Store) *LifecycleStore {
	return &LifecycleStore{store: store}
}

// Load reads the persisted state. A missing, malformed or future-versioned
// document degrades to a fresh empty state rather than failing the pass.
func (l *LifecycleStore) Load(ctx context.Context) State {
	raw, err := l.store.Get(ctx, docstore.KeyAlertsState)
	if err != nil {
		log.Printf("alerts: load state failed, starting empty: %v", err)
		return NewState()
	}
	if len(raw) == 0 {
		return NewState()
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Printf("alerts: malformed state document, starting empty: %v", err)
		return NewState()
	}
	if state.Version != StateVersion || state.Items == nil {
		return NewState()
	}
	return state
}

// Save writes the state back.
func (l *LifecycleStore) Save(ctx context.Context, state State) error {
	if err := l.store.Set(ctx, docstore.KeyAlertsState, state); err != nil {
		return fmt.Errorf("save alerts state: %w", err)
	}
	return nil
}
