package normalize

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Schema is the priority-ordered candidate paths for each canonical field of
// one source collection. First usable value wins; order is the contract.
type Schema struct {
	Timestamp    []string `yaml:"timestamp"`
	EndTimestamp []string `yaml:"endTimestamp,omitempty"`
	Plate        []string `yaml:"plate"`
	Motrice      []string `yaml:"motrice,omitempty"`
	Rimorchio    []string `yaml:"rimorchio,omitempty"`
	Badge        []string `yaml:"badge"`
	Name         []string `yaml:"name"`
}

var defaultTimestamp = []string{"timestamp", "ts", "data", "dataOra", "createdAt", "updatedAt"}
var defaultBadge = []string{"badge", "tessera", "badgeAutista"}
var defaultName = []string{"autista", "nomeAutista", "conducente", "nome"}

// defaultSchemas covers every source collection the core reads. Overridable
// from a YAML file so a drifted field name does not need a redeploy.
var defaultSchemas = map[string]Schema{
	"agganci_attivi": {
		Timestamp:    []string{"inizio", "dataOra", "timestamp", "ts", "createdAt"},
		EndTimestamp: []string{"fine", "sgancio", "fineDataOra"},
		Plate:        []string{"motrice", "camion", "targaMotrice", "targa", "rimorchio", "targaRimorchio"},
		Motrice:      []string{"motrice", "camion", "targaMotrice"},
		Rimorchio:    []string{"rimorchio", "targaRimorchio"},
		Badge:        defaultBadge,
		Name:         defaultName,
	},
	"segnalazioni": {
		Timestamp: defaultTimestamp,
		Plate:     []string{"targa", "mezzo", "camion", "motrice"},
		Motrice:   []string{"motrice", "camion"},
		Rimorchio: []string{"rimorchio"},
		Badge:     defaultBadge,
		Name:      defaultName,
	},
	"controlli_mezzi": {
		Timestamp: []string{"dataControllo", "data", "timestamp", "ts", "createdAt"},
		Plate:     []string{"targa", "mezzo", "motrice"},
		Badge:     defaultBadge,
		Name:      defaultName,
	},
	"rifornimenti": {
		Timestamp: []string{"dataRifornimento", "data", "timestamp", "ts", "createdAt"},
		Plate:     []string{"targa", "mezzo", "camion"},
		Badge:     defaultBadge,
		Name:      defaultName,
	},
	"richieste_materiale": {
		Timestamp: defaultTimestamp,
		Plate:     []string{"targa", "mezzo"},
		Badge:     defaultBadge,
		Name:      []string{"richiedente", "autista", "nome"},
	},
	"cambi_gomme_bozze": {
		Timestamp: defaultTimestamp,
		Plate:     []string{"targa", "mezzo", "motrice", "rimorchio"},
		Badge:     defaultBadge,
		Name:      defaultName,
	},
	"cambi_gomme": {
		Timestamp: defaultTimestamp,
		Plate:     []string{"targa", "mezzo", "motrice", "rimorchio"},
		Badge:     defaultBadge,
		Name:      defaultName,
	},
	"mezzi": {
		Timestamp: []string{"immatricolazione", "dataImmatricolazione", "createdAt"},
		Plate:     []string{"targa"},
		Badge:     nil,
		Name:      []string{"descrizione", "modello"},
	},
	"storico_operativo": {
		Timestamp: []string{"dataEvento", "data", "timestamp", "ts", "createdAt"},
		Plate: []string{
			"targa", "camion", "motrice",
			"prima.motrice", "dopo.motrice",
			"rimorchio", "prima.rimorchio", "dopo.rimorchio",
		},
		Motrice:   []string{"motrice", "camion", "dopo.motrice"},
		Rimorchio: []string{"rimorchio", "dopo.rimorchio"},
		Badge:     defaultBadge,
		Name:      defaultName,
	},
}

// Registry resolves the schema for a source collection, with optional YAML
// overrides hot-reloaded on file change.
type Registry struct {
	mu        sync.RWMutex
	overrides map[string]Schema
	watcher   *fsnotify.Watcher
	path      string
}

// NewRegistry returns a registry serving the built-in schemas.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewRegistryFromFile loads overrides from a YAML file mapping collection key
// to schema. Missing keys fall back to the built-ins.
func NewRegistryFromFile(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read schemas file: %w", err)
	}
	overrides := make(map[string]Schema)
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("parse schemas file %s: %w", r.path, err)
	}
	r.mu.Lock()
	r.overrides = overrides
	r.mu.Unlock()
	return nil
}

// Schema returns the schema for a collection key. Unknown keys get a generic
// schema built from the default chains.
func (r *Registry) Schema(key string) Schema {
	r.mu.RLock()
	if sc, ok := r.overrides[key]; ok {
		r.mu.RUnlock()
		return sc
	}
	r.mu.RUnlock()
	if sc, ok := defaultSchemas[key]; ok {
		return sc
	}
	return Schema{
		Timestamp: defaultTimestamp,
		Plate:     []string{"targa", "mezzo", "camion", "motrice", "rimorchio"},
		Badge:     defaultBadge,
		Name:      defaultName,
	}
}

// Watch hot-reloads the overrides file on change. A failed reload keeps the
// previous overrides. Call the returned stop function to clean up.
func (r *Registry) Watch() (stop func(), err error) {
	if r.path == "" {
		return func() {}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("schemas watcher: %w", err)
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("schemas watcher add %s: %w", r.path, err)
	}
	r.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := r.load(); err != nil {
						log.Printf("schemas reload failed, keeping previous: %v", err)
						continue
					}
					log.Printf("schemas reloaded from %s", r.path)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }, nil
}
