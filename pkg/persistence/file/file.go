// Package file provides file-based persistence implementation for cadences.
//
// The whole data set is held in memory and flushed to a single JSON document
// after every committed write. A process-wide mutex serializes access, which
// makes every write, and every Transaction, atomic with respect to other
// callers in the same process. It is meant for tests and local development.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

const stateFile = "state.json"

type state struct {
	Cadences   map[string]*models.Cadence     `json:"cadences"`
	Nodes      map[string]*models.Node        `json:"nodes"`
	Leads      map[string]*models.Lead        `json:"leads"`
	Links      map[string]*models.LeadCadence `json:"links"`
	Tasks      map[string]*models.Task        `json:"tasks"`
	Activities []*models.Activity             `json:"activities"`
	Settings   map[string]*models.Settings    `json:"settings"`
	Schedules  map[string]*models.Schedule    `json:"schedules"`
}

func newState() *state {
	return &state{
		Cadences:   make(map[string]*models.Cadence),
		Nodes:      make(map[string]*models.Node),
		Leads:      make(map[string]*models.Lead),
		Links:      make(map[string]*models.LeadCadence),
		Tasks:      make(map[string]*models.Task),
		Activities: make([]*models.Activity, 0),
		Settings:   make(map[string]*models.Settings),
		Schedules:  make(map[string]*models.Schedule),
	}
}

type store struct {
	mu   sync.Mutex
	root string
	data *state
}

// Persistence implements the persistence.Persistence interface using the file system.
// Repositories obtained from the Persistence handed to a Transaction callback must
// be used inside that callback instead of the outer ones.
type Persistence struct {
	store *store
	inTx  bool
}

// NewPersistence creates a new instance of Persistence with the specified root
// directory, loading any state previously flushed there.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	data, err := load(cleanRoot)
	if err != nil {
		return nil, err
	}

	return &Persistence{store: &store{root: cleanRoot, data: data}}, nil
}

func load(root string) (*state, error) {
	body, err := os.ReadFile(filepath.Join(root, stateFile)) // #nosec G304 -- path is built from the configured root
	if err != nil {
		if os.IsNotExist(err) {
			return newState(), nil
		}

		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	data := newState()
	if err := json.Unmarshal(body, data); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return data, nil
}

func (s *store) flush() error {
	err := os.MkdirAll(s.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := filepath.Join(s.root, stateFile+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return os.Rename(tmp, filepath.Join(s.root, stateFile))
}

func (s *state) snapshot() (*state, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}

	copied := newState()
	if err := json.Unmarshal(data, copied); err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}

	return copied, nil
}

// Transaction runs fn with exclusive access to the data set. Writes made by fn
// are flushed together when it returns nil and discarded otherwise.
func (p *Persistence) Transaction(_ context.Context, fn func(tx persistence.Persistence) error) error {
	if p.inTx {
		return fn(p)
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	return p.commit(func() error {
		return fn(&Persistence{store: p.store, inTx: true})
	})
}

// commit runs fn under the held lock and either flushes or restores the state.
func (p *Persistence) commit(fn func() error) error {
	snapshot, err := p.store.data.snapshot()
	if err != nil {
		return err
	}

	if err := fn(); err != nil {
		p.store.data = snapshot

		return err
	}

	if err := p.store.flush(); err != nil {
		p.store.data = snapshot

		return err
	}

	return nil
}

func (p *Persistence) read(fn func(s *state) error) error {
	if !p.inTx {
		p.store.mu.Lock()
		defer p.store.mu.Unlock()
	}

	return fn(p.store.data)
}

func (p *Persistence) write(fn func(s *state) error) error {
	if p.inTx {
		return fn(p.store.data)
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	return p.commit(func() error { return fn(p.store.data) })
}

// clone returns a deep copy so callers never alias stored records.
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("file persistence: cannot copy %T: %v", v, err))
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("file persistence: cannot copy %T: %v", v, err))
	}

	return &out
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(p.store.root, 0750); err != nil {
		return fmt.Errorf("failed to access root directory: %w", err)
	}

	return nil
}

func (p *Persistence) CadenceRepository() persistence.CadenceRepository {
	return &cadenceRepository{p: p}
}

func (p *Persistence) NodeRepository() persistence.NodeRepository {
	return &nodeRepository{p: p}
}

func (p *Persistence) LeadRepository() persistence.LeadRepository {
	return &leadRepository{p: p}
}

func (p *Persistence) LeadCadenceRepository() persistence.LeadCadenceRepository {
	return &leadCadenceRepository{p: p}
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return &taskRepository{p: p}
}

func (p *Persistence) ActivityRepository() persistence.ActivityRepository {
	return &activityRepository{p: p}
}

func (p *Persistence) SettingsRepository() persistence.SettingsRepository {
	return &settingsRepository{p: p}
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return &scheduleRepository{p: p}
}
