// Package intervention holds suspended-pipeline continuations keyed by
// intervention identifier. The Store is an injected capability so the
// in-memory map can be swapped for a persistent, TTL-bearing store without
// touching the pipeline coordinator.
package intervention

import (
	"errors"
	"sync"
	"time"

	"github.com/finagent/invoiceflow/internal/agent"
	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/domain/workflow"
	"github.com/finagent/invoiceflow/internal/stream"
)

var (
	// ErrNotFound is returned when no continuation is stored under an
	// identifier: either already resolved or never created.
	ErrNotFound = errors.New("intervention not found")

	// ErrConflict is returned if an identifier is already occupied. The
	// generator is collision-resistant, so this surfaces a bug loudly
	// instead of silently dropping a suspended run.
	ErrConflict = errors.New("intervention id already exists")
)

// Continuation is everything the coordinator needs to resume a suspended
// run: the stage to re-enter at, the run state with all computed results,
// and the open output stream.
type Continuation struct {
	ResumeStage workflow.State
	State       *agent.RunState
	Stream      *stream.Stream
}

// Intervention is one suspension event awaiting a human decision.
type Intervention struct {
	ID           string
	Stage        workflow.State
	AgentName    string
	Issues       []string
	Snapshot     *invoice.ExtractedData
	Continuation *Continuation
	CreatedAt    time.Time
}

// Store maps intervention identifiers to suspended continuations. All
// methods must be safe for concurrent use.
type Store interface {
	// Put stores an intervention under its identifier.
	Put(itv *Intervention) error

	// Take removes and returns the intervention. An identifier is removed
	// exactly once; a second Take returns ErrNotFound.
	Take(id string) (*Intervention, error)

	// Len reports the number of open interventions.
	Len() int
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Intervention
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Intervention)}
}

// Put stores an intervention under its identifier.
func (s *MemoryStore) Put(itv *Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[itv.ID]; exists {
		return ErrConflict
	}
	s.entries[itv.ID] = itv
	return nil
}

// Take removes and returns the intervention under id.
func (s *MemoryStore) Take(id string) (*Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	itv, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, id)
	return itv, nil
}

// Len reports the number of open interventions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
