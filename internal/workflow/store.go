package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"carbon-scribe/verification-registry/internal/projects"
)

// Tx is one atomic unit of work over the workflow document and the project
// records. Writes made through a Tx become visible together or not at all.
type Tx interface {
	State() *State
	Projects() projects.Repository
	History() projects.HistoryRepository
}

// Store persists the workflow document next to the project records.
type Store interface {
	// Snapshot returns a private copy of the committed document, creating
	// the document on first use.
	Snapshot(ctx context.Context) (*State, error)
	// RunInTx runs fn against a consistent view. Returning an error from fn
	// discards every change it made.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Projects() projects.Repository
	History() projects.HistoryRepository
}

// MemoryStore keeps the document and project records in process memory.
// Transactions are serialized on a single lock.
type MemoryStore struct {
	mu        sync.Mutex
	once      sync.Once
	state     *State
	repo      *projects.MemoryRepository
	now       func() time.Time
	creations atomic.Int32
}

// NewMemoryStore wraps repo; a nil repo gets a fresh one.
func NewMemoryStore(repo *projects.MemoryRepository) *MemoryStore {
	if repo == nil {
		repo = projects.NewMemoryRepository()
	}
	return &MemoryStore{repo: repo, now: time.Now}
}

func (s *MemoryStore) init() {
	s.once.Do(func() {
		s.state = NewState()
		s.state.UpdatedAt = s.now().UTC()
		s.creations.Add(1)
	})
}

func (s *MemoryStore) Snapshot(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.Clone()
	txn := s.repo.Begin()
	if err := fn(ctx, &memoryTx{state: working, txn: txn}); err != nil {
		return err
	}

	working.Version = s.state.Version + 1
	working.UpdatedAt = s.now().UTC()
	txn.Commit()
	s.state = working
	return nil
}

func (s *MemoryStore) Projects() projects.Repository {
	return s.repo
}

func (s *MemoryStore) History() projects.HistoryRepository {
	return s.repo
}

type memoryTx struct {
	state *State
	txn   *projects.MemoryTxn
}

func (t *memoryTx) State() *State                       { return t.state }
func (t *memoryTx) Projects() projects.Repository       { return t.txn }
func (t *memoryTx) History() projects.HistoryRepository { return t.txn }
