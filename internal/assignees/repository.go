package assignees

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Repository defines the interface for assignee data access
type Repository interface {
	Get(ctx context.Context, kind Kind, id string) (*Assignee, error)
	List(ctx context.Context, kind Kind, activeOnly bool) ([]*Assignee, error)
	Upsert(ctx context.Context, assignee *Assignee) error
}

const schema = `
CREATE TABLE IF NOT EXISTS assignees (
	id         VARCHAR(64) NOT NULL,
	kind       VARCHAR(16) NOT NULL,
	name       TEXT        NOT NULL,
	region     TEXT        NOT NULL DEFAULT '',
	active     BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (kind, id)
)`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the assignees table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create assignees table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, kind Kind, id string) (*Assignee, error) {
	query := `
		SELECT id, kind, name, region, active, created_at
		FROM assignees
		WHERE kind = $1 AND id = $2
	`

	var assignee Assignee
	if err := r.db.GetContext(ctx, &assignee, query, kind, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignee: %w", err)
	}
	return &assignee, nil
}

func (r *PostgresRepository) List(ctx context.Context, kind Kind, activeOnly bool) ([]*Assignee, error) {
	query := `
		SELECT id, kind, name, region, active, created_at
		FROM assignees
		WHERE ($1 = '' OR kind = $1) AND (NOT $2 OR active)
		ORDER BY kind, name, id
	`

	var list []*Assignee
	if err := r.db.SelectContext(ctx, &list, query, string(kind), activeOnly); err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}
	return list, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, assignee *Assignee) error {
	query := `
		INSERT INTO assignees (id, kind, name, region, active, created_at)
		VALUES (:id, :kind, :name, :region, :active, :created_at)
		ON CONFLICT (kind, id) DO UPDATE
		SET name = EXCLUDED.name, region = EXCLUDED.region, active = EXCLUDED.active
	`

	if _, err := r.db.NamedExecContext(ctx, query, assignee); err != nil {
		return fmt.Errorf("failed to upsert assignee: %w", err)
	}
	return nil
}

// MemoryRepository keeps assignees in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[Kind]map[string]Assignee
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[Kind]map[string]Assignee)}
}

func (r *MemoryRepository) Get(ctx context.Context, kind Kind, id string) (*Assignee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) List(ctx context.Context, kind Kind, activeOnly bool) ([]*Assignee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Assignee
	for k, byID := range r.items {
		if kind != "" && k != kind {
			continue
		}
		for _, a := range byID {
			if activeOnly && !a.Active {
				continue
			}
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, assignee *Assignee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.items[assignee.Kind] == nil {
		r.items[assignee.Kind] = make(map[string]Assignee)
	}
	if existing, ok := r.items[assignee.Kind][assignee.ID]; ok {
		assignee.CreatedAt = existing.CreatedAt
	}
	r.items[assignee.Kind][assignee.ID] = *assignee
	return nil
}
