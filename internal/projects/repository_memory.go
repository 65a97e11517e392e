package projects

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps projects and their history in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]*Project
	history  map[string][]*StatusHistory
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects: make(map[string]*Project),
		history:  make(map[string][]*StatusHistory),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; ok {
		return ErrDuplicate
	}
	r.projects[project.ID] = project.Clone()
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) GetMany(ctx context.Context, ids []string) (map[string]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Project, len(ids))
	for _, id := range ids {
		if p, ok := r.projects[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; !ok {
		return ErrNotFound
	}
	r.projects[project.ID] = project.Clone()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, filter Filter) ([]*Project, error) {
	r.mu.RLock()
	all := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		all = append(all, p.Clone())
	}
	r.mu.RUnlock()
	return ApplyFilter(all, filter), nil
}

func (r *MemoryRepository) AppendHistory(ctx context.Context, entry *StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *entry
	r.history[entry.ProjectID] = append(r.history[entry.ProjectID], &e)
	return nil
}

func (r *MemoryRepository) ListHistory(ctx context.Context, projectID string) ([]*StatusHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.history[projectID]
	out := make([]*StatusHistory, len(entries))
	for i, e := range entries {
		c := *e
		out[i] = &c
	}
	return out, nil
}

// Begin starts a buffered unit of work. Nothing is visible to other readers
// until Commit; dropping the MemoryTxn discards its writes.
func (r *MemoryRepository) Begin() *MemoryTxn {
	return &MemoryTxn{
		base:     r,
		projects: make(map[string]*Project),
	}
}

// MemoryTxn buffers writes against a MemoryRepository.
type MemoryTxn struct {
	base     *MemoryRepository
	projects map[string]*Project
	history  []*StatusHistory
}

func (t *MemoryTxn) Create(ctx context.Context, project *Project) error {
	if _, ok := t.projects[project.ID]; ok {
		return ErrDuplicate
	}
	if _, err := t.base.GetByID(ctx, project.ID); err == nil {
		return ErrDuplicate
	}
	t.projects[project.ID] = project.Clone()
	return nil
}

func (t *MemoryTxn) GetByID(ctx context.Context, id string) (*Project, error) {
	if p, ok := t.projects[id]; ok {
		return p.Clone(), nil
	}
	return t.base.GetByID(ctx, id)
}

func (t *MemoryTxn) GetMany(ctx context.Context, ids []string) (map[string]*Project, error) {
	out, err := t.base.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if p, ok := t.projects[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

func (t *MemoryTxn) Update(ctx context.Context, project *Project) error {
	if _, ok := t.projects[project.ID]; !ok {
		if _, err := t.base.GetByID(ctx, project.ID); err != nil {
			return err
		}
	}
	t.projects[project.ID] = project.Clone()
	return nil
}

func (t *MemoryTxn) List(ctx context.Context, filter Filter) ([]*Project, error) {
	merged := make(map[string]*Project)
	base, err := t.base.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	for _, p := range base {
		merged[p.ID] = p
	}
	for id, p := range t.projects {
		merged[id] = p.Clone()
	}
	all := make([]*Project, 0, len(merged))
	for _, p := range merged {
		all = append(all, p)
	}
	return ApplyFilter(all, filter), nil
}

func (t *MemoryTxn) AppendHistory(ctx context.Context, entry *StatusHistory) error {
	e := *entry
	t.history = append(t.history, &e)
	return nil
}

func (t *MemoryTxn) ListHistory(ctx context.Context, projectID string) ([]*StatusHistory, error) {
	out, err := t.base.ListHistory(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, e := range t.history {
		if e.ProjectID == projectID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// Commit applies the buffered writes to the base repository atomically.
func (t *MemoryTxn) Commit() {
	r := t.base
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range t.projects {
		r.projects[id] = p
	}
	for _, e := range t.history {
		r.history[e.ProjectID] = append(r.history[e.ProjectID], e)
	}
	t.projects = make(map[string]*Project)
	t.history = nil
}

// ApplyFilter orders projects by creation time and applies filter to them.
func ApplyFilter(all []*Project, filter Filter) []*Project {
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	out := make([]*Project, 0, len(all))
	for _, p := range all {
		if filter.Status != nil && p.VerificationStatus != *filter.Status {
			continue
		}
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, p)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*Project{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
