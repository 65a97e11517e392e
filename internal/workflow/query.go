package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/projects"
)

// Overview counts the projects in each queue.
type Overview struct {
	Counts      map[Queue]int `json:"counts"`
	Total       int           `json:"total"`
	Version     int64         `json:"version"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

func (o *Overview) clone() *Overview {
	c := *o
	c.Counts = make(map[Queue]int, len(o.Counts))
	for q, n := range o.Counts {
		c.Counts[q] = n
	}
	return &c
}

// StageProject pairs a queue entry with its project record. Project is nil
// when the record is missing.
type StageProject struct {
	Entry   Entry             `json:"entry"`
	Project *projects.Project `json:"project"`
}

// Overview returns the length of every queue.
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	cached, generation, ok := e.cache.Get()
	if ok {
		return cached, nil
	}

	state, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, withOp("overview", err)
	}
	overview := &Overview{
		Counts:      state.Counts(),
		Total:       state.Total(),
		Version:     state.Version,
		GeneratedAt: e.now().UTC(),
	}
	e.cache.Set(generation, overview)
	return overview, nil
}

// StageExport is every queue read from one committed snapshot.
type StageExport struct {
	Overview *Overview                `json:"overview"`
	Stages   map[Queue][]StageProject `json:"stages"`
}

// ProjectsInStage lists the projects of one queue in arrival order, with
// each record's status shown as the queue dictates.
func (e *Engine) ProjectsInStage(ctx context.Context, q Queue) ([]StageProject, error) {
	const op = "projects in stage"
	if !q.Valid() {
		return nil, withOp(op, errorf(KindInvalidPath, ErrInvalidPath, "%q", q))
	}
	state, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, withOp(op, err)
	}
	stages, err := e.stageProjects(ctx, state, []Queue{q})
	if err != nil {
		return nil, withOp(op, err)
	}
	return stages[q], nil
}

// Export reads every queue and the records it holds from a single snapshot.
// The overview is computed from that snapshot, never from the cache, so its
// counts always match the listed entries.
func (e *Engine) Export(ctx context.Context) (*StageExport, error) {
	const op = "export stages"
	state, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, withOp(op, err)
	}
	stages, err := e.stageProjects(ctx, state, allQueues)
	if err != nil {
		return nil, withOp(op, err)
	}
	return &StageExport{
		Overview: &Overview{
			Counts:      state.Counts(),
			Total:       state.Total(),
			Version:     state.Version,
			GeneratedAt: e.now().UTC(),
		},
		Stages: stages,
	}, nil
}

// stageProjects pairs the entries of qs in state with their records, loaded
// in one batch. Drifted statuses are shown as their queue dictates and
// repaired.
func (e *Engine) stageProjects(ctx context.Context, state *State, qs []Queue) (map[Queue][]StageProject, error) {
	entries := make(map[Queue][]Entry, len(qs))
	var ids []string
	for _, q := range qs {
		list, err := state.Entries(q)
		if err != nil {
			return nil, err
		}
		entries[q] = list
		for _, entry := range list {
			ids = append(ids, entry.ProjectID)
		}
	}
	records, err := e.store.Projects().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[Queue][]StageProject, len(qs))
	var drifted []string
	for _, q := range qs {
		list := make([]StageProject, 0, len(entries[q]))
		for _, entry := range entries[q] {
			project := records[entry.ProjectID]
			if project == nil {
				e.logger.Error("Queued project has no record",
					zap.String("project_id", entry.ProjectID),
					zap.String("queue", string(q)))
			} else if project.VerificationStatus != q.Status() {
				drifted = append(drifted, entry.ProjectID)
				project.VerificationStatus = q.Status()
			}
			list = append(list, StageProject{Entry: entry, Project: project})
		}
		out[q] = list
	}
	if len(drifted) > 0 {
		e.repair(ctx, drifted)
	}
	return out, nil
}

// Project returns a project record whose status agrees with the queue that
// holds it. A record that drifted is repaired on the way out.
func (e *Engine) Project(ctx context.Context, id string) (*projects.Project, error) {
	const op = "get project"
	project, err := e.store.Projects().GetByID(ctx, id)
	if errors.Is(err, projects.ErrNotFound) {
		return nil, withOp(op, errorf(KindNotFound, ErrProjectNotFound, "%s", id))
	}
	if err != nil {
		return nil, withOp(op, err)
	}

	state, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, withOp(op, err)
	}
	q, found, err := state.Where(id)
	if err != nil {
		return nil, withOp(op, err)
	}
	if found && project.VerificationStatus != q.Status() {
		project.VerificationStatus = q.Status()
		e.repair(ctx, []string{id})
	}
	return project, nil
}

// ListProjects returns the records matching filter with each status derived
// from the queue that holds the project. A status filter selects projects by
// queue membership rather than by the stored field.
func (e *Engine) ListProjects(ctx context.Context, filter projects.Filter) ([]*projects.Project, error) {
	const op = "list projects"
	state, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, withOp(op, err)
	}

	var list []*projects.Project
	if filter.Status == nil {
		list, err = e.store.Projects().List(ctx, filter)
	} else {
		list, err = e.projectsWithStatus(ctx, state, filter)
	}
	if err != nil {
		return nil, withOp(op, err)
	}

	var drifted []string
	for _, project := range list {
		q, found, err := state.Where(project.ID)
		if err != nil {
			e.logger.Error("Project listed in several queues",
				zap.String("project_id", project.ID), zap.Error(err))
			continue
		}
		if found && project.VerificationStatus != q.Status() {
			drifted = append(drifted, project.ID)
			project.VerificationStatus = q.Status()
		}
	}
	if len(drifted) > 0 {
		e.repair(ctx, drifted)
	}
	return list, nil
}

// projectsWithStatus loads the projects held by every queue that maps to the
// filtered status and applies the rest of filter to them.
func (e *Engine) projectsWithStatus(ctx context.Context, state *State, filter projects.Filter) ([]*projects.Project, error) {
	var ids []string
	for _, q := range allQueues {
		if q.Status() != *filter.Status {
			continue
		}
		entries, err := state.Entries(q)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			ids = append(ids, entry.ProjectID)
		}
	}
	records, err := e.store.Projects().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	all := make([]*projects.Project, 0, len(records))
	for _, project := range records {
		all = append(all, project)
	}
	filter.Status = nil
	return projects.ApplyFilter(all, filter), nil
}

// History returns the transitions recorded for a project, oldest first.
func (e *Engine) History(ctx context.Context, id string) ([]*projects.StatusHistory, error) {
	const op = "project history"
	if _, err := e.store.Projects().GetByID(ctx, id); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			return nil, withOp(op, errorf(KindNotFound, ErrProjectNotFound, "%s", id))
		}
		return nil, withOp(op, err)
	}
	history, err := e.store.History().ListHistory(ctx, id)
	if err != nil {
		return nil, withOp(op, err)
	}
	return history, nil
}

// repair rewrites drifted statuses in the background of a read. Failures
// are logged; the caller already has the derived status.
func (e *Engine) repair(ctx context.Context, ids []string) {
	repaired, err := e.repairStatuses(ctx, ids)
	if err != nil {
		e.logger.Warn("Status repair failed", zap.Strings("project_ids", ids), zap.Error(err))
		return
	}
	if len(repaired) > 0 {
		e.logger.Info("Repaired drifted project statuses", zap.Strings("project_ids", repaired))
	}
}

// repairStatuses re-derives each project's status from the committed
// document inside a transaction and rewrites the ones that disagree.
func (e *Engine) repairStatuses(ctx context.Context, ids []string) ([]string, error) {
	var repaired []string
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		repaired = repaired[:0]
		state := tx.State()
		records, err := tx.Projects().GetMany(ctx, ids)
		if err != nil {
			return err
		}
		now := e.now()
		for _, id := range ids {
			project := records[id]
			if project == nil {
				continue
			}
			q, found, err := state.Where(id)
			if err != nil || !found || project.VerificationStatus == q.Status() {
				continue
			}
			from := project.VerificationStatus
			project.VerificationStatus = q.Status()
			project.UpdatedAt = now
			if err := tx.Projects().Update(ctx, project); err != nil {
				return err
			}
			if err := tx.History().AppendHistory(ctx, repairRecord(id, q, from, now)); err != nil {
				return err
			}
			repaired = append(repaired, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.AddStatusRepairs(len(repaired))
	return repaired, nil
}
