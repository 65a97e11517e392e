package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/projects"
)

// SystemActor is recorded as the author of automatic repairs.
const SystemActor = "system"

// Report summarizes one reconciliation pass.
type Report struct {
	Checked    int                `json:"checked"`
	Repaired   []string           `json:"repaired"`
	Missing    []string           `json:"missing"`
	Duplicates map[string][]Queue `json:"duplicates,omitempty"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

// Reconcile compares every queued project's status with its queue and
// rewrites the ones that drifted. Queued ids without a record and ids held
// by more than one queue are reported, not changed.
func (e *Engine) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: e.now().UTC()}

	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		report.Checked, report.Repaired, report.Missing = 0, []string{}, []string{}
		state := tx.State()
		report.Duplicates = state.Duplicates()

		now := e.now()
		for _, q := range allQueues {
			entries, err := state.Entries(q)
			if err != nil {
				return err
			}
			ids := make([]string, len(entries))
			for i, entry := range entries {
				ids[i] = entry.ProjectID
			}
			records, err := tx.Projects().GetMany(ctx, ids)
			if err != nil {
				return err
			}

			for _, id := range ids {
				report.Checked++
				if _, dup := report.Duplicates[id]; dup {
					continue
				}
				project := records[id]
				if project == nil {
					report.Missing = append(report.Missing, id)
					continue
				}
				if project.VerificationStatus == q.Status() {
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
				report.Repaired = append(report.Repaired, id)
			}
		}
		return nil
	})
	report.FinishedAt = e.now().UTC()
	if err != nil {
		e.metrics.IncrementReconcileRun("error")
		e.logger.Error("Reconciliation failed", zap.Error(err))
		return nil, withOp("reconcile", err)
	}

	e.metrics.IncrementReconcileRun("ok")
	e.metrics.AddStatusRepairs(len(report.Repaired))
	if len(report.Repaired) > 0 {
		e.cache.Invalidate()
	}

	fields := []zap.Field{
		zap.Int("checked", report.Checked),
		zap.Int("repaired", len(report.Repaired)),
		zap.Strings("missing", report.Missing),
	}
	if len(report.Duplicates) > 0 {
		dups := make([]string, 0, len(report.Duplicates))
		for id := range report.Duplicates {
			dups = append(dups, id)
		}
		sort.Strings(dups)
		e.logger.Error("Projects found in more than one queue", zap.Strings("project_ids", dups))
	}
	e.logger.Info("Reconciliation completed", fields...)
	return report, nil
}

func repairRecord(projectID string, q Queue, from projects.VerificationStatus, now time.Time) *projects.StatusHistory {
	return &projects.StatusHistory{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Command:   string(CommandRepair),
		FromQueue: string(q),
		ToQueue:   string(q),
		Status:    q.Status(),
		Message:   "status " + string(from) + " rewritten to match queue",
		ChangedBy: SystemActor,
		ChangedAt: now.UTC(),
	}
}
