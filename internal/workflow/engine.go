package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/assignees"
	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/projects"
	"carbon-scribe/verification-registry/internal/workflow/metrics"
	"carbon-scribe/verification-registry/pkg/workflows"
)

// AssigneeDirectory resolves NGO and drone operator ids.
type AssigneeDirectory interface {
	Lookup(ctx context.Context, kind assignees.Kind, id string) (*assignees.Assignee, error)
}

// Result is the outcome of a committed command.
type Result struct {
	Command Command           `json:"command"`
	From    Queue             `json:"from,omitempty"`
	To      Queue             `json:"to"`
	Entry   Entry             `json:"entry"`
	Project *projects.Project `json:"project"`
}

// Engine executes workflow commands. It authorizes the caller, validates
// input and applies the queue move, project update and history record in
// one store transaction.
type Engine struct {
	store     Store
	directory AssigneeDirectory
	publisher Publisher
	metrics   *metrics.Metrics
	cache     *OverviewCache
	machine   *workflows.StateMachine
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher delivers committed transitions to p.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithMetrics records command outcomes and queue lengths on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOverviewCache caches Overview results in c.
func WithOverviewCache(c *OverviewCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a workflow engine. A nil directory skips assignee checks.
func NewEngine(store Store, directory AssigneeDirectory, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:     store,
		directory: directory,
		publisher: nopPublisher{},
		machine:   workflows.NewStateMachine(),
		validate:  newValidator(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// transition is one queue move with its side effects.
type transition struct {
	command   Command
	projectID string
	sources   []Queue
	to        Queue
	fields    EntryFields
	apply     func(p *projects.Project)
}

// Register creates a project record in the pending stage.
func (e *Engine) Register(ctx context.Context, caller auth.Principal, req projects.RegisterRequest) (*projects.Project, error) {
	const op = "register"
	start := e.now()

	project, err := e.register(ctx, caller, req, start)
	e.record(CommandRegister, start, err)
	if err != nil {
		e.logger.Warn("Project registration failed", zap.String("owner_id", caller.UserID), zap.Error(err))
		return nil, withOp(op, err)
	}
	return project, nil
}

func (e *Engine) register(ctx context.Context, caller auth.Principal, req projects.RegisterRequest, now time.Time) (*projects.Project, error) {
	if caller.Anonymous() {
		return nil, newError(KindUnauthorized, errors.New("authentication required"))
	}
	project, err := projects.NewProject(req, caller.UserID, now)
	if err != nil {
		return nil, validationError("%v", err)
	}

	var (
		entry  Entry
		counts map[Queue]int
	)
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		state := tx.State()
		var err error
		entry, err = state.Enqueue(project.ID, QueuePending, EntryFields{}, now)
		if err != nil {
			return err
		}
		if err := tx.Projects().Create(ctx, project); err != nil {
			if errors.Is(err, projects.ErrDuplicate) {
				return newError(KindConflict, err)
			}
			return err
		}
		if err := tx.History().AppendHistory(ctx, historyRecord(CommandRegister, "", QueuePending, entry, caller.UserID)); err != nil {
			return err
		}
		counts = state.Counts()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, Event{
		Command:    CommandRegister,
		ProjectID:  project.ID,
		To:         QueuePending,
		Status:     project.VerificationStatus,
		Message:    entry.Message,
		Actor:      caller.UserID,
		Counts:     counts,
		OccurredAt: entry.EnteredAt,
	})
	return project, nil
}

// ApproveLand moves a project from pending to landApproval.
func (e *Engine) ApproveLand(ctx context.Context, caller auth.Principal, req TransitionRequest) (*Result, error) {
	req.ProjectID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandApproveLand,
		projectID: req.ProjectID,
		sources:   []Queue{QueuePending},
		to:        QueueLandApproval,
		fields:    EntryFields{Message: req.Message},
	})
}

// AssignNGO hands a land-approved project to an NGO verifier. Projects
// parked in ngoAssigning are picked up when landApproval does not hold them.
func (e *Engine) AssignNGO(ctx context.Context, caller auth.Principal, req AssignRequest) (*Result, error) {
	req.ProjectID, req.AssigneeID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.AssigneeID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandAssignNGO,
		projectID: req.ProjectID,
		sources:   []Queue{QueueLandApproval, QueueNGOAssigning},
		to:        QueueNGOAssigned,
		fields:    EntryFields{Message: req.Message, AssigneeID: req.AssigneeID},
	})
}

// ApproveNGOReport accepts the NGO site report and queues the drone survey.
func (e *Engine) ApproveNGOReport(ctx context.Context, caller auth.Principal, req TransitionRequest) (*Result, error) {
	req.ProjectID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandApproveNGOReport,
		projectID: req.ProjectID,
		sources:   []Queue{QueueNGOAssigned},
		to:        QueueDroneAssigning,
		fields:    EntryFields{Message: req.Message},
	})
}

// AssignDrone hands a project to a drone operator.
func (e *Engine) AssignDrone(ctx context.Context, caller auth.Principal, req AssignRequest) (*Result, error) {
	req.ProjectID, req.AssigneeID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.AssigneeID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandAssignDrone,
		projectID: req.ProjectID,
		sources:   []Queue{QueueDroneAssigning},
		to:        QueueDroneAssigned,
		fields:    EntryFields{Message: req.Message, AssigneeID: req.AssigneeID},
	})
}

// ApproveDroneSurvey sends a surveyed project to final admin approval.
func (e *Engine) ApproveDroneSurvey(ctx context.Context, caller auth.Principal, req TransitionRequest) (*Result, error) {
	req.ProjectID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandApproveDroneSurvey,
		projectID: req.ProjectID,
		sources:   []Queue{QueueDroneAssigned},
		to:        QueueAdminApproval,
		fields:    EntryFields{Message: req.Message},
	})
}

// FinalApprove accepts a project and records the credits issued for it.
func (e *Engine) FinalApprove(ctx context.Context, caller auth.Principal, req FinalApproveRequest) (*Result, error) {
	req.ProjectID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message)
	credits := req.CarbonCredits
	return e.run(ctx, caller, req, transition{
		command:   CommandFinalApprove,
		projectID: req.ProjectID,
		sources:   []Queue{QueueAdminApproval},
		to:        QueueAccepted,
		fields:    EntryFields{Message: req.Message},
		apply: func(p *projects.Project) {
			p.CarbonCredits = &credits
		},
	})
}

// Reject moves a project from whichever active stage holds it to rejected.
func (e *Engine) Reject(ctx context.Context, caller auth.Principal, req RejectRequest) (*Result, error) {
	req.ProjectID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandReject,
		projectID: req.ProjectID,
		to:        QueueRejected,
		fields:    EntryFields{Message: req.Message},
	})
}

// Redo sends a project awaiting final approval back to an earlier stage.
func (e *Engine) Redo(ctx context.Context, caller auth.Principal, req RedoRequest) (*Result, error) {
	req.ProjectID, req.Message = strings.TrimSpace(req.ProjectID), strings.TrimSpace(req.Message)
	return e.run(ctx, caller, req, transition{
		command:   CommandRedo,
		projectID: req.ProjectID,
		sources:   []Queue{QueueAdminApproval},
		to:        req.Target,
		fields:    EntryFields{Message: req.Message},
	})
}

func (e *Engine) run(ctx context.Context, caller auth.Principal, req any, t transition) (*Result, error) {
	start := e.now()
	result, err := e.execute(ctx, caller, req, t, start)
	e.record(t.command, start, err)
	if err != nil {
		err = withOp(strings.ReplaceAll(string(t.command), "_", " "), err)
		fields := []zap.Field{
			zap.String("command", string(t.command)),
			zap.String("project_id", t.projectID),
			zap.String("actor", caller.UserID),
			zap.Error(err),
		}
		if IsKind(err, KindInconsistency) || KindOf(err) == KindInternal {
			e.logger.Error("Workflow command failed", fields...)
		} else {
			e.logger.Warn("Workflow command rejected", fields...)
		}
		return nil, err
	}
	e.logger.Info("Workflow transition committed",
		zap.String("command", string(t.command)),
		zap.String("project_id", t.projectID),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.String("actor", caller.UserID))
	return result, nil
}

func (e *Engine) execute(ctx context.Context, caller auth.Principal, req any, t transition, now time.Time) (*Result, error) {
	if !caller.IsAdmin() {
		return nil, newError(KindUnauthorized, ErrUnauthorized)
	}
	if err := e.check(ctx, req, t); err != nil {
		return nil, err
	}

	var (
		result *Result
		counts map[Queue]int
	)
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		state := tx.State()
		from, err := resolveSource(state, t)
		if err != nil {
			return err
		}
		if !e.machine.CanTransition(string(from.Status()), string(t.to.Status())) {
			return validationError("transition from %s to %s is not allowed", from, t.to)
		}

		project, err := tx.Projects().GetByID(ctx, t.projectID)
		if errors.Is(err, projects.ErrNotFound) {
			return errorf(KindInconsistency, ErrMissingRecord, "%s in %s", t.projectID, from)
		}
		if err != nil {
			return err
		}

		entry, err := state.Move(t.projectID, from, t.to, t.fields, now)
		if err != nil {
			return err
		}

		project.VerificationStatus = t.to.Status()
		if t.apply != nil {
			t.apply(project)
		}
		project.UpdatedAt = now
		if err := tx.Projects().Update(ctx, project); err != nil {
			return fmt.Errorf("failed to update project status: %w", err)
		}
		if err := tx.History().AppendHistory(ctx, historyRecord(t.command, from, t.to, entry, caller.UserID)); err != nil {
			return fmt.Errorf("failed to record history: %w", err)
		}

		counts = state.Counts()
		result = &Result{Command: t.command, From: from, To: t.to, Entry: entry, Project: project}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, Event{
		Command:    t.command,
		ProjectID:  t.projectID,
		From:       result.From,
		To:         result.To,
		Status:     result.Project.VerificationStatus,
		Message:    result.Entry.Message,
		AssigneeID: result.Entry.AssigneeID,
		Actor:      caller.UserID,
		Counts:     counts,
		OccurredAt: result.Entry.EnteredAt,
	})
	return result, nil
}

// check validates the request before the store is touched.
func (e *Engine) check(ctx context.Context, req any, t transition) error {
	if err := validate(e.validate, req); err != nil {
		return err
	}
	switch r := req.(type) {
	case FinalApproveRequest:
		return validateCredits(r.CarbonCredits)
	case RedoRequest:
		if !redoTargets[r.Target] {
			return validationError("unknown target stage for redo: %q", r.Target)
		}
	case AssignRequest:
		kind := assignees.KindNGO
		if t.command == CommandAssignDrone {
			kind = assignees.KindDrone
		}
		return e.checkAssignee(ctx, kind, r.AssigneeID)
	}
	return nil
}

func (e *Engine) checkAssignee(ctx context.Context, kind assignees.Kind, id string) error {
	if e.directory == nil {
		return nil
	}
	_, err := e.directory.Lookup(ctx, kind, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, assignees.ErrNotFound), errors.Is(err, assignees.ErrInactive):
		return errorf(KindNotFound, ErrAssigneeNotFound, "%s %s: %v", kind, id, err)
	default:
		return fmt.Errorf("failed to look up assignee: %w", err)
	}
}

// resolveSource finds the queue the project must leave. Terminal projects
// and projects outside the expected stages are reported as not in queue.
func resolveSource(state *State, t transition) (Queue, error) {
	if len(t.sources) == 0 {
		return state.Locate(t.projectID)
	}
	current, found, err := state.Where(t.projectID)
	if err != nil {
		return "", err
	}
	for _, q := range t.sources {
		if found && current == q {
			return q, nil
		}
	}
	if found {
		return "", errorf(KindNotFound, ErrProjectNotInQueue, "%s is in %s, expected %s", t.projectID, current, joinQueues(t.sources))
	}
	return "", errorf(KindNotFound, ErrProjectNotInQueue, "%s is not in %s", t.projectID, joinQueues(t.sources))
}

func historyRecord(command Command, from, to Queue, entry Entry, actor string) *projects.StatusHistory {
	return &projects.StatusHistory{
		ID:         uuid.New().String(),
		ProjectID:  entry.ProjectID,
		Command:    string(command),
		FromQueue:  string(from),
		ToQueue:    string(to),
		Status:     to.Status(),
		Message:    entry.Message,
		AssigneeID: entry.AssigneeID,
		ChangedBy:  actor,
		ChangedAt:  entry.EnteredAt,
	}
}

func (e *Engine) afterCommit(ctx context.Context, event Event) {
	e.cache.Invalidate()
	lengths := make(map[string]int, len(event.Counts))
	for q, n := range event.Counts {
		lengths[string(q)] = n
	}
	e.metrics.SetQueueLengths(lengths)
	e.publisher.Publish(ctx, event)
}

func (e *Engine) record(command Command, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	e.metrics.IncrementTransition(string(command), outcome)
	e.metrics.ObserveTransitionLatency(string(command), e.now().Sub(start))
}
