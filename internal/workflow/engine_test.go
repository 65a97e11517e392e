package workflow

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/assignees"
	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/projects"
	"carbon-scribe/verification-registry/internal/workflow/metrics"
)

var (
	admin     = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
	developer = auth.Principal{UserID: "dev-1", Role: auth.RoleDeveloper}
)

// MockPublisher is a mock implementation of Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event Event) {
	m.Called(ctx, event)
}

type fixture struct {
	engine  *Engine
	store   *MemoryStore
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	dir := assignees.NewDirectory(assignees.NewMemoryRepository(), zap.NewNop())
	require.NoError(t, dir.Register(ctx, &assignees.Assignee{ID: "N1", Kind: assignees.KindNGO, Name: "Forest Watch", Active: true}))
	require.NoError(t, dir.Register(ctx, &assignees.Assignee{ID: "N2", Kind: assignees.KindNGO, Name: "Retired NGO", Active: false}))
	require.NoError(t, dir.Register(ctx, &assignees.Assignee{ID: "D1", Kind: assignees.KindDrone, Name: "SkyScan", Active: true}))

	store := NewMemoryStore(nil)
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{WithMetrics(m)}, opts...)
	return &fixture{
		engine:  NewEngine(store, dir, zap.NewNop(), opts...),
		store:   store,
		metrics: m,
	}
}

func (f *fixture) register(t *testing.T, name string) string {
	t.Helper()
	p, err := f.engine.Register(context.Background(), developer, projects.RegisterRequest{Name: name})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) snapshot(t *testing.T) *State {
	t.Helper()
	s, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) status(t *testing.T, id string) projects.VerificationStatus {
	t.Helper()
	p, err := f.store.Projects().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.VerificationStatus
}

// advance walks a freshly registered project to the given queue.
func (f *fixture) advance(t *testing.T, id string, to Queue) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		q  Queue
		fn func() error
	}{
		{QueueLandApproval, func() error {
			_, err := f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: id})
			return err
		}},
		{QueueNGOAssigned, func() error {
			_, err := f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: "N1"})
			return err
		}},
		{QueueDroneAssigning, func() error {
			_, err := f.engine.ApproveNGOReport(ctx, admin, TransitionRequest{ProjectID: id})
			return err
		}},
		{QueueDroneAssigned, func() error {
			_, err := f.engine.AssignDrone(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: "D1"})
			return err
		}},
		{QueueAdminApproval, func() error {
			_, err := f.engine.ApproveDroneSurvey(ctx, admin, TransitionRequest{ProjectID: id})
			return err
		}},
	}
	if to == QueuePending {
		return
	}
	for _, step := range steps {
		require.NoError(t, step.fn())
		if step.q == to {
			return
		}
	}
	t.Fatalf("cannot advance to %s", to)
}

func TestRegisterEntersPending(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "Mangrove Restoration")

	s := f.snapshot(t)
	assert.Equal(t, 1, s.Len(QueuePending))
	assert.Equal(t, projects.StatusPending, f.status(t, id))

	history, err := f.engine.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(CommandRegister), history[0].Command)
	assert.Equal(t, developer.UserID, history[0].ChangedBy)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Register(ctx, auth.Principal{}, projects.RegisterRequest{Name: "x"})
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = f.engine.Register(ctx, developer, projects.RegisterRequest{Name: "  "})
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Equal(t, 0, f.snapshot(t).Total())
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.register(t, "P1")

	_, err := f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: p1})
	require.NoError(t, err)
	s := f.snapshot(t)
	assert.Equal(t, 0, s.Len(QueuePending))
	assert.Equal(t, 1, s.Len(QueueLandApproval))
	assert.Equal(t, projects.StatusLandApproval, f.status(t, p1))

	res, err := f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: p1, AssigneeID: "N1"})
	require.NoError(t, err)
	assert.Equal(t, QueueLandApproval, res.From)
	assert.Equal(t, "N1", res.Entry.AssigneeID)
	assert.Equal(t, projects.StatusNGO, f.status(t, p1))

	res, err = f.engine.Reject(ctx, admin, RejectRequest{ProjectID: p1, Message: "site inaccessible"})
	require.NoError(t, err)
	assert.Equal(t, QueueNGOAssigned, res.From)
	rejected, err := f.snapshot(t).Entries(QueueRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "site inaccessible", rejected[0].Message)
	assert.Equal(t, projects.StatusRejected, f.status(t, p1))

	_, err = f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: p1})
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = f.engine.Reject(ctx, admin, RejectRequest{ProjectID: p1, Message: "again"})
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = f.engine.Redo(ctx, admin, RedoRequest{ProjectID: p1, Target: QueuePending, Message: "again"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestFullApprovalRecordsCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "Peatland")
	f.advance(t, id, QueueAdminApproval)
	assert.Equal(t, projects.StatusAdminApprovalPending, f.status(t, id))

	res, err := f.engine.FinalApprove(ctx, admin, FinalApproveRequest{ProjectID: id, CarbonCredits: 1250.5})
	require.NoError(t, err)
	assert.Equal(t, QueueAccepted, res.To)

	p, err := f.store.Projects().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, projects.StatusApproved, p.VerificationStatus)
	require.NotNil(t, p.CarbonCredits)
	assert.Equal(t, 1250.5, *p.CarbonCredits)

	history, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 7)
}

func TestFinalApproveRequiresPositiveCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "Peatland")
	f.advance(t, id, QueueAdminApproval)
	before := f.snapshot(t)

	for _, credits := range []float64{0, -10} {
		_, err := f.engine.FinalApprove(ctx, admin, FinalApproveRequest{ProjectID: id, CarbonCredits: credits})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Contains(t, err.Error(), "carbonCredits")
	}

	assert.Equal(t, before, f.snapshot(t))
	p, err := f.store.Projects().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, p.CarbonCredits)
	assert.Equal(t, projects.StatusAdminApprovalPending, p.VerificationStatus)
}

func TestRejectFromEveryActiveStage(t *testing.T) {
	for _, q := range []Queue{QueuePending, QueueLandApproval, QueueNGOAssigned, QueueDroneAssigning, QueueDroneAssigned, QueueAdminApproval} {
		t.Run(string(q), func(t *testing.T) {
			f := newFixture(t)
			id := f.register(t, "P")
			f.advance(t, id, q)

			res, err := f.engine.Reject(context.Background(), admin, RejectRequest{ProjectID: id, Message: "insufficient evidence"})
			require.NoError(t, err)
			assert.Equal(t, q, res.From)

			s := f.snapshot(t)
			assert.Equal(t, 0, s.Len(q))
			assert.Equal(t, 1, s.Len(QueueRejected))
			assert.Equal(t, projects.StatusRejected, f.status(t, id))
		})
	}
}

func TestRejectFromNGOAssigning(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "P")
	f.advance(t, id, QueueAdminApproval)
	_, err := f.engine.Redo(context.Background(), admin, RedoRequest{ProjectID: id, Target: QueueNGOAssigning, Message: "revisit"})
	require.NoError(t, err)

	res, err := f.engine.Reject(context.Background(), admin, RejectRequest{ProjectID: id, Message: "no"})
	require.NoError(t, err)
	assert.Equal(t, QueueNGOAssigning, res.From)
}

func TestRejectRequiresMessage(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "P")

	_, err := f.engine.Reject(context.Background(), admin, RejectRequest{ProjectID: id, Message: "   "})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, 1, f.snapshot(t).Len(QueuePending))
}

func TestRedo(t *testing.T) {
	tests := []struct {
		target Queue
		status projects.VerificationStatus
	}{
		{QueuePending, projects.StatusPending},
		{QueueLandApproval, projects.StatusLandApproval},
		{QueueNGOAssigning, projects.StatusLandApproval},
	}
	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			f := newFixture(t)
			id := f.register(t, "P")
			f.advance(t, id, QueueAdminApproval)

			res, err := f.engine.Redo(context.Background(), admin, RedoRequest{ProjectID: id, Target: tt.target, Message: "survey blurred"})
			require.NoError(t, err)
			assert.Equal(t, QueueAdminApproval, res.From)
			assert.Equal(t, 1, f.snapshot(t).Len(tt.target))
			assert.Equal(t, tt.status, f.status(t, id))
		})
	}
}

func TestRedoValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")
	f.advance(t, id, QueueAdminApproval)

	for _, target := range []Queue{QueueAccepted, QueueNGOAssigned, QueueDroneAssigning, Queue("bogus"), ""} {
		_, err := f.engine.Redo(ctx, admin, RedoRequest{ProjectID: id, Target: target, Message: "x"})
		assert.Equal(t, KindValidation, KindOf(err), target)
	}
	_, err := f.engine.Redo(ctx, admin, RedoRequest{ProjectID: id, Target: QueuePending})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, 1, f.snapshot(t).Len(QueueAdminApproval))
}

func TestAssignNGOFromNGOAssigning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")
	f.advance(t, id, QueueAdminApproval)
	_, err := f.engine.Redo(ctx, admin, RedoRequest{ProjectID: id, Target: QueueNGOAssigning, Message: "new NGO"})
	require.NoError(t, err)

	res, err := f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: "N1"})
	require.NoError(t, err)
	assert.Equal(t, QueueNGOAssigning, res.From)
	assert.Equal(t, projects.StatusNGO, f.status(t, id))
}

func TestAssignRequiresKnownActiveAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")
	f.advance(t, id, QueueLandApproval)

	_, err := f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: id})
	assert.Equal(t, KindValidation, KindOf(err))

	for _, assignee := range []string{"N9", "N2", "D1"} {
		_, err = f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: assignee})
		assert.Equal(t, KindNotFound, KindOf(err), assignee)
		assert.ErrorIs(t, err, ErrAssigneeNotFound)
	}
	assert.Equal(t, 1, f.snapshot(t).Len(QueueLandApproval))
}

func TestCommandsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")

	for _, caller := range []auth.Principal{developer, {UserID: "ngo-1", Role: auth.RoleNGO}, {}} {
		_, err := f.engine.ApproveLand(ctx, caller, TransitionRequest{ProjectID: id})
		assert.Equal(t, KindUnauthorized, KindOf(err))
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	_, err := f.engine.Reject(ctx, developer, RejectRequest{ProjectID: id, Message: "x"})
	assert.Equal(t, KindUnauthorized, KindOf(err))

	assert.Equal(t, 1, f.snapshot(t).Len(QueuePending))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues(string(CommandReject), string(KindUnauthorized))))
}

func TestWrongStageIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")

	_, err := f.engine.ApproveNGOReport(ctx, admin, TransitionRequest{ProjectID: id})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, ErrProjectNotInQueue)

	_, err = f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: "missing"})
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, 1, f.snapshot(t).Len(QueuePending))
}

func TestQueuedProjectWithoutRecordIsInconsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.State().Enqueue("orphan", QueuePending, EntryFields{}, testNow)
		return err
	}))

	_, err := f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: "orphan"})
	assert.Equal(t, KindInconsistency, KindOf(err))
	assert.Equal(t, 1, f.snapshot(t).Len(QueuePending))
}

func TestMultiQueueSightingIsInconsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")
	require.NoError(t, f.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		s := tx.State()
		s.LandApproval = append(s.LandApproval, Entry{ProjectID: id})
		return nil
	}))

	_, err := f.engine.Reject(ctx, admin, RejectRequest{ProjectID: id, Message: "x"})
	assert.Equal(t, KindInconsistency, KindOf(err))
	_, err = f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: id})
	assert.Equal(t, KindInconsistency, KindOf(err))
}

func TestConcurrentDuplicateCommandsOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "P")
	f.advance(t, id, QueueLandApproval)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notFound  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: "N1"})
			switch {
			case err == nil:
				successes.Add(1)
			case IsKind(err, KindNotFound):
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(7), notFound.Load())
	s := f.snapshot(t)
	assert.Equal(t, 1, s.Len(QueueNGOAssigned))
	assert.Equal(t, 1, s.Total())
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e Event) bool { return e.Command == CommandRegister })).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e Event) bool {
		return e.Command == CommandApproveLand && e.From == QueuePending && e.To == QueueLandApproval &&
			e.Status == projects.StatusLandApproval && e.Counts[QueueLandApproval] == 1 && e.Actor == admin.UserID
	})).Once()

	f := newFixture(t, WithPublisher(pub))
	id := f.register(t, "P")
	_, err := f.engine.ApproveLand(context.Background(), admin, TransitionRequest{ProjectID: id, Message: "deeds verified"})
	require.NoError(t, err)

	_, err = f.engine.ApproveNGOReport(context.Background(), admin, TransitionRequest{ProjectID: id})
	require.Error(t, err)

	pub.AssertExpectations(t)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

// Random command sequences must keep every project in exactly one queue,
// with its record's status matching that queue.
func TestRandomSequencesPreservePartition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, f.register(t, "P"))
	}

	commands := []func(id string) error{
		func(id string) error {
			_, err := f.engine.ApproveLand(ctx, admin, TransitionRequest{ProjectID: id})
			return err
		},
		func(id string) error {
			_, err := f.engine.AssignNGO(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: "N1"})
			return err
		},
		func(id string) error {
			_, err := f.engine.ApproveNGOReport(ctx, admin, TransitionRequest{ProjectID: id})
			return err
		},
		func(id string) error {
			_, err := f.engine.AssignDrone(ctx, admin, AssignRequest{ProjectID: id, AssigneeID: "D1"})
			return err
		},
		func(id string) error {
			_, err := f.engine.ApproveDroneSurvey(ctx, admin, TransitionRequest{ProjectID: id})
			return err
		},
		func(id string) error {
			_, err := f.engine.FinalApprove(ctx, admin, FinalApproveRequest{ProjectID: id, CarbonCredits: 10})
			return err
		},
		func(id string) error {
			_, err := f.engine.Reject(ctx, admin, RejectRequest{ProjectID: id, Message: "no"})
			return err
		},
		func(id string) error {
			targets := RedoTargets()
			_, err := f.engine.Redo(ctx, admin, RedoRequest{ProjectID: id, Target: targets[rng.Intn(len(targets))], Message: "again"})
			return err
		},
	}

	for step := 0; step < 400; step++ {
		id := ids[rng.Intn(len(ids))]
		before := f.snapshot(t)
		err := commands[rng.Intn(len(commands))](id)
		after := f.snapshot(t)

		if err != nil {
			assert.Equal(t, KindNotFound, KindOf(err), "step %d: %v", step, err)
			assert.Equal(t, before, after, "failed command changed state at step %d", step)
		}

		require.NoError(t, after.CheckPartition())
		assert.Equal(t, len(ids), after.Total())
		for _, pid := range ids {
			q, found, err := after.Where(pid)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, q.Status(), f.status(t, pid), "step %d project %s", step, pid)
		}
	}

	overview, err := f.engine.Overview(ctx)
	require.NoError(t, err)
	sum := 0
	for _, n := range overview.Counts {
		sum += n
	}
	assert.Equal(t, len(ids), sum)
	assert.Equal(t, len(ids), overview.Total)
}

func TestErrorKindsMapToHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindUnauthorized:  403,
		KindValidation:    400,
		KindNotFound:      404,
		KindInvalidPath:   400,
		KindConflict:      409,
		KindInconsistency: 500,
	}
	for kind, status := range tests {
		err := &Error{Kind: kind, Err: ErrProjectNotInQueue}
		assert.Equal(t, status, err.HTTPStatus(), kind)
		assert.Equal(t, string(kind), err.ErrorKind())
	}
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
	assert.Equal(t, "approve land: project not in queue", withOp("approve land", newError(KindNotFound, ErrProjectNotInQueue)).Error())
}

func TestEngineClock(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return fixed }))
	id := f.register(t, "P")

	res, err := f.engine.ApproveLand(context.Background(), admin, TransitionRequest{ProjectID: id})
	require.NoError(t, err)
	assert.Equal(t, fixed, res.Entry.EnteredAt)
	assert.Equal(t, fixed, res.Project.UpdatedAt)
}
