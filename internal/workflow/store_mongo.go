package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/projects"
)

const statesCollection = "workflow_states"

// DefaultMaxCommitRetries bounds optimistic commit attempts on MongoDB.
const DefaultMaxCommitRetries = 5

// MongoStore keeps the workflow document in MongoDB. Commits are guarded by
// the document version and retried when another writer got there first.
type MongoStore struct {
	client     *mongo.Client
	states     *mongo.Collection
	repo       *projects.MongoRepository
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewMongoStore creates a MongoDB-backed store. Transactions need a replica set.
func NewMongoStore(client *mongo.Client, dbName string, maxRetries int, logger *zap.Logger) *MongoStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxCommitRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db := client.Database(dbName)
	return &MongoStore{
		client:     client,
		states:     db.Collection(statesCollection),
		repo:       projects.NewMongoRepository(db),
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// EnsureIndexes prepares the project collections.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	return s.repo.EnsureIndexes(ctx)
}

func (s *MongoStore) Snapshot(ctx context.Context) (*State, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s.load(ctx)
}

func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			state, err := s.load(sc)
			if err != nil {
				return nil, err
			}
			prev := state.Version
			if err := fn(sc, &mongoTx{state: state, repo: s.repo}); err != nil {
				return nil, err
			}

			state.Version = prev + 1
			state.UpdatedAt = s.now().UTC()
			res, err := s.states.ReplaceOne(sc, bson.M{"_id": StateID, "version": prev}, state)
			if err != nil {
				return nil, fmt.Errorf("failed to save workflow state: %w", err)
			}
			if res.MatchedCount == 0 {
				return nil, newError(KindConflict, ErrConcurrentUpdate)
			}
			return nil, nil
		})
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		s.logger.Debug("Workflow commit lost a race, retrying", zap.Int("attempt", attempt))
	}
	return err
}

func (s *MongoStore) Projects() projects.Repository {
	return s.repo
}

func (s *MongoStore) History() projects.HistoryRepository {
	return s.repo
}

func (s *MongoStore) load(ctx context.Context) (*State, error) {
	state := NewState()
	if err := s.states.FindOne(ctx, bson.M{"_id": StateID}).Decode(state); err != nil {
		return nil, fmt.Errorf("failed to load workflow state: %w", err)
	}
	return state, nil
}

// ensure creates the document on first use with an upsert, so concurrent
// first callers still produce a single document.
func (s *MongoStore) ensure(ctx context.Context) error {
	fields, err := initialFields(s.now().UTC())
	if err != nil {
		return err
	}

	_, err = s.states.UpdateOne(ctx,
		bson.M{"_id": StateID},
		bson.M{"$setOnInsert": fields},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to create workflow state: %w", err)
	}
	return nil
}

// initialFields is the $setOnInsert body of an empty document. The _id comes
// from the upsert filter and must not be set twice.
func initialFields(now time.Time) (bson.M, error) {
	initial := NewState()
	initial.UpdatedAt = now
	raw, err := bson.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow state: %w", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode workflow state: %w", err)
	}
	delete(fields, "_id")
	return fields, nil
}

type mongoTx struct {
	state *State
	repo  *projects.MongoRepository
}

func (t *mongoTx) State() *State                       { return t.state }
func (t *mongoTx) Projects() projects.Repository       { return t.repo }
func (t *mongoTx) History() projects.HistoryRepository { return t.repo }
