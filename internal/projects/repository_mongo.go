package projects

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	projectsCollection = "projects"
	historyCollection  = "project_status_history"
)

// MongoRepository implements Repository and HistoryRepository on MongoDB.
// Calls made with a session context join that session's transaction.
type MongoRepository struct {
	projects *mongo.Collection
	history  *mongo.Collection
}

// NewMongoRepository creates a new MongoDB-backed repository
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		projects: db.Collection(projectsCollection),
		history:  db.Collection(historyCollection),
	}
}

// EnsureIndexes creates the secondary indexes used by listings.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.projects.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "verificationStatus", Value: 1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create project indexes: %w", err)
	}
	if _, err := r.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "changedAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create history indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, project *Project) error {
	_, err := r.projects.InsertOne(ctx, project)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	var project Project
	err := r.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (r *MongoRepository) GetMany(ctx context.Context, ids []string) (map[string]*Project, error) {
	out := make(map[string]*Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.projects.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	var list []*Project
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

func (r *MongoRepository) Update(ctx context.Context, project *Project) error {
	res, err := r.projects.ReplaceOne(ctx, bson.M{"_id": project.ID}, project)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, filter Filter) ([]*Project, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["verificationStatus"] = *filter.Status
	}
	if filter.OwnerID != "" {
		query["ownerId"] = filter.OwnerID
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cur, err := r.projects.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	list := []*Project{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return list, nil
}

func (r *MongoRepository) AppendHistory(ctx context.Context, entry *StatusHistory) error {
	if _, err := r.history.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}
	return nil
}

func (r *MongoRepository) ListHistory(ctx context.Context, projectID string) ([]*StatusHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "changedAt", Value: 1}})
	cur, err := r.history.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	list := []*StatusHistory{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode status history: %w", err)
	}
	return list, nil
}
