package projects

import (
	"context"
)

// Repository is the Project Repository used by the workflow engine
type Repository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id string) (*Project, error)
	GetMany(ctx context.Context, ids []string) (map[string]*Project, error)
	Update(ctx context.Context, project *Project) error
	List(ctx context.Context, filter Filter) ([]*Project, error)
}

// HistoryRepository stores the transition audit trail
type HistoryRepository interface {
	AppendHistory(ctx context.Context, entry *StatusHistory) error
	ListHistory(ctx context.Context, projectID string) ([]*StatusHistory, error)
}
