package projects

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormRepository implements Repository and HistoryRepository on PostgreSQL via gorm
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new gorm-backed repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the project tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Project{}, &StatusHistory{}); err != nil {
		return fmt.Errorf("failed to migrate project tables: %w", err)
	}
	return nil
}

func (r *GormRepository) Create(ctx context.Context, project *Project) error {
	err := r.db.WithContext(ctx).Create(project).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *GormRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (r *GormRepository) GetMany(ctx context.Context, ids []string) (map[string]*Project, error) {
	out := make(map[string]*Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []*Project
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

func (r *GormRepository) Update(ctx context.Context, project *Project) error {
	res := r.db.WithContext(ctx).
		Model(&Project{}).
		Where("id = ?", project.ID).
		Select("name", "description", "boundary", "area_hectares", "verification_status", "carbon_credits", "updated_at").
		Updates(project)
	if res.Error != nil {
		return fmt.Errorf("failed to update project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) List(ctx context.Context, filter Filter) ([]*Project, error) {
	q := r.db.WithContext(ctx).Model(&Project{})
	if filter.Status != nil {
		q = q.Where("verification_status = ?", *filter.Status)
	}
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var list []*Project
	if err := q.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return list, nil
}

func (r *GormRepository) AppendHistory(ctx context.Context, entry *StatusHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}
	return nil
}

func (r *GormRepository) ListHistory(ctx context.Context, projectID string) ([]*StatusHistory, error) {
	var list []*StatusHistory
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("changed_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	return list, nil
}
