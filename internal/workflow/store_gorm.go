package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carbon-scribe/verification-registry/internal/projects"
)

// stateRow holds the workflow document as a single JSONB row.
type stateRow struct {
	ID        string         `gorm:"type:varchar(32);primaryKey"`
	Version   int64          `gorm:"not null"`
	Document  datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (stateRow) TableName() string {
	return "workflow_states"
}

// GormStore keeps the workflow document and project records in PostgreSQL.
// Transactions lock the document row, so concurrent commands serialize.
type GormStore struct {
	db   *gorm.DB
	repo *projects.GormRepository
	now  func() time.Time
}

// NewGormStore creates a PostgreSQL-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, repo: projects.NewGormRepository(db), now: time.Now}
}

// Migrate creates the workflow and project tables.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(&stateRow{}); err != nil {
		return fmt.Errorf("failed to migrate workflow table: %w", err)
	}
	return projects.AutoMigrate(s.db)
}

func (s *GormStore) Snapshot(ctx context.Context) (*State, error) {
	db := s.db.WithContext(ctx)
	if err := s.ensure(db); err != nil {
		return nil, err
	}
	var row stateRow
	if err := db.First(&row, "id = ?", StateID).Error; err != nil {
		return nil, fmt.Errorf("failed to load workflow state: %w", err)
	}
	return decodeRow(&row)
}

func (s *GormStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := s.ensure(s.db.WithContext(ctx)); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row stateRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", StateID).Error
		if err != nil {
			return fmt.Errorf("failed to lock workflow state: %w", err)
		}
		state, err := decodeRow(&row)
		if err != nil {
			return err
		}

		repo := projects.NewGormRepository(tx)
		if err := fn(ctx, &gormTx{state: state, repo: repo}); err != nil {
			return err
		}

		state.Version = row.Version + 1
		state.UpdatedAt = s.now().UTC()
		doc, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to encode workflow state: %w", err)
		}
		res := tx.Model(&stateRow{}).
			Where("id = ? AND version = ?", StateID, row.Version).
			Updates(map[string]any{
				"version":    state.Version,
				"document":   datatypes.JSON(doc),
				"updated_at": state.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to save workflow state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(KindConflict, ErrConcurrentUpdate)
		}
		return nil
	})
}

func (s *GormStore) Projects() projects.Repository {
	return s.repo
}

func (s *GormStore) History() projects.HistoryRepository {
	return s.repo
}

// ensure creates the document row once. Racing creators collapse onto the
// primary key.
func (s *GormStore) ensure(db *gorm.DB) error {
	var count int64
	if err := db.Model(&stateRow{}).Where("id = ?", StateID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check workflow state: %w", err)
	}
	if count > 0 {
		return nil
	}
	state := NewState()
	state.UpdatedAt = s.now().UTC()
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode workflow state: %w", err)
	}
	row := stateRow{ID: StateID, Document: datatypes.JSON(doc), UpdatedAt: state.UpdatedAt}
	err = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to create workflow state: %w", err)
	}
	return nil
}

func decodeRow(row *stateRow) (*State, error) {
	state := NewState()
	if err := json.Unmarshal(row.Document, state); err != nil {
		return nil, fmt.Errorf("failed to decode workflow state: %w", err)
	}
	state.ID = StateID
	state.Version = row.Version
	return state, nil
}

type gormTx struct {
	state *State
	repo  *projects.GormRepository
}

func (t *gormTx) State() *State                       { return t.state }
func (t *gormTx) Projects() projects.Repository       { return t.repo }
func (t *gormTx) History() projects.HistoryRepository { return t.repo }
