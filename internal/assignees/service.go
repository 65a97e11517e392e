package assignees

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory answers whether an NGO or drone operator can take on work
type Directory struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewDirectory creates a new assignee directory
func NewDirectory(repo Repository, logger *zap.Logger) *Directory {
	return &Directory{repo: repo, logger: logger, now: time.Now}
}

// Lookup returns an active assignee of the given kind.
func (d *Directory) Lookup(ctx context.Context, kind Kind, id string) (*Assignee, error) {
	assignee, err := d.repo.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !assignee.Active {
		return nil, ErrInactive
	}
	return assignee, nil
}

// List returns assignees, optionally narrowed to one kind.
func (d *Directory) List(ctx context.Context, kind Kind, activeOnly bool) ([]*Assignee, error) {
	return d.repo.List(ctx, kind, activeOnly)
}

// Register adds or updates an assignee. An empty ID gets a generated one.
func (d *Directory) Register(ctx context.Context, assignee *Assignee) error {
	assignee.Name = strings.TrimSpace(assignee.Name)
	if !assignee.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, assignee.Kind)
	}
	if assignee.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if assignee.ID == "" {
		assignee.ID = uuid.New().String()
	}
	if assignee.CreatedAt.IsZero() {
		assignee.CreatedAt = d.now().UTC()
	}
	if err := d.repo.Upsert(ctx, assignee); err != nil {
		return err
	}
	d.logger.Info("Assignee registered",
		zap.String("assignee_id", assignee.ID),
		zap.String("kind", string(assignee.Kind)),
		zap.Bool("active", assignee.Active))
	return nil
}
