package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"carbon-scribe/verification-registry/pkg/geospatial"
	"carbon-scribe/verification-registry/pkg/workflows"
)

// VerificationStatus mirrors the workflow stage a project occupies.
type VerificationStatus string

const (
	StatusPending              VerificationStatus = workflows.StatusPending
	StatusLandApproval         VerificationStatus = workflows.StatusLandApproval
	StatusNGO                  VerificationStatus = workflows.StatusNGO
	StatusDrones               VerificationStatus = workflows.StatusDrones
	StatusAdminApprovalPending VerificationStatus = workflows.StatusAdminApprovalPending
	StatusApproved             VerificationStatus = workflows.StatusApproved
	StatusRejected             VerificationStatus = workflows.StatusRejected
)

var (
	ErrNotFound  = errors.New("project not found")
	ErrDuplicate = errors.New("project already exists")
)

// Project represents a carbon project submitted for verification
type Project struct {
	ID                 string             `gorm:"type:varchar(64);primaryKey" json:"projectId" bson:"_id"`
	Name               string             `gorm:"not null" json:"name" bson:"name"`
	Description        string             `json:"description" bson:"description"`
	OwnerID            string             `gorm:"type:varchar(64);not null;index" json:"ownerId" bson:"ownerId"`
	Boundary           datatypes.JSON     `json:"boundary,omitempty" bson:"boundary,omitempty"` // GeoJSON
	AreaHectares       float64            `json:"areaHectares" bson:"areaHectares"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(32);not null;default:'pending';index" json:"verificationStatus" bson:"verificationStatus"`
	CarbonCredits      *float64           `json:"carbonCredits,omitempty" bson:"carbonCredits,omitempty"`
	CreatedAt          time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	if p.Boundary != nil {
		c.Boundary = append(datatypes.JSON(nil), p.Boundary...)
	}
	if p.CarbonCredits != nil {
		credits := *p.CarbonCredits
		c.CarbonCredits = &credits
	}
	return &c
}

// StatusHistory tracks every committed workflow transition of a project
type StatusHistory struct {
	ID         string             `gorm:"type:varchar(64);primaryKey" json:"id" bson:"_id"`
	ProjectID  string             `gorm:"type:varchar(64);not null;index" json:"projectId" bson:"projectId"`
	Command    string             `gorm:"not null" json:"command" bson:"command"`
	FromQueue  string             `json:"fromQueue,omitempty" bson:"fromQueue,omitempty"`
	ToQueue    string             `gorm:"not null" json:"toQueue" bson:"toQueue"`
	Status     VerificationStatus `gorm:"type:varchar(32);not null" json:"status" bson:"status"`
	Message    string             `json:"message,omitempty" bson:"message,omitempty"`
	AssigneeID string             `json:"assigneeId,omitempty" bson:"assigneeId,omitempty"`
	ChangedBy  string             `gorm:"type:varchar(64);not null" json:"changedBy" bson:"changedBy"`
	ChangedAt  time.Time          `json:"changedAt" bson:"changedAt"`
}

func (StatusHistory) TableName() string {
	return "project_status_histories"
}

// Filter narrows project listings
type Filter struct {
	Status  *VerificationStatus
	OwnerID string
	Limit   int
	Offset  int
}

// RegisterRequest is the payload a project developer submits.
type RegisterRequest struct {
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	Boundary     json.RawMessage `json:"boundary,omitempty"`
	AreaHectares float64         `json:"areaHectares"`
}

// NewProject validates a registration and builds the pending project record.
func NewProject(req RegisterRequest, ownerID string, now time.Time) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	if ownerID == "" {
		return nil, errors.New("owner is required")
	}
	if req.AreaHectares < 0 {
		return nil, errors.New("areaHectares must not be negative")
	}

	project := &Project{
		ID:                 uuid.New().String(),
		Name:               name,
		Description:        req.Description,
		OwnerID:            ownerID,
		AreaHectares:       req.AreaHectares,
		VerificationStatus: StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if len(req.Boundary) > 0 && string(req.Boundary) != "null" {
		geom, err := geospatial.ValidateBoundary(string(req.Boundary))
		if err != nil {
			return nil, fmt.Errorf("invalid boundary: %w", err)
		}
		project.Boundary = datatypes.JSON(req.Boundary)

		// Calculate area if not provided
		if req.AreaHectares == 0 {
			project.AreaHectares = geospatial.ConvertToHectares(geospatial.CalculateArea(geom))
		}
	}

	return project, nil
}
