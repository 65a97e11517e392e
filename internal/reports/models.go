package reports

import (
	"time"

	"carbon-scribe/verification-registry/internal/workflow"
)

// Format is an export file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Row is one queue entry in the workflow report
type Row struct {
	Queue              workflow.Queue `json:"queue"`
	Position           int            `json:"position"`
	ProjectID          string         `json:"projectId"`
	Name               string         `json:"name"`
	OwnerID            string         `json:"ownerId"`
	VerificationStatus string         `json:"verificationStatus"`
	AssigneeID         string         `json:"assigneeId,omitempty"`
	Message            string         `json:"message,omitempty"`
	EnteredAt          time.Time      `json:"enteredAt"`
	AreaHectares       float64        `json:"areaHectares"`
	CarbonCredits      *float64       `json:"carbonCredits,omitempty"`
}

// WorkflowReport is a point-in-time export of every queue
type WorkflowReport struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Overview    *workflow.Overview `json:"overview"`
	Rows        []Row              `json:"rows"`
}

var entryColumns = []string{
	"Queue", "Position", "Project ID", "Name", "Owner", "Status",
	"Assignee", "Message", "Entered At", "Area (ha)", "Carbon Credits",
}

var overviewColumns = []string{"Queue", "Path", "Status", "Projects"}

func (r Row) values() []any {
	return []any{
		string(r.Queue), r.Position, r.ProjectID, r.Name, r.OwnerID, r.VerificationStatus,
		r.AssigneeID, r.Message, r.EnteredAt, r.AreaHectares, r.CarbonCredits,
	}
}
