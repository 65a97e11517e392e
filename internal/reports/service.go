package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/reports/export"
	"carbon-scribe/verification-registry/internal/workflow"
)

// StageSource supplies the workflow data a report is built from. Export
// must read every queue from one snapshot.
type StageSource interface {
	Export(ctx context.Context) (*workflow.StageExport, error)
}

// Service builds and exports workflow reports
type Service struct {
	source StageSource
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new reports service
func NewService(source StageSource, logger *zap.Logger) *Service {
	return &Service{source: source, logger: logger, now: time.Now}
}

// Build collects the overview and every queue's entries in workflow order,
// all from the same committed snapshot.
func (s *Service) Build(ctx context.Context) (*WorkflowReport, error) {
	stages, err := s.source.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow stages: %w", err)
	}

	report := &WorkflowReport{GeneratedAt: s.now().UTC(), Overview: stages.Overview, Rows: []Row{}}
	for _, q := range workflow.AllQueues() {
		for i, item := range stages.Stages[q] {
			row := Row{
				Queue:              q,
				Position:           i + 1,
				ProjectID:          item.Entry.ProjectID,
				VerificationStatus: string(q.Status()),
				AssigneeID:         item.Entry.AssigneeID,
				Message:            item.Entry.Message,
				EnteredAt:          item.Entry.EnteredAt,
			}
			if p := item.Project; p != nil {
				row.Name = p.Name
				row.OwnerID = p.OwnerID
				row.AreaHectares = p.AreaHectares
				row.CarbonCredits = p.CarbonCredits
			}
			report.Rows = append(report.Rows, row)
		}
	}
	return report, nil
}

// Export writes the report in format to w.
func (s *Service) Export(ctx context.Context, format Format, w io.Writer) error {
	report, err := s.Build(ctx)
	if err != nil {
		return err
	}

	rows := make([][]any, len(report.Rows))
	for i, r := range report.Rows {
		rows[i] = r.values()
	}

	switch format {
	case FormatCSV:
		err = export.NewCSVExporter(w, export.DefaultCSVOptions()).WriteTable(entryColumns, rows)
	case FormatXLSX:
		err = s.writeWorkbook(report, rows, w)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to export workflow report: %w", err)
	}

	s.logger.Info("Workflow report exported",
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)))
	return nil
}

func (s *Service) writeWorkbook(report *WorkflowReport, rows [][]any, w io.Writer) error {
	xl, err := export.NewExcelExporter(export.DefaultExcelOptions())
	if err != nil {
		return err
	}
	defer xl.Close()

	summary := make([][]any, 0, len(report.Overview.Counts)+1)
	for _, q := range workflow.AllQueues() {
		summary = append(summary, []any{string(q), q.Path(), string(q.Status()), report.Overview.Counts[q]})
	}
	summary = append(summary, []any{"total", "", "", report.Overview.Total})

	if err := xl.AddSheet("Overview", overviewColumns, summary); err != nil {
		return err
	}
	if err := xl.AddSheet("Queue Entries", entryColumns, rows); err != nil {
		return err
	}
	return xl.WriteTo(w)
}
