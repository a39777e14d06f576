package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hris-leave-api/internal/dto"
	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/export"
)

var leaveExportHeaders = []string{"Leave Type", "Start Date", "End Date", "Days", "Status", "Approver", "Decided At", "Reason", "Filed At"}

var leaveExportWeights = map[string]float64{
	"Leave Type": 1.4,
	"Days":       0.5,
	"Decided At": 1.6,
	"Reason":     2.5,
	"Filed At":   1.6,
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered export ready to be streamed to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// LeaveExportService renders an employee's leave history as CSV or PDF.
type LeaveExportService struct {
	requests leaveHistoryReader
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewLeaveExportService constructs the service. Nil renderers fall back to pkg/export.
func NewLeaveExportService(requests leaveHistoryReader, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *LeaveExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &LeaveExportService{requests: requests, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// ExportEmployeeHistory renders every request filed by the employee, newest first.
func (s *LeaveExportService) ExportEmployeeHistory(ctx context.Context, employeeID string, format dto.LeaveExportFormat) (*ExportFile, error) {
	if format == "" {
		format = dto.LeaveExportCSV
	}
	if format != dto.LeaveExportCSV && format != dto.LeaveExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	history, err := s.requests.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave history")
	}

	dataset := buildLeaveDataset(history)
	stamp := s.now().UTC().Format("20060102_150405")
	file := &ExportFile{Filename: fmt.Sprintf("leave_history_%s_%s.%s", sanitizeFilename(employeeID), stamp, format)}
	switch format {
	case dto.LeaveExportPDF:
		file.ContentType = "application/pdf"
		file.Content, err = s.pdf.Render(dataset, "Leave History")
	default:
		file.ContentType = "text/csv"
		file.Content, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render leave export")
	}
	s.logger.Debug("leave history exported", zap.String("employee_id", employeeID), zap.String("format", string(format)), zap.Int("rows", len(history)))
	return file, nil
}

func buildLeaveDataset(history []models.LeaveRequest) export.Dataset {
	rows := make([]map[string]string, 0, len(history))
	for _, req := range history {
		var decidedAt *time.Time
		switch req.Status {
		case models.LeaveStatusApproved:
			decidedAt = req.ApprovedAt
		case models.LeaveStatusRejected:
			decidedAt = req.RejectedAt
		}
		rows = append(rows, map[string]string{
			"Leave Type": leaveLabel(req.LeaveType),
			"Start Date": req.StartDate.Format(dateLayout),
			"End Date":   req.EndDate.Format(dateLayout),
			"Days":       fmt.Sprintf("%d", req.TotalDays),
			"Status":     string(req.Status),
			"Approver":   deref(req.ApproverName),
			"Decided At": formatExportTime(decidedAt),
			"Reason":     req.Reason,
			"Filed At":   req.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: leaveExportHeaders, Rows: rows, Weights: leaveExportWeights}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
