package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderCertificate(doc export.Certificate) ([]byte, error)
}

// ExportService renders NOC registers and clearance certificates.
type ExportService struct {
	csv csvRenderer
	pdf pdfRenderer
	now func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(csv csvRenderer, pdf pdfRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, now: time.Now}
}

var registerColumns = []export.Column{
	{Key: "id", Title: "Request ID"},
	{Key: "roll", Title: "Roll Number"},
	{Key: "name", Title: "Student"},
	{Key: "course", Title: "Course"},
	{Key: "branch", Title: "Branch"},
	{Key: "year", Title: "Year"},
	{Key: "status", Title: "Status"},
	{Key: "raised_by", Title: "Raised By"},
	{Key: "vacating", Title: "Vacating Date"},
	{Key: "deactivated", Title: "Account Deactivated"},
	{Key: "created", Title: "Created At"},
	{Key: "updated", Title: "Updated At"},
}

// Register renders requests as a CSV register.
func (s *ExportService) Register(requests []models.NOCRequest) ([]byte, error) {
	rows := make([]map[string]string, 0, len(requests))
	for _, req := range requests {
		rows = append(rows, map[string]string{
			"id":          req.ID,
			"roll":        req.RollNumber,
			"name":        req.StudentName,
			"course":      req.Course,
			"branch":      req.Branch,
			"year":        req.Year,
			"status":      string(req.Status),
			"raised_by":   string(req.RaisedBy),
			"vacating":    formatDate(req.VacatingDate),
			"deactivated": strconv.FormatBool(req.StudentDeactivated),
			"created":     req.CreatedAt.UTC().Format(time.RFC3339),
			"updated":     req.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return s.csv.Render(export.Dataset{Columns: registerColumns, Rows: rows})
}

// Certificate renders the clearance certificate of an approved request. The checklist table
// shows the latest verification cycle.
func (s *ExportService) Certificate(req *models.NOCRequest) ([]byte, error) {
	if req == nil || req.Status != models.NOCStatusApproved {
		return nil, fmt.Errorf("certificate requires an approved request")
	}
	fields := []export.Field{
		{Label: "Student", Value: req.StudentName},
		{Label: "Roll Number", Value: req.RollNumber},
		{Label: "Course / Branch", Value: strings.Trim(req.Course+" / "+req.Branch, " /")},
		{Label: "Year", Value: req.Year},
		{Label: "Academic Year", Value: req.AcademicYear},
		{Label: "Reason", Value: req.Reason},
	}
	if req.VacatingDate != nil {
		fields = append(fields, export.Field{Label: "Vacating Date", Value: formatDate(req.VacatingDate)})
	}
	if req.WardenRemarks != nil {
		fields = append(fields, export.Field{Label: "Warden Remarks", Value: *req.WardenRemarks})
	}
	if req.AdminRemarks != nil {
		fields = append(fields, export.Field{Label: "Admin Remarks", Value: *req.AdminRemarks})
	}

	latest := req.ChecklistResponses.LatestCycle()
	rows := make([]map[string]string, 0, len(req.ChecklistResponses))
	for _, resp := range req.ChecklistResponses {
		if resp.Cycle != latest {
			continue
		}
		row := map[string]string{"item": resp.Description, "amount": "-", "remarks": "-"}
		if resp.Amount != nil {
			row["amount"] = strconv.FormatFloat(*resp.Amount, 'f', 2, 64)
		}
		if resp.Remarks != nil {
			row["remarks"] = *resp.Remarks
		}
		rows = append(rows, row)
	}

	return s.pdf.RenderCertificate(export.Certificate{
		Title:     "Hostel No Objection Certificate",
		Subtitle:  "Exit clearance",
		Reference: req.ID,
		Fields:    fields,
		Table: export.Dataset{
			Columns: []export.Column{{Key: "item", Title: "Checklist Item"}, {Key: "amount", Title: "Amount"}, {Key: "remarks", Title: "Remarks"}},
			Rows:    rows,
		},
		Footer: fmt.Sprintf("Issued %s. The student account has been deactivated.", s.now().UTC().Format("2006-01-02")),
	})
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
