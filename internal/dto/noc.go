package dto

import "github.com/noah-isme/hostel-noc-api/internal/models"

// CreateNOCRequest is the payload for raising a new exit-clearance request. Students omit
// StudentID; wardens raising on a student's behalf must provide it.
type CreateNOCRequest struct {
	StudentID    string `json:"studentId" validate:"omitempty,max=64"`
	Reason       string `json:"reason" validate:"required"`
	VacatingDate string `json:"vacatingDate" validate:"omitempty,datetime=2006-01-02"`
}

// ChecklistResponseInput is one warden answer to a checklist item.
type ChecklistResponseInput struct {
	ChecklistItemID string   `json:"checklistItemId" validate:"required"`
	Amount          *float64 `json:"amount" validate:"omitempty,gte=0"`
	Remarks         *string  `json:"remarks" validate:"omitempty,max=500"`
}

// VerifyNOCRequest carries the physical verification result.
type VerifyNOCRequest struct {
	ChecklistResponses []ChecklistResponseInput `json:"checklistResponses" validate:"required,min=1,dive"`
	WardenRemarks      string                   `json:"wardenRemarks" validate:"omitempty,max=1000"`
}

// RejectNOCRequest carries the mandatory rejection reason.
type RejectNOCRequest struct {
	RejectionReason string `json:"rejectionReason" validate:"required,max=1000"`
}

// ApproveNOCRequest carries optional admin remarks.
type ApproveNOCRequest struct {
	AdminRemarks string `json:"adminRemarks" validate:"omitempty,max=1000"`
}

// CorrectionNOCRequest asks the warden or student to correct the request.
type CorrectionNOCRequest struct {
	AdminRemarks string `json:"adminRemarks" validate:"required,max=1000"`
}

// NOCQuery mirrors supported listing filters.
type NOCQuery struct {
	Status   []models.NOCStatus
	Page     int
	PageSize int
}

// NOCDetail enriches a request with the actions available to the caller.
type NOCDetail struct {
	*models.NOCRequest
	AllowedActions []models.NOCAction `json:"allowedActions"`
}

// EligibleStudentQuery filters students a warden may raise a request for.
type EligibleStudentQuery struct {
	Search string `form:"q"`
	Limit  int    `form:"limit"`
}
