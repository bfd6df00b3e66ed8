package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NOCStatus captures workflow states for exit-clearance requests.
type NOCStatus string

const (
	NOCStatusPending           NOCStatus = "PENDING"
	NOCStatusWardenVerified    NOCStatus = "WARDEN_VERIFIED"
	NOCStatusSentForCorrection NOCStatus = "SENT_FOR_CORRECTION"
	NOCStatusApproved          NOCStatus = "APPROVED"
	NOCStatusRejected          NOCStatus = "REJECTED"
)

// NOCStatuses lists every status in workflow order.
var NOCStatuses = []NOCStatus{
	NOCStatusPending,
	NOCStatusWardenVerified,
	NOCStatusSentForCorrection,
	NOCStatusApproved,
	NOCStatusRejected,
}

// Valid reports whether s is a known status.
func (s NOCStatus) Valid() bool {
	switch s {
	case NOCStatusPending, NOCStatusWardenVerified, NOCStatusSentForCorrection, NOCStatusApproved, NOCStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s NOCStatus) Terminal() bool {
	switch s {
	case NOCStatusApproved, NOCStatusRejected:
		return true
	case NOCStatusPending, NOCStatusWardenVerified, NOCStatusSentForCorrection:
		return false
	}
	return false
}

// NOCRaisedBy records who opened the request.
type NOCRaisedBy string

const (
	NOCRaisedByStudent NOCRaisedBy = "STUDENT"
	NOCRaisedByWarden  NOCRaisedBy = "WARDEN"
)

// NOCAction enumerates the operations the workflow accepts.
type NOCAction string

const (
	NOCActionCreate            NOCAction = "CREATE"
	NOCActionDelete            NOCAction = "DELETE"
	NOCActionVerify            NOCAction = "VERIFY"
	NOCActionWardenReject      NOCAction = "WARDEN_REJECT"
	NOCActionApprove           NOCAction = "APPROVE"
	NOCActionSendForCorrection NOCAction = "SEND_FOR_CORRECTION"
	NOCActionAdminReject       NOCAction = "ADMIN_REJECT"
	NOCActionReverify          NOCAction = "REVERIFY"
)

// ChecklistResponse is a warden's answer to one checklist item, snapshotted at verification
// time so later edits or deletions of the item do not change history.
type ChecklistResponse struct {
	ChecklistItemID string   `json:"checklistItemId"`
	Description     string   `json:"description"`
	Amount          *float64 `json:"amount,omitempty"`
	Remarks         *string  `json:"remarks,omitempty"`
	Cycle           int      `json:"cycle"`
}

// ChecklistResponses is stored as a JSONB document on the request row.
type ChecklistResponses []ChecklistResponse

// Value implements driver.Valuer.
func (r ChecklistResponses) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ChecklistResponses) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = ChecklistResponses{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan checklist responses: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*r = ChecklistResponses{}
		return nil
	}
	return json.Unmarshal(raw, r)
}

// LatestCycle returns the highest verification cycle recorded, or zero when none exists.
func (r ChecklistResponses) LatestCycle() int {
	latest := 0
	for _, resp := range r {
		if resp.Cycle > latest {
			latest = resp.Cycle
		}
	}
	return latest
}

// NOCRequest is a student's hostel-exit clearance request.
type NOCRequest struct {
	ID        string `db:"id" json:"id"`
	StudentID string `db:"student_id" json:"studentId"`

	StudentName  string `db:"student_name" json:"studentName"`
	RollNumber   string `db:"roll_number" json:"rollNumber"`
	Course       string `db:"course" json:"course"`
	Branch       string `db:"branch" json:"branch"`
	Year         string `db:"year" json:"year"`
	AcademicYear string `db:"academic_year" json:"academicYear"`

	Reason       string     `db:"reason" json:"reason"`
	VacatingDate *time.Time `db:"vacating_date" json:"vacatingDate,omitempty"`

	Status    NOCStatus   `db:"status" json:"status"`
	RaisedBy  NOCRaisedBy `db:"raised_by" json:"raisedBy"`
	CreatedBy string      `db:"created_by" json:"createdBy"`

	VerifiedBy *string `db:"verified_by" json:"verifiedBy,omitempty"`
	ReviewedBy *string `db:"reviewed_by" json:"reviewedBy,omitempty"`

	WardenRemarks   *string `db:"warden_remarks" json:"wardenRemarks,omitempty"`
	AdminRemarks    *string `db:"admin_remarks" json:"adminRemarks,omitempty"`
	RejectionReason *string `db:"rejection_reason" json:"rejectionReason,omitempty"`

	ChecklistResponses ChecklistResponses `db:"checklist_responses" json:"checklistResponses"`
	StudentDeactivated bool               `db:"student_deactivated" json:"studentDeactivated"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so decisions never alias the stored entity.
func (r *NOCRequest) Clone() *NOCRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.VacatingDate = cloneTime(r.VacatingDate)
	c.VerifiedBy = cloneString(r.VerifiedBy)
	c.ReviewedBy = cloneString(r.ReviewedBy)
	c.WardenRemarks = cloneString(r.WardenRemarks)
	c.AdminRemarks = cloneString(r.AdminRemarks)
	c.RejectionReason = cloneString(r.RejectionReason)
	if r.ChecklistResponses != nil {
		c.ChecklistResponses = make(ChecklistResponses, len(r.ChecklistResponses))
		for i, resp := range r.ChecklistResponses {
			resp.Amount = cloneFloat(resp.Amount)
			resp.Remarks = cloneString(resp.Remarks)
			c.ChecklistResponses[i] = resp
		}
	}
	return &c
}

// NOCFilter constrains listing queries.
type NOCFilter struct {
	Status    []NOCStatus
	StudentID string
	WardenID  string
	Limit     int
	Offset    int
}

// NOCStatusHistory is one row of the append-only transition log.
type NOCStatusHistory struct {
	ID         string     `db:"id" json:"id"`
	RequestID  string     `db:"request_id" json:"requestId"`
	FromStatus *NOCStatus `db:"from_status" json:"fromStatus,omitempty"`
	ToStatus   NOCStatus  `db:"to_status" json:"toStatus"`
	Action     NOCAction  `db:"action" json:"action"`
	ActorID    string     `db:"actor_id" json:"actorId"`
	ActorRole  UserRole   `db:"actor_role" json:"actorRole"`
	Remarks    *string    `db:"remarks" json:"remarks,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
