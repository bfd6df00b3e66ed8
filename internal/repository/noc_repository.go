package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

var (
	// ErrStaleVersion reports that the row changed between load and write.
	ErrStaleVersion = errors.New("noc request version is stale")
	// ErrOpenRequestExists reports that the student already has a non-terminal request.
	ErrOpenRequestExists = errors.New("student already has an open noc request")
)

const uniqueViolation = "23505"

const nocColumns = `id, student_id, student_name, roll_number, course, branch, year, academic_year,
       reason, vacating_date, status, raised_by, created_by, verified_by, reviewed_by,
       warden_remarks, admin_remarks, rejection_reason, checklist_responses, student_deactivated,
       version, created_at, updated_at`

// cohortClause restricts rows to students inside one of the warden's (hostel, gender) cohorts.
const cohortClause = `student_id IN (SELECT s.id FROM students s
       JOIN warden_assignments wa ON wa.hostel = s.hostel AND wa.gender = s.gender
       WHERE wa.warden_id = $%d)`

// NOCRepository persists NOC requests and their status history.
type NOCRepository struct {
	db *sqlx.DB
}

// NewNOCRepository constructs the repository.
func NewNOCRepository(db *sqlx.DB) *NOCRepository {
	return &NOCRepository{db: db}
}

// Create inserts a new request together with its initial history row.
func (r *NOCRepository) Create(ctx context.Context, req *models.NOCRequest, history *models.NOCStatusHistory) error {
	now := time.Now().UTC()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.NOCStatusPending
	}
	if req.ChecklistResponses == nil {
		req.ChecklistResponses = models.ChecklistResponses{}
	}
	req.Version = 1
	req.CreatedAt = now
	req.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create noc tx: %w", err)
	}
	const query = `INSERT INTO noc_requests
	(id, student_id, student_name, roll_number, course, branch, year, academic_year, reason, vacating_date,
	 status, raised_by, created_by, checklist_responses, student_deactivated, version, created_at, updated_at)
	VALUES (:id, :student_id, :student_name, :roll_number, :course, :branch, :year, :academic_year, :reason, :vacating_date,
	 :status, :raised_by, :created_by, :checklist_responses, :student_deactivated, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
		_ = tx.Rollback()
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrOpenRequestExists
		}
		return fmt.Errorf("create noc request: %w", err)
	}
	if history != nil {
		history.RequestID = req.ID
		if err := insertHistory(ctx, tx, history, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create noc tx: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *NOCRepository) GetByID(ctx context.Context, id string) (*models.NOCRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM noc_requests WHERE id = $1`, nocColumns)
	var req models.NOCRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first, with the total match count.
func (r *NOCRepository) List(ctx context.Context, filter models.NOCFilter) ([]models.NOCRequest, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			values[i] = string(status)
		}
		args = append(args, pq.Array(values))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.WardenID != "" {
		args = append(args, filter.WardenID)
		conditions = append(conditions, fmt.Sprintf(cohortClause, len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM noc_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count noc requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM noc_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d", nocColumns, where, limit, offset)

	var requests []models.NOCRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list noc requests: %w", err)
	}
	return requests, total, nil
}

// HasOpenRequest reports whether the student has a request that is not yet approved or rejected.
func (r *NOCRepository) HasOpenRequest(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM noc_requests WHERE student_id = $1 AND status NOT IN ('APPROVED', 'REJECTED'))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		return false, fmt.Errorf("check open noc request: %w", err)
	}
	return exists, nil
}

// ApplyTransition persists next guarded by the version and status it was loaded with, then
// appends the history row in the same transaction. On success next.Version is advanced.
func (r *NOCRepository) ApplyTransition(ctx context.Context, next *models.NOCRequest, fromStatus models.NOCStatus, history *models.NOCStatusHistory) error {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin noc transition tx: %w", err)
	}
	const query = `UPDATE noc_requests SET
	status = :status,
	verified_by = :verified_by,
	reviewed_by = :reviewed_by,
	warden_remarks = :warden_remarks,
	admin_remarks = :admin_remarks,
	rejection_reason = :rejection_reason,
	checklist_responses = :checklist_responses,
	student_deactivated = student_deactivated OR :student_deactivated,
	version = version + 1,
	updated_at = :updated_at
	WHERE id = :id AND version = :version AND status = :from_status`
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                  next.ID,
		"status":              next.Status,
		"verified_by":         next.VerifiedBy,
		"reviewed_by":         next.ReviewedBy,
		"warden_remarks":      next.WardenRemarks,
		"admin_remarks":       next.AdminRemarks,
		"rejection_reason":    next.RejectionReason,
		"checklist_responses": next.ChecklistResponses,
		"student_deactivated": next.StudentDeactivated,
		"updated_at":          now,
		"version":             next.Version,
		"from_status":         fromStatus,
	})
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update noc request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("check noc update rows: %w", err)
	}
	if rows == 0 {
		_ = tx.Rollback()
		return ErrStaleVersion
	}
	if history != nil {
		if err := insertHistory(ctx, tx, history, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit noc transition tx: %w", err)
	}
	next.Version++
	next.UpdatedAt = now
	return nil
}

// DeletePending removes a request that is still pending at the expected version.
func (r *NOCRepository) DeletePending(ctx context.Context, id string, version int) error {
	const query = `DELETE FROM noc_requests WHERE id = $1 AND version = $2 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, version)
	if err != nil {
		return fmt.Errorf("delete noc request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check noc delete rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleVersion
	}
	return nil
}

// ListHistory returns the transition log for a request, oldest first.
func (r *NOCRepository) ListHistory(ctx context.Context, requestID string) ([]models.NOCStatusHistory, error) {
	const query = `SELECT id, request_id, from_status, to_status, action, actor_id, actor_role, remarks, created_at
	FROM noc_status_history WHERE request_id = $1 ORDER BY created_at ASC, id ASC`
	var history []models.NOCStatusHistory
	if err := r.db.SelectContext(ctx, &history, query, requestID); err != nil {
		return nil, fmt.Errorf("list noc history: %w", err)
	}
	return history, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, history *models.NOCStatusHistory, now time.Time) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	history.CreatedAt = now
	const query = `INSERT INTO noc_status_history
	(id, request_id, from_status, to_status, action, actor_id, actor_role, remarks, created_at)
	VALUES (:id, :request_id, :from_status, :to_status, :action, :actor_id, :actor_role, :remarks, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, history); err != nil {
		return fmt.Errorf("insert noc history: %w", err)
	}
	return nil
}
