package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var nocRowColumns = []string{
	"id", "student_id", "student_name", "roll_number", "course", "branch", "year", "academic_year",
	"reason", "vacating_date", "status", "raised_by", "created_by", "verified_by", "reviewed_by",
	"warden_remarks", "admin_remarks", "rejection_reason", "checklist_responses", "student_deactivated",
	"version", "created_at", "updated_at",
}

func addNOCRow(rows *sqlmock.Rows, id, studentID string, status models.NOCStatus) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, studentID, "Asha Rao", "21CS042", "B.Tech", "CSE", "4", "2024-25",
		"Need to vacate due to job offer", nil, string(status), "STUDENT", studentID, nil, nil,
		nil, nil, nil, []byte(`[{"checklistItemId":"item-a","description":"Room key","amount":500,"cycle":1}]`), false,
		3, now, now)
}

func TestNOCRepositoryCreateWritesHistory(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO noc_requests")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO noc_status_history")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req := &models.NOCRequest{StudentID: "student-1", Reason: "Need to vacate due to job offer", RaisedBy: models.NOCRaisedByStudent}
	history := &models.NOCStatusHistory{ToStatus: models.NOCStatusPending, Action: models.NOCActionCreate, ActorID: "student-1", ActorRole: models.RoleStudent}
	require.NoError(t, repo.Create(context.Background(), req, history))

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, 1, req.Version)
	assert.Equal(t, models.NOCStatusPending, req.Status)
	assert.Equal(t, req.ID, history.RequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryCreateDetectsOpenRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO noc_requests")).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.NOCRequest{StudentID: "student-1"}, nil)
	assert.ErrorIs(t, err, ErrOpenRequestExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryGetByIDScansResponses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM noc_requests WHERE id = $1")).
		WithArgs("noc-1").
		WillReturnRows(addNOCRow(sqlmock.NewRows(nocRowColumns), "noc-1", "student-1", models.NOCStatusWardenVerified))

	req, err := repo.GetByID(context.Background(), "noc-1")
	require.NoError(t, err)
	assert.Equal(t, models.NOCStatusWardenVerified, req.Status)
	require.Len(t, req.ChecklistResponses, 1)
	assert.Equal(t, 500.0, *req.ChecklistResponses[0].Amount)
	assert.Equal(t, 3, req.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryListScopesWardenCohort(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM noc_requests WHERE status = ANY($1) AND student_id IN")).
		WithArgs(sqlmock.AnyArg(), "warden-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("JOIN warden_assignments wa ON wa.hostel = s.hostel")).
		WithArgs(sqlmock.AnyArg(), "warden-1").
		WillReturnRows(addNOCRow(sqlmock.NewRows(nocRowColumns), "noc-1", "student-1", models.NOCStatusPending))

	list, total, err := repo.List(context.Background(), models.NOCFilter{
		Status:   []models.NOCStatus{models.NOCStatusPending},
		WardenID: "warden-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "noc-1", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryApplyTransition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("student_deactivated = student_deactivated OR")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO noc_status_history")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	next := &models.NOCRequest{ID: "noc-1", Status: models.NOCStatusApproved, StudentDeactivated: true, Version: 2}
	from := models.NOCStatusWardenVerified
	history := &models.NOCStatusHistory{RequestID: "noc-1", FromStatus: &from, ToStatus: models.NOCStatusApproved, Action: models.NOCActionApprove, ActorID: "admin-1", ActorRole: models.RoleAdmin}
	require.NoError(t, repo.ApplyTransition(context.Background(), next, from, history))

	assert.Equal(t, 3, next.Version)
	assert.NotEmpty(t, history.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryApplyTransitionStaleVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE noc_requests SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	next := &models.NOCRequest{ID: "noc-1", Status: models.NOCStatusRejected, Version: 1}
	err := repo.ApplyTransition(context.Background(), next, models.NOCStatusPending, nil)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Equal(t, 1, next.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryDeletePending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM noc_requests WHERE id = $1 AND version = $2 AND status = 'PENDING'")).
		WithArgs("noc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeletePending(context.Background(), "noc-1", 1))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM noc_requests")).
		WithArgs("noc-2", 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeletePending(context.Background(), "noc-2", 4), ErrStaleVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNOCRepositoryHistoryAndOpenCheck(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNOCRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM noc_requests WHERE student_id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	open, err := repo.HasOpenRequest(context.Background(), "student-1")
	require.NoError(t, err)
	assert.True(t, open)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM noc_status_history WHERE request_id = $1")).
		WithArgs("noc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "from_status", "to_status", "action", "actor_id", "actor_role", "remarks", "created_at"}).
			AddRow("h-1", "noc-1", nil, "PENDING", "CREATE", "student-1", "STUDENT", nil, now).
			AddRow("h-2", "noc-1", "PENDING", "WARDEN_VERIFIED", "VERIFY", "warden-1", "WARDEN", "Room cleared", now))
	history, err := repo.ListHistory(context.Background(), "noc-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, models.NOCStatusPending, *history[1].FromStatus)
	assert.Equal(t, "Room cleared", *history[1].Remarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}
