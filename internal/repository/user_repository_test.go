package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

func TestUserRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, role, active, created_at, updated_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("warden-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role", "active", "created_at", "updated_at"}).
			AddRow("warden-1", "warden@hostel.test", "Warden One", string(models.RoleWarden), true, now, now))

	user, err := repo.FindByID(context.Background(), "warden-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleWarden, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeactivateAccountIsRepeatable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	for i := 0; i < 2; i++ {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1")).
			WithArgs("student-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.DeactivateAccount(context.Background(), "student-1"))
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = FALSE")).
		WithArgs("ghost", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeactivateAccount(context.Background(), "ghost"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	log := &models.AuditLog{Action: models.AuditActionNOCCreate, Resource: "noc_request"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
