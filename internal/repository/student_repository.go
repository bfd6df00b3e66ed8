package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

const studentProfileColumns = `s.id, u.full_name, s.roll_number, s.course, s.branch, s.year, s.academic_year,
       s.hostel, s.gender, u.active`

// StudentRepository reads student profiles and warden cohort assignments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// LookupStudent returns the profile snapshot used when raising a request.
func (r *StudentRepository) LookupStudent(ctx context.Context, id string) (*models.StudentProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s JOIN users u ON u.id = s.id WHERE s.id = $1`, studentProfileColumns)
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// IsWardenFor reports whether the student lives in one of the warden's assigned cohorts.
func (r *StudentRepository) IsWardenFor(ctx context.Context, wardenID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM students s
	JOIN warden_assignments wa ON wa.hostel = s.hostel AND wa.gender = s.gender
	WHERE wa.warden_id = $1 AND s.id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, wardenID, studentID); err != nil {
		return false, fmt.Errorf("check warden cohort: %w", err)
	}
	return ok, nil
}

// ListEligibleStudents returns active students in the warden's cohorts who have no open request.
func (r *StudentRepository) ListEligibleStudents(ctx context.Context, filter models.EligibleStudentFilter) ([]models.StudentProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s
	JOIN users u ON u.id = s.id
	JOIN warden_assignments wa ON wa.hostel = s.hostel AND wa.gender = s.gender
	WHERE wa.warden_id = $1 AND u.active = TRUE
	AND NOT EXISTS (SELECT 1 FROM noc_requests n WHERE n.student_id = s.id AND n.status NOT IN ('APPROVED', 'REJECTED'))
	ORDER BY u.full_name ASC`, studentProfileColumns)
	var students []models.StudentProfile
	if err := r.db.SelectContext(ctx, &students, query, filter.WardenID); err != nil {
		return nil, fmt.Errorf("list eligible students: %w", err)
	}
	return students, nil
}
