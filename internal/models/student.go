package models

// StudentProfile is the read-only view of a student used to snapshot NOC requests.
type StudentProfile struct {
	ID           string `db:"id" json:"id"`
	FullName     string `db:"full_name" json:"full_name"`
	RollNumber   string `db:"roll_number" json:"roll_number"`
	Course       string `db:"course" json:"course"`
	Branch       string `db:"branch" json:"branch"`
	Year         string `db:"year" json:"year"`
	AcademicYear string `db:"academic_year" json:"academic_year"`
	Hostel       string `db:"hostel" json:"hostel"`
	Gender       string `db:"gender" json:"gender"`
	Active       bool   `db:"active" json:"active"`
}

// EligibleStudentFilter narrows the students a warden may raise a request for.
type EligibleStudentFilter struct {
	WardenID string
	Search   string
	Limit    int
}
