package identity

import (
	"time"

	"github.com/google/uuid"
)

// Roles ordered by privilege for approval gating. Staff report incidents;
// department managers act on approval level 1, quality managers on level 2,
// the medical director on level 3. Admins pass every role check.
const (
	RoleStaff       = "staff"
	RoleDeptManager = "dept_manager"
	RoleQuality     = "quality"
	RoleDirector    = "director"
	RoleAdmin       = "admin"
)

// ValidRole reports whether role is one of the defined user roles.
func ValidRole(role string) bool {
	switch role {
	case RoleStaff, RoleDeptManager, RoleQuality, RoleDirector, RoleAdmin:
		return true
	}
	return false
}

// User maps to the users table.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         string     `db:"role" json:"role"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Department maps to the department table.
type Department struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Physician maps to the physician table: the directory of attending
// physicians referenced by incident reports.
type Physician struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	FullName     string     `db:"full_name" json:"full_name"`
	Specialty    string     `db:"specialty" json:"specialty"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
