package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/pkg/apperr"
)

// Login failures map to 401 in the handler; both sentinels keep credential
// probing uninformative while telling a locked-out user what happened.
var (
	ErrBadCredentials  = errors.New("invalid email or password")
	ErrAccountDisabled = errors.New("account disabled")
)

type Service struct {
	users       UserRepository
	departments DepartmentRepository
	physicians  PhysicianRepository
	issuer      *auth.TokenIssuer
}

func NewService(users UserRepository, departments DepartmentRepository, physicians PhysicianRepository, issuer *auth.TokenIssuer) *Service {
	return &Service{users: users, departments: departments, physicians: physicians, issuer: issuer}
}

// -- Auth --

type RegisterRequest struct {
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Password     string     `json:"password"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Register creates an active staff account. Elevated roles are assigned by
// an admin afterwards.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	fields := map[string]string{}
	if !validEmail(req.Email) {
		fields["email"] = "a valid email address is required"
	}
	if strings.TrimSpace(req.FullName) == "" {
		fields["full_name"] = "full_name is required"
	}
	if len(req.Password) < 8 {
		fields["password"] = "password must be at least 8 characters"
	}
	if req.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *req.DepartmentID); err != nil {
			fields["department_id"] = "unknown department"
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        normalizeEmail(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         RoleStaff,
		DepartmentID: req.DepartmentID,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !u.Active {
		return nil, ErrAccountDisabled
	}

	deptID := ""
	if u.DepartmentID != nil {
		deptID = u.DepartmentID.String()
	}
	token, expiresAt, err := s.issuer.Issue(u.ID.String(), u.Role, deptID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// -- Users (admin) --

type CreateUserRequest struct {
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Password     string     `json:"password"`
	Role         string     `json:"role"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

type UpdateUserRequest struct {
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	Active       *bool      `json:"active,omitempty"`
	Password     string     `json:"password,omitempty"`
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	fields := map[string]string{}
	if !validEmail(req.Email) {
		fields["email"] = "a valid email address is required"
	}
	if strings.TrimSpace(req.FullName) == "" {
		fields["full_name"] = "full_name is required"
	}
	if len(req.Password) < 8 {
		fields["password"] = "password must be at least 8 characters"
	}
	if !ValidRole(req.Role) {
		fields["role"] = "role must be one of staff, dept_manager, quality, director, admin"
	}
	if req.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *req.DepartmentID); err != nil {
			fields["department_id"] = "unknown department"
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        normalizeEmail(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if req.Email != "" {
		if !validEmail(req.Email) {
			fields["email"] = "a valid email address is required"
		} else {
			u.Email = normalizeEmail(req.Email)
		}
	}
	if req.FullName != "" {
		u.FullName = strings.TrimSpace(req.FullName)
	}
	if req.Role != "" {
		if !ValidRole(req.Role) {
			fields["role"] = "role must be one of staff, dept_manager, quality, director, admin"
		} else {
			u.Role = req.Role
		}
	}
	if req.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *req.DepartmentID); err != nil {
			fields["department_id"] = "unknown department"
		} else {
			u.DepartmentID = req.DepartmentID
		}
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != "" {
		if len(req.Password) < 8 {
			fields["password"] = "password must be at least 8 characters"
		} else {
			hash, err := auth.HashPassword(req.Password)
			if err != nil {
				return nil, err
			}
			u.PasswordHash = hash
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeactivateUser disables the account. Rows are kept so historical reports
// and approvals keep their actor references.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	return s.users.Deactivate(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// -- Departments --

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Code) == "" {
		fields["code"] = "code is required"
	}
	if strings.TrimSpace(d.Name) == "" {
		fields["name"] = "name is required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	d.Code = strings.ToLower(strings.TrimSpace(d.Code))
	d.Name = strings.TrimSpace(d.Name)
	d.Active = true
	return s.departments.Create(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.departments.GetByID(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, id uuid.UUID, upd *Department) (*Department, error) {
	d, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(upd.Code) != "" {
		d.Code = strings.ToLower(strings.TrimSpace(upd.Code))
	}
	if strings.TrimSpace(upd.Name) != "" {
		d.Name = strings.TrimSpace(upd.Name)
	}
	d.Active = upd.Active
	if err := s.departments.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.departments.List(ctx, limit, offset)
}

// -- Physicians --

func (s *Service) CreatePhysician(ctx context.Context, p *Physician) error {
	fields := map[string]string{}
	if strings.TrimSpace(p.FullName) == "" {
		fields["full_name"] = "full_name is required"
	}
	if strings.TrimSpace(p.Specialty) == "" {
		fields["specialty"] = "specialty is required"
	}
	if p.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *p.DepartmentID); err != nil {
			fields["department_id"] = "unknown department"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	p.FullName = strings.TrimSpace(p.FullName)
	p.Active = true
	return s.physicians.Create(ctx, p)
}

func (s *Service) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return s.physicians.GetByID(ctx, id)
}

func (s *Service) UpdatePhysician(ctx context.Context, id uuid.UUID, upd *Physician) (*Physician, error) {
	p, err := s.physicians.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(upd.FullName) != "" {
		p.FullName = strings.TrimSpace(upd.FullName)
	}
	if strings.TrimSpace(upd.Specialty) != "" {
		p.Specialty = strings.TrimSpace(upd.Specialty)
	}
	if upd.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *upd.DepartmentID); err != nil {
			return nil, apperr.Validationf("department_id", "unknown department")
		}
		p.DepartmentID = upd.DepartmentID
	}
	p.Active = upd.Active
	if err := s.physicians.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPhysicians(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	return s.physicians.List(ctx, limit, offset)
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.Contains(email, " ")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
