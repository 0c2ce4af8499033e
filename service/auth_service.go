package service

import (
	"context"
	"database/sql"
	"log"
	"strings"

	"jansunwai/models"
	"jansunwai/utils"
)

// StaffCredentialStore is the account contract the auth seam consumes.
type StaffCredentialStore interface {
	GetStaffByEmail(ctx context.Context, email string) (*models.StaffAccount, error)
	CreateStaff(ctx context.Context, a *models.StaffAccount) error
}

// AuthService is the staff credential seam. Citizen identity is issued by an
// external gateway; this only covers staff, department head, and admin logins.
type AuthService struct {
	staff      StaffCredentialStore
	jwtSecret  []byte
	tokenHours int
}

// NewAuthService wires the staff login service.
func NewAuthService(staff StaffCredentialStore, jwtSecret string, tokenHours int) *AuthService {
	return &AuthService{
		staff:      staff,
		jwtSecret:  []byte(jwtSecret),
		tokenHours: tokenHours,
	}
}

// LoginResult is the issued token plus the account it identifies.
type LoginResult struct {
	Token   string               `json:"token"`
	Account *models.StaffAccount `json:"account"`
}

// Login verifies staff credentials and issues a role-scoped token. Failures
// are deliberately uniform so the response does not reveal which part failed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.E(models.KindInvalidInput, "email and password are required")
	}

	account, err := s.staff.GetStaffByEmail(ctx, email)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return nil, models.E(models.KindUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	if !account.Active {
		return nil, models.E(models.KindUnauthorized, "invalid credentials")
	}
	if err := utils.CheckPassword(password, account.PasswordHash); err != nil {
		return nil, models.E(models.KindUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(utils.IdentityClaims{
		UserID:       account.UserID,
		Role:         account.Role,
		DepartmentID: account.DepartmentID.Int64,
	}, s.jwtSecret, s.tokenHours)
	if err != nil {
		return nil, models.Wrap(models.KindInternal, "failed to issue token", err)
	}

	log.Printf("[AUTH] Staff %d (%s) logged in", account.UserID, account.Role)
	return &LoginResult{Token: token, Account: account}, nil
}

// CreateStaffRequest is the admin payload for provisioning a staff account.
type CreateStaffRequest struct {
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	Role         models.Role `json:"role"`
	DepartmentID *int64      `json:"department_id,omitempty"`
}

// Validate checks the provisioning payload.
func (r *CreateStaffRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return models.E(models.KindInvalidInput, "name is required")
	case !strings.Contains(r.Email, "@"):
		return models.E(models.KindInvalidInput, "a valid email is required")
	case len(r.Password) < 8:
		return models.E(models.KindInvalidInput, "password must be at least 8 characters")
	}
	switch r.Role {
	case models.RoleStaff, models.RoleDeptHead:
		if r.DepartmentID == nil || *r.DepartmentID <= 0 {
			return models.E(models.KindInvalidInput, "a department is required for this role")
		}
	case models.RoleAdmin, models.RoleSuperAdmin:
	default:
		return models.Ef(models.KindInvalidInput, "unknown role %q", r.Role)
	}
	return nil
}

// CreateStaff provisions a staff account (admin operation).
func (s *AuthService) CreateStaff(ctx context.Context, actor models.Actor, req *CreateStaffRequest) (*models.StaffAccount, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, models.E(models.KindForbidden, "only admins create staff accounts")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, models.Wrap(models.KindInternal, "failed to hash password", err)
	}
	account := &models.StaffAccount{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	}
	if req.DepartmentID != nil {
		account.DepartmentID = sql.NullInt64{Int64: *req.DepartmentID, Valid: true}
	}
	if err := s.staff.CreateStaff(ctx, account); err != nil {
		return nil, err
	}
	log.Printf("[AUTH] Staff account %d (%s) created by admin %d", account.UserID, account.Role, actor.UserID)
	return account, nil
}
