package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jansunwai/models"
)

// UserRepository handles staff/admin account records. Citizen identity is
// external; only the staff credential seam lives here.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const staffColumns = `
	user_id, name, email, password_hash, role, department_id, active, created_at, updated_at`

// GetStaff retrieves a staff account by id.
func (r *UserRepository) GetStaff(ctx context.Context, userID int64) (*models.StaffAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+staffColumns+` FROM staff_accounts WHERE user_id = ?`, userID)
	return scanStaff(row, fmt.Sprintf("staff %d", userID))
}

// GetStaffByEmail retrieves a staff account for login.
func (r *UserRepository) GetStaffByEmail(ctx context.Context, email string) (*models.StaffAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+staffColumns+` FROM staff_accounts WHERE email = ?`, email)
	return scanStaff(row, email)
}

// CreateStaff persists a new staff account (admin operation).
func (r *UserRepository) CreateStaff(ctx context.Context, a *models.StaffAccount) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (name, email, password_hash, role, department_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, TRUE, ?)`,
		a.Name, a.Email, a.PasswordHash, a.Role, a.DepartmentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create staff account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get staff id: %w", err)
	}
	a.UserID = id
	return nil
}

// ListStaffByDepartment returns active staff in a department, used by the
// assignment guard (the assignee must belong to the complaint's department).
func (r *UserRepository) ListStaffByDepartment(ctx context.Context, departmentID int64) ([]models.StaffAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+staffColumns+` FROM staff_accounts
		 WHERE department_id = ? AND active = TRUE ORDER BY user_id ASC`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var accounts []models.StaffAccount
	for rows.Next() {
		a, err := scanStaff(rows, "")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func scanStaff(row rowScanner, ref string) (*models.StaffAccount, error) {
	var a models.StaffAccount
	err := row.Scan(&a.UserID, &a.Name, &a.Email, &a.PasswordHash, &a.Role,
		&a.DepartmentID, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.Ef(models.KindNotFound, "staff account %s not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan staff account: %w", err)
	}
	return &a, nil
}
