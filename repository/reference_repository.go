package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"jansunwai/models"
	"jansunwai/utils"
)

// ReferenceRepository gives read-only access to categories, departments, and
// the SLA matrix. Reference data is owned by an external editor and changes
// rarely; lookups are cached with a small TTL.
type ReferenceRepository struct {
	db    *sql.DB
	clock utils.Clock
	ttl   time.Duration

	mu          sync.RWMutex
	categories  map[int64]models.Category
	departments map[int64]models.Department
	slaRules    []models.SLARule
	loadedAt    time.Time
}

// NewReferenceRepository creates a reference reader with a 60s cache TTL.
func NewReferenceRepository(db *sql.DB, clock utils.Clock) *ReferenceRepository {
	return &ReferenceRepository{
		db:    db,
		clock: clock,
		ttl:   60 * time.Second,
	}
}

// Category looks up a category by id.
func (r *ReferenceRepository) Category(ctx context.Context, categoryID int64) (*models.Category, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[categoryID]
	if !ok {
		return nil, models.Ef(models.KindNotFound, "category %d not found", categoryID)
	}
	return &c, nil
}

// Categories returns all categories.
func (r *ReferenceRepository) Categories(ctx context.Context) ([]models.Category, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	return out, nil
}

// Departments returns all departments.
func (r *ReferenceRepository) Departments(ctx context.Context) ([]models.Department, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Department, 0, len(r.departments))
	for _, d := range r.departments {
		out = append(out, d)
	}
	return out, nil
}

// Department looks up a department by id.
func (r *ReferenceRepository) Department(ctx context.Context, departmentID int64) (*models.Department, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.departments[departmentID]
	if !ok {
		return nil, models.Ef(models.KindNotFound, "department %d not found", departmentID)
	}
	return &d, nil
}

// SLADays returns the committed resolution window for (department, priority).
// Falls back to defaultDays when the matrix has no row.
func (r *ReferenceRepository) SLADays(ctx context.Context, departmentID int64, priority models.Priority, defaultDays int) (int, error) {
	if err := r.refresh(ctx); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.slaRules {
		if rule.DepartmentID == departmentID && rule.Priority == priority {
			return rule.SLADays, nil
		}
	}
	return defaultDays, nil
}

func (r *ReferenceRepository) refresh(ctx context.Context) error {
	r.mu.RLock()
	fresh := !r.loadedAt.IsZero() && r.clock.Now().Sub(r.loadedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return nil
	}

	categories, err := r.loadCategories(ctx)
	if err != nil {
		return err
	}
	departments, err := r.loadDepartments(ctx)
	if err != nil {
		return err
	}
	rules, err := r.loadSLARules(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.categories = categories
	r.departments = departments
	r.slaRules = rules
	r.loadedAt = r.clock.Now()
	r.mu.Unlock()
	return nil
}

func (r *ReferenceRepository) loadCategories(ctx context.Context) (map[int64]models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category_id, name, keywords, default_department_id FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.Category)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.Keywords, &c.DefaultDepartmentID); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out[c.CategoryID] = c
	}
	return out, rows.Err()
}

func (r *ReferenceRepository) loadDepartments(ctx context.Context) (map[int64]models.Department, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT department_id, name, head_user_id FROM departments`)
	if err != nil {
		return nil, fmt.Errorf("failed to load departments: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.Department)
	for rows.Next() {
		var d models.Department
		if err := rows.Scan(&d.DepartmentID, &d.Name, &d.HeadUserID); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out[d.DepartmentID] = d
	}
	return out, rows.Err()
}

func (r *ReferenceRepository) loadSLARules(ctx context.Context) ([]models.SLARule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT department_id, priority, sla_days FROM sla_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to load sla rules: %w", err)
	}
	defer rows.Close()

	var out []models.SLARule
	for rows.Next() {
		var rule models.SLARule
		if err := rows.Scan(&rule.DepartmentID, &rule.Priority, &rule.SLADays); err != nil {
			return nil, fmt.Errorf("failed to scan sla rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
