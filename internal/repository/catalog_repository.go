package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/madrasa-adp/intake-api/internal/models"
)

// CatalogRepository reads the department/class/section/halaqah reference
// catalog. The catalog is maintained elsewhere; this service never writes it.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListDepartments returns all departments ordered by code.
func (r *CatalogRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, code, name FROM departments ORDER BY code ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindDepartmentByID returns a department by id.
func (r *CatalogRepository) FindDepartmentByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, code, name FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		return nil, err
	}
	return &department, nil
}

// ListClasses returns classes, optionally scoped to a department.
func (r *CatalogRepository) ListClasses(ctx context.Context, departmentID string) ([]models.Class, error) {
	query := `SELECT id, department_id, name FROM classes`
	var args []interface{}
	if departmentID != "" {
		query += " WHERE department_id = $1"
		args = append(args, departmentID)
	}
	query += " ORDER BY name ASC"
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListSections returns sections, optionally scoped to a class.
func (r *CatalogRepository) ListSections(ctx context.Context, classID string) ([]models.Section, error) {
	query := `SELECT id, class_id, name FROM sections`
	var args []interface{}
	if classID != "" {
		query += " WHERE class_id = $1"
		args = append(args, classID)
	}
	query += " ORDER BY name ASC"
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// ListHalaqahs returns halaqahs, optionally scoped to a department.
func (r *CatalogRepository) ListHalaqahs(ctx context.Context, departmentID string) ([]models.Halaqah, error) {
	query := `SELECT id, department_id, name, teacher_name FROM halaqahs`
	var args []interface{}
	if departmentID != "" {
		query += " WHERE department_id = $1"
		args = append(args, departmentID)
	}
	query += " ORDER BY name ASC"
	var halaqahs []models.Halaqah
	if err := r.db.SelectContext(ctx, &halaqahs, query, args...); err != nil {
		return nil, fmt.Errorf("list halaqahs: %w", err)
	}
	return halaqahs, nil
}

// DepartmentExists reports whether the id resolves in the catalog.
func (r *CatalogRepository) DepartmentExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "departments", id)
}

// ClassExists reports whether the id resolves in the catalog.
func (r *CatalogRepository) ClassExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "classes", id)
}

// SectionExists reports whether the id resolves in the catalog.
func (r *CatalogRepository) SectionExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "sections", id)
}

// HalaqahExists reports whether the id resolves in the catalog.
func (r *CatalogRepository) HalaqahExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "halaqahs", id)
}

func (r *CatalogRepository) exists(ctx context.Context, table, id string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1 LIMIT 1", table)
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return true, nil
}
