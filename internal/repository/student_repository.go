package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/madrasa-adp/intake-api/internal/models"
)

const studentColumns = `s.id, s.admission_id, s.admission_number, s.full_name, s.department_id,
       s.class_id, s.section_id, s.halaqah_id, s.status, s.hostel, s.transport, s.scholarship,
       s.version, s.created_at, s.updated_at`

// StudentRepository handles the read side of students; enrollment mutations
// go through TransferRepository and admission approval through AdmissionRepository.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students filtered by the provided criteria with catalog names.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s
LEFT JOIN departments d ON d.id = s.department_id
LEFT JOIN classes c ON c.id = s.class_id
LEFT JOIN sections sec ON sec.id = s.section_id
LEFT JOIN halaqahs h ON h.id = s.halaqah_id`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("s.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.HalaqahID != "" {
		conditions = append(conditions, fmt.Sprintf("s.halaqah_id = $%d", len(args)+1))
		args = append(args, filter.HalaqahID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.full_name ILIKE $%d OR s.admission_number ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":        "s.full_name",
		"admission_number": "s.admission_number",
		"created_at":       "s.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        d.name AS department_name, c.name AS class_name, sec.name AS section_name, h.name AS halaqah_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, studentColumns, base+clause, orderBy, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID returns a student with catalog names.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        d.name AS department_name, c.name AS class_name, sec.name AS section_name, h.name AS halaqah_name
        FROM students s
        LEFT JOIN departments d ON d.id = s.department_id
        LEFT JOIN classes c ON c.id = s.class_id
        LEFT JOIN sections sec ON sec.id = s.section_id
        LEFT JOIN halaqahs h ON h.id = s.halaqah_id
        WHERE s.id = $1`, studentColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByAdmissionNumber checks whether an active student already holds the number.
func (r *StudentRepository) ExistsByAdmissionNumber(ctx context.Context, number, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students s WHERE s.admission_number = $1 AND s.status = $2"
	args := []interface{}{number, models.StudentStatusActive}
	if excludeID != "" {
		query += fmt.Sprintf(" AND s.id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check admission number: %w", err)
	}
	return true, nil
}

// MaxAdmissionNumber returns the highest assigned number matching the prefix,
// or "" when none exist. Used by the sequential allocator.
func (r *StudentRepository) MaxAdmissionNumber(ctx context.Context, prefix string) (string, error) {
	const query = `SELECT s.admission_number FROM students s
	WHERE s.admission_number LIKE $1 ORDER BY s.admission_number DESC LIMIT 1`
	var number string
	if err := r.db.GetContext(ctx, &number, query, prefix+"%"); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("max admission number: %w", err)
	}
	return number, nil
}
