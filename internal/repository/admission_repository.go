package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/madrasa-adp/intake-api/internal/models"
)

const admissionColumns = `id, applicant_name, father_name, contact_number, cnic, address, stage,
       decision_note, admission_number, admission_date, notes, student_id, version, created_at, updated_at`

// AdmissionRepository handles persistence of admission records and their stage history.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository constructs the repository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Create persists a new admission at the initial inquiry stage.
func (r *AdmissionRepository) Create(ctx context.Context, admission *models.Admission) error {
	if admission.ID == "" {
		admission.ID = uuid.NewString()
	}
	if admission.Stage == "" {
		admission.Stage = models.StageInquiry
	}
	if admission.Version == 0 {
		admission.Version = 1
	}
	now := time.Now().UTC()
	if admission.CreatedAt.IsZero() {
		admission.CreatedAt = now
	}
	admission.UpdatedAt = now
	const query = `INSERT INTO admissions
	(id, applicant_name, father_name, contact_number, cnic, address, stage, decision_note,
	 admission_number, admission_date, notes, student_id, version, created_at, updated_at)
	VALUES (:id, :applicant_name, :father_name, :contact_number, :cnic, :address, :stage, :decision_note,
	 :admission_number, :admission_date, :notes, :student_id, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, admission); err != nil {
		return fmt.Errorf("create admission: %w", err)
	}
	return nil
}

// List returns admissions filtered by the provided criteria.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", len(args)+1))
		args = append(args, filter.Stage)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(applicant_name ILIKE $%d OR father_name ILIKE $%d OR cnic ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":     "created_at",
		"applicant_name": "applicant_name",
		"stage":          "stage",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s FROM admissions%s ORDER BY %s %s LIMIT %d OFFSET %d",
		admissionColumns, clause, orderBy, order, size, offset)

	var admissions []models.Admission
	if err := r.db.SelectContext(ctx, &admissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM admissions" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}
	return admissions, total, nil
}

// CountOpen returns the number of admissions in a non-terminal stage.
func (r *AdmissionRepository) CountOpen(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM admissions WHERE stage NOT IN ($1, $2)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.StageApproved, models.StageRejected); err != nil {
		return 0, fmt.Errorf("count open admissions: %w", err)
	}
	return count, nil
}

// FindByID returns an admission by its ID.
func (r *AdmissionRepository) FindByID(ctx context.Context, id string) (*models.Admission, error) {
	query := fmt.Sprintf("SELECT %s FROM admissions WHERE id = $1", admissionColumns)
	var admission models.Admission
	if err := r.db.GetContext(ctx, &admission, query, id); err != nil {
		return nil, err
	}
	return &admission, nil
}

// ListStageEvents returns the stage transition log, oldest first.
func (r *AdmissionRepository) ListStageEvents(ctx context.Context, admissionID string) ([]models.StageEvent, error) {
	const query = `SELECT id, admission_id, from_stage, to_stage, actor, created_at
	FROM admission_stage_events WHERE admission_id = $1 ORDER BY created_at ASC`
	var events []models.StageEvent
	if err := r.db.SelectContext(ctx, &events, query, admissionID); err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	return events, nil
}

// UpdateFieldsParams groups patchable non-state columns.
type UpdateFieldsParams struct {
	ID            string
	Version       int
	ApplicantName *string
	FatherName    *string
	ContactNumber *string
	CNIC          *string
	Address       *string
	Notes         *string
}

// UpdateFields patches non-state columns with a version check.
// Returns sql.ErrNoRows when the version is stale.
func (r *AdmissionRepository) UpdateFields(ctx context.Context, params UpdateFieldsParams) error {
	setParts := []string{"version = version + 1", "updated_at = :updated_at"}
	named := map[string]interface{}{
		"id":         params.ID,
		"version":    params.Version,
		"updated_at": time.Now().UTC(),
	}
	if params.ApplicantName != nil {
		setParts = append(setParts, "applicant_name = :applicant_name")
		named["applicant_name"] = *params.ApplicantName
	}
	if params.FatherName != nil {
		setParts = append(setParts, "father_name = :father_name")
		named["father_name"] = *params.FatherName
	}
	if params.ContactNumber != nil {
		setParts = append(setParts, "contact_number = :contact_number")
		named["contact_number"] = *params.ContactNumber
	}
	if params.CNIC != nil {
		setParts = append(setParts, "cnic = :cnic")
		named["cnic"] = *params.CNIC
	}
	if params.Address != nil {
		setParts = append(setParts, "address = :address")
		named["address"] = *params.Address
	}
	if params.Notes != nil {
		setParts = append(setParts, "notes = :notes")
		named["notes"] = *params.Notes
	}

	query := fmt.Sprintf("UPDATE admissions SET %s WHERE id = :id AND version = :version",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, named)
	if err != nil {
		return fmt.Errorf("patch admission: %w", err)
	}
	return requireRowsAffected(result)
}

// AdvanceStageParams captures one forward stage move.
type AdvanceStageParams struct {
	ID        string
	Version   int
	FromStage models.AdmissionStage
	ToStage   models.AdmissionStage
	Actor     string
}

// AdvanceStage moves the stage forward and appends a stage event in one transaction.
// Returns sql.ErrNoRows when the stage or version no longer matches.
func (r *AdmissionRepository) AdvanceStage(ctx context.Context, params AdvanceStageParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin advance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE admissions SET stage = $1, version = version + 1, updated_at = $2
	WHERE id = $3 AND stage = $4 AND version = $5`
	result, err := tx.ExecContext(ctx, update, params.ToStage, time.Now().UTC(), params.ID, params.FromStage, params.Version)
	if err != nil {
		return fmt.Errorf("advance admission stage: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return err
	}

	if err := insertStageEvent(ctx, tx, params.ID, params.FromStage, params.ToStage, params.Actor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit advance: %w", err)
	}
	return nil
}

// DecideParams captures a terminal approve/reject decision.
type DecideParams struct {
	ID              string
	Version         int
	FromStage       models.AdmissionStage
	ToStage         models.AdmissionStage
	Actor           string
	DecisionNote    *string
	AdmissionNumber *string
	AdmissionDate   *time.Time
	Student         *models.Student
}

// Decide finalizes an admission. For approvals the student row is created in
// the same transaction so a decided admission can never exist without its
// student, or the reverse. Returns sql.ErrNoRows on stale stage/version.
func (r *AdmissionRepository) Decide(ctx context.Context, params DecideParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	if params.Student != nil {
		student := params.Student
		if student.ID == "" {
			student.ID = uuid.NewString()
		}
		if student.Status == "" {
			student.Status = models.StudentStatusActive
		}
		if student.Version == 0 {
			student.Version = 1
		}
		student.CreatedAt = now
		student.UpdatedAt = now
		const insertStudent = `INSERT INTO students
		(id, admission_id, admission_number, full_name, department_id, class_id, section_id, halaqah_id,
		 status, hostel, transport, scholarship, version, created_at, updated_at)
		VALUES (:id, :admission_id, :admission_number, :full_name, :department_id, :class_id, :section_id, :halaqah_id,
		 :status, :hostel, :transport, :scholarship, :version, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertStudent, student); err != nil {
			return fmt.Errorf("create student: %w", err)
		}
	}

	var studentID *string
	if params.Student != nil {
		studentID = &params.Student.ID
	}
	const update = `UPDATE admissions
	SET stage = $1, decision_note = $2, admission_number = $3, admission_date = $4,
	    student_id = $5, version = version + 1, updated_at = $6
	WHERE id = $7 AND version = $8 AND stage NOT IN ($9, $10)`
	result, err := tx.ExecContext(ctx, update,
		params.ToStage, params.DecisionNote, params.AdmissionNumber, params.AdmissionDate,
		studentID, now, params.ID, params.Version, models.StageApproved, models.StageRejected)
	if err != nil {
		return fmt.Errorf("decide admission: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return err
	}

	if err := insertStageEvent(ctx, tx, params.ID, params.FromStage, params.ToStage, params.Actor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decision: %w", err)
	}
	return nil
}

func insertStageEvent(ctx context.Context, tx *sqlx.Tx, admissionID string, from, to models.AdmissionStage, actor string) error {
	const query = `INSERT INTO admission_stage_events (id, admission_id, from_stage, to_stage, actor, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	if actor == "" {
		actor = "system"
	}
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), admissionID, from, to, actor, time.Now().UTC()); err != nil {
		return fmt.Errorf("append stage event: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err carries a Postgres unique constraint
// violation. The partial unique index on students.admission_number makes the
// database the final arbiter when two approvals race with the same number.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
