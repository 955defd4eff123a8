package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasa-adp/intake-api/internal/models"
)

const transferColumns = `id, student_id, type, from_class_id, from_section_id, from_halaqah_id,
       to_class_id, to_section_id, to_halaqah_id, effective_date, reason, tc_url, created_at`

// TransferRepository persists the enrollment transition audit trail.
// Records are append-only; no update or delete exists on purpose.
type TransferRepository struct {
	db *sqlx.DB
}

// NewTransferRepository constructs the repository.
func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// ApplyParams carries the already-mutated student alongside the record to
// append. StudentVersion is the version observed before mutation.
type ApplyParams struct {
	Record         *models.TransferRecord
	Student        *models.Student
	StudentVersion int
}

// Apply writes the student mutation and the transfer record as one
// transaction so no reader can observe one without the other.
// Returns sql.ErrNoRows when the student version is stale.
func (r *TransferRepository) Apply(ctx context.Context, params ApplyParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const update = `UPDATE students SET class_id = $1, section_id = $2, halaqah_id = $3, status = $4,
	version = version + 1, updated_at = $5 WHERE id = $6 AND version = $7`
	result, err := tx.ExecContext(ctx, update,
		params.Student.ClassID, params.Student.SectionID, params.Student.HalaqahID, params.Student.Status,
		now, params.Student.ID, params.StudentVersion)
	if err != nil {
		return fmt.Errorf("apply student mutation: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return err
	}

	record := params.Record
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EffectiveDate.IsZero() {
		record.EffectiveDate = now
	}
	record.CreatedAt = now
	const insert = `INSERT INTO transfer_records
	(id, student_id, type, from_class_id, from_section_id, from_halaqah_id,
	 to_class_id, to_section_id, to_halaqah_id, effective_date, reason, tc_url, created_at)
	VALUES (:id, :student_id, :type, :from_class_id, :from_section_id, :from_halaqah_id,
	 :to_class_id, :to_section_id, :to_halaqah_id, :effective_date, :reason, :tc_url, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, record); err != nil {
		return fmt.Errorf("append transfer record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// ListByStudent returns transfer records sorted by creation time, most recent
// first. The id tiebreaker keeps the order stable when two records land in
// the same timestamp.
func (r *TransferRepository) ListByStudent(ctx context.Context, studentID string, filter models.TransferFilter) ([]models.TransferRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM transfer_records WHERE student_id = $1", transferColumns)
	args := []interface{}{studentID}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	var records []models.TransferRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return records, nil
}

// FindByID returns a transfer record by identifier.
func (r *TransferRepository) FindByID(ctx context.Context, id string) (*models.TransferRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM transfer_records WHERE id = $1", transferColumns)
	var record models.TransferRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}
