package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasa-adp/intake-api/internal/models"
)

// DocumentRepository persists admission attachments. Entries are addressed
// only by their stable UUID key, never by list position.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Add appends a document for the admission. The position counter preserves
// insertion order independently of key generation.
func (r *DocumentRepository) Add(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	const query = `INSERT INTO admission_documents (id, admission_id, title, url, verified, position, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5,
	        (SELECT COALESCE(MAX(position), 0) + 1 FROM admission_documents WHERE admission_id = $2),
	        $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, doc.ID, doc.AdmissionID, doc.Title, doc.URL, doc.Verified, doc.CreatedAt, doc.UpdatedAt); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// FindByID returns a document by its key.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT id, admission_id, title, url, verified, position, created_at, updated_at
	FROM admission_documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByAdmission returns documents in stable insertion order.
func (r *DocumentRepository) ListByAdmission(ctx context.Context, admissionID string) ([]models.Document, error) {
	const query = `SELECT id, admission_id, title, url, verified, position, created_at, updated_at
	FROM admission_documents WHERE admission_id = $1 ORDER BY position ASC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, admissionID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// UpdateDocumentParams groups mutable document columns.
type UpdateDocumentParams struct {
	ID       string
	Title    *string
	URL      *string
	Verified *bool
}

// Update patches title/url/verified by key.
// Returns sql.ErrNoRows when the key is unknown.
func (r *DocumentRepository) Update(ctx context.Context, params UpdateDocumentParams) error {
	setParts := []string{"updated_at = :updated_at"}
	named := map[string]interface{}{
		"id":         params.ID,
		"updated_at": time.Now().UTC(),
	}
	if params.Title != nil {
		setParts = append(setParts, "title = :title")
		named["title"] = *params.Title
	}
	if params.URL != nil {
		setParts = append(setParts, "url = :url")
		named["url"] = *params.URL
	}
	if params.Verified != nil {
		setParts = append(setParts, "verified = :verified")
		named["verified"] = *params.Verified
	}

	query := fmt.Sprintf("UPDATE admission_documents SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, named)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return requireRowsAffected(result)
}

// Remove deletes the entry addressed by key. Sibling rows keep their
// positions, so removal never disturbs the remaining order.
// Returns sql.ErrNoRows when the key is unknown.
func (r *DocumentRepository) Remove(ctx context.Context, id string) error {
	const query = `DELETE FROM admission_documents WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	return requireRowsAffected(result)
}
