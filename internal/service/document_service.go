package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/repository"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type documentStore interface {
	Add(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListByAdmission(ctx context.Context, admissionID string) ([]models.Document, error)
	Update(ctx context.Context, params repository.UpdateDocumentParams) error
	Remove(ctx context.Context, id string) error
}

type admissionReader interface {
	FindByID(ctx context.Context, id string) (*models.Admission, error)
}

// DocumentService manages admission attachments, addressed by stable keys.
type DocumentService struct {
	repo       documentStore
	admissions admissionReader
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(repo documentStore, admissions admissionReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{repo: repo, admissions: admissions, audit: audit, validator: validate, logger: logger}
}

// Add appends an attachment to an existing admission.
func (s *DocumentService) Add(ctx context.Context, admissionID string, req dto.AddDocumentRequest, actor string) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if _, err := s.admissions.FindByID(ctx, admissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission")
	}
	doc := &models.Document{
		AdmissionID: admissionID,
		Title:       req.Title,
		URL:         req.URL,
	}
	if err := s.repo.Add(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add document")
	}
	s.emitAudit(ctx, actor, models.AuditActionDocumentAdd, doc.ID, nil, doc)
	return doc, nil
}

// List returns an admission's documents in stable insertion order.
func (s *DocumentService) List(ctx context.Context, admissionID string) ([]models.Document, error) {
	if _, err := s.admissions.FindByID(ctx, admissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission")
	}
	docs, err := s.repo.ListByAdmission(ctx, admissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Update patches an attachment by key.
func (s *DocumentService) Update(ctx context.Context, id string, req dto.UpdateDocumentRequest, actor string) (*models.Document, error) {
	existing, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	params := repository.UpdateDocumentParams{
		ID:       id,
		Title:    req.Title,
		URL:      req.URL,
		Verified: req.Verified,
	}
	if err := s.repo.Update(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document")
	}
	updated, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionDocumentUpdate, id, existing, updated)
	return updated, nil
}

// Remove deletes an attachment by key. Remaining documents keep their order
// and their keys.
func (s *DocumentService) Remove(ctx context.Context, id string, actor string) error {
	existing, err := s.findDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Remove(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove document")
	}
	s.emitAudit(ctx, actor, models.AuditActionDocumentRemove, id, existing, nil)
	return nil
}

func (s *DocumentService) findDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) emitAudit(ctx context.Context, actor, action, resourceID string, oldValue, newValue interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Actor:      actor,
		Action:     action,
		Resource:   "admission_document",
		ResourceID: &resourceID,
	}
	if oldValue != nil {
		if raw, err := json.Marshal(oldValue); err == nil {
			log.OldValues = raw
		}
	}
	if newValue != nil {
		if raw, err := json.Marshal(newValue); err == nil {
			log.NewValues = raw
		}
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
