package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/repository"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type transferStore interface {
	Apply(ctx context.Context, params repository.ApplyParams) error
	ListByStudent(ctx context.Context, studentID string, filter models.TransferFilter) ([]models.TransferRecord, error)
	FindByID(ctx context.Context, id string) (*models.TransferRecord, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// TransferService applies enrollment transitions: promotions, section and
// halaqah moves, and leaving certificates. Every mutation appends an
// immutable transfer record in the same transaction as the student update.
type TransferService struct {
	repo      transferStore
	students  studentReader
	catalog   catalogReader
	audit     auditLogger
	idem      idempotencyStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	validateCatalogRefs bool
}

// TransferServiceOption configures the service.
type TransferServiceOption func(*TransferService)

// WithCatalogValidation toggles target-id validation against the catalog.
func WithCatalogValidation(enabled bool) TransferServiceOption {
	return func(s *TransferService) {
		s.validateCatalogRefs = enabled
	}
}

// WithTransferMetrics attaches the Prometheus recorder.
func WithTransferMetrics(metrics *MetricsService) TransferServiceOption {
	return func(s *TransferService) {
		s.metrics = metrics
	}
}

// NewTransferService constructs the service.
func NewTransferService(repo transferStore, students studentReader, catalog catalogReader, audit auditLogger, idem idempotencyStore, validate *validator.Validate, logger *zap.Logger, opts ...TransferServiceOption) *TransferService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TransferService{
		repo:                repo,
		students:            students,
		catalog:             catalog,
		audit:               audit,
		idem:                idem,
		validator:           validate,
		logger:              logger,
		validateCatalogRefs: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Apply validates and executes one transition on an active student. The
// record snapshots the pre-move enrollment so history reads without joins.
func (s *TransferService) Apply(ctx context.Context, studentID string, req dto.ApplyTransferRequest, actor, idemKey string) (*dto.TransferResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}
	if !models.ValidTransferType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown transfer type: %s", req.Type))
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status == models.StudentStatusLeft {
		return nil, appErrors.Clone(appErrors.ErrState, "student has left the institution")
	}

	mutated := *student
	record := &models.TransferRecord{
		StudentID:     student.ID,
		Type:          req.Type,
		FromClassID:   student.ClassID,
		FromSectionID: student.SectionID,
		FromHalaqahID: student.HalaqahID,
		Reason:        req.Reason,
	}
	if req.EffectiveDate != nil {
		record.EffectiveDate = req.EffectiveDate.UTC()
	}

	switch req.Type {
	case models.TransferTypePromotion:
		if req.ToSectionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "promotion requires a target section")
		}
		if req.ToClassID != "" {
			mutated.ClassID = req.ToClassID
		}
		mutated.SectionID = req.ToSectionID
	case models.TransferTypeSectionChange:
		if req.ToSectionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "section change requires a target section")
		}
		mutated.SectionID = req.ToSectionID
	case models.TransferTypeHalaqahChange:
		if req.ToHalaqahID == nil || *req.ToHalaqahID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "halaqah change requires a target halaqah")
		}
		mutated.HalaqahID = req.ToHalaqahID
	case models.TransferTypeTC:
		mutated.Status = models.StudentStatusLeft
		record.TCURL = req.TCURL
	}

	record.ToClassID = mutated.ClassID
	record.ToSectionID = mutated.SectionID
	record.ToHalaqahID = mutated.HalaqahID

	if err := s.validateTargets(ctx, req); err != nil {
		return nil, err
	}

	if s.idem != nil && idemKey != "" {
		ok, err := s.idem.Reserve(ctx, idemKey)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve idempotency key")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate transfer request")
		}
	}

	version := req.Version
	if version == 0 {
		version = student.Version
	}
	params := repository.ApplyParams{
		Record:         record,
		Student:        &mutated,
		StudentVersion: version,
	}
	if err := s.repo.Apply(ctx, params); err != nil {
		s.releaseIdempotencyKey(ctx, idemKey)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transfer")
	}
	mutated.Version = version + 1

	s.emitAudit(ctx, actor, student, &mutated, record)
	if s.metrics != nil {
		s.metrics.IncTransferApplied(string(req.Type))
	}
	s.logger.Info("transfer applied",
		zap.String("student_id", student.ID),
		zap.String("type", string(req.Type)),
		zap.String("transfer_id", record.ID),
	)
	return &dto.TransferResult{Student: &mutated, Transfer: record}, nil
}

// List returns a student's transfer history, most recent first.
func (s *TransferService) List(ctx context.Context, studentID string, query dto.TransferQuery) ([]models.TransferRecord, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	filter := models.TransferFilter{Type: query.Type, Limit: query.Limit, Offset: query.Offset}
	records, err := s.repo.ListByStudent(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transfers")
	}
	if records == nil {
		records = []models.TransferRecord{}
	}
	return records, nil
}

func (s *TransferService) validateTargets(ctx context.Context, req dto.ApplyTransferRequest) error {
	if !s.validateCatalogRefs || s.catalog == nil {
		return nil
	}
	if req.ToClassID != "" {
		ok, err := s.catalog.ClassExists(ctx, req.ToClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate class")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown class id: %s", req.ToClassID))
		}
	}
	if req.ToSectionID != "" {
		ok, err := s.catalog.SectionExists(ctx, req.ToSectionID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate section")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown section id: %s", req.ToSectionID))
		}
	}
	if req.ToHalaqahID != nil && *req.ToHalaqahID != "" {
		ok, err := s.catalog.HalaqahExists(ctx, *req.ToHalaqahID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate halaqah")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown halaqah id: %s", *req.ToHalaqahID))
		}
	}
	return nil
}

func (s *TransferService) releaseIdempotencyKey(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release idempotency key", zap.Error(err))
	}
}

func (s *TransferService) emitAudit(ctx context.Context, actor string, oldStudent, newStudent *models.Student, record *models.TransferRecord) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Actor:      actor,
		Action:     models.AuditActionTransferApply,
		Resource:   "student",
		ResourceID: &record.StudentID,
	}
	if raw, err := json.Marshal(oldStudent); err == nil {
		log.OldValues = raw
	}
	if raw, err := json.Marshal(map[string]interface{}{"student": newStudent, "transfer": record}); err == nil {
		log.NewValues = raw
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
