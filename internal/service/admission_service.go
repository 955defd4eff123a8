package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/repository"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type admissionStore interface {
	Create(ctx context.Context, admission *models.Admission) error
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error)
	FindByID(ctx context.Context, id string) (*models.Admission, error)
	ListStageEvents(ctx context.Context, admissionID string) ([]models.StageEvent, error)
	UpdateFields(ctx context.Context, params repository.UpdateFieldsParams) error
	AdvanceStage(ctx context.Context, params repository.AdvanceStageParams) error
	Decide(ctx context.Context, params repository.DecideParams) error
	CountOpen(ctx context.Context) (int, error)
}

type documentLister interface {
	ListByAdmission(ctx context.Context, admissionID string) ([]models.Document, error)
}

type numberAllocator interface {
	Allocate(ctx context.Context, departmentID, requested string) (string, error)
}

type catalogReader interface {
	DepartmentExists(ctx context.Context, id string) (bool, error)
	ClassExists(ctx context.Context, id string) (bool, error)
	SectionExists(ctx context.Context, id string) (bool, error)
	HalaqahExists(ctx context.Context, id string) (bool, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type idempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// AdmissionService drives the intake stage machine: forward advances through
// the pipeline, administrative field patches, and the terminal
// approve/reject decisions that turn an applicant into a student.
type AdmissionService struct {
	repo      admissionStore
	documents documentLister
	allocator numberAllocator
	catalog   catalogReader
	audit     auditLogger
	idem      idempotencyStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	patchAfterDecision bool
}

// AdmissionServiceOption configures the service.
type AdmissionServiceOption func(*AdmissionService)

// WithPatchAfterDecision toggles whether non-state fields stay editable after
// a terminal decision. Defaults to true: decided admissions are retained as
// history and identity typos still need administrative correction.
func WithPatchAfterDecision(allowed bool) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.patchAfterDecision = allowed
	}
}

// WithAdmissionMetrics attaches the Prometheus recorder.
func WithAdmissionMetrics(metrics *MetricsService) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.metrics = metrics
	}
}

// NewAdmissionService constructs the service.
func NewAdmissionService(repo admissionStore, documents documentLister, allocator numberAllocator, catalog catalogReader, audit auditLogger, idem idempotencyStore, validate *validator.Validate, logger *zap.Logger, opts ...AdmissionServiceOption) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AdmissionService{
		repo:               repo,
		documents:          documents,
		allocator:          allocator,
		catalog:            catalog,
		audit:              audit,
		idem:               idem,
		validator:          validate,
		logger:             logger,
		patchAfterDecision: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create opens an intake record at the inquiry stage.
func (s *AdmissionService) Create(ctx context.Context, req dto.CreateAdmissionRequest, actor string) (*models.Admission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission payload")
	}
	admission := &models.Admission{
		ApplicantName: req.ApplicantName,
		FatherName:    req.FatherName,
		ContactNumber: req.ContactNumber,
		CNIC:          req.CNIC,
		Address:       req.Address,
		Notes:         req.Notes,
		Stage:         models.StageInquiry,
	}
	if err := s.repo.Create(ctx, admission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admission")
	}
	s.emitAudit(ctx, actor, models.AuditActionAdmissionCreate, admission.ID, nil, admission)
	s.refreshOpenGauge(ctx)
	return admission, nil
}

// List returns admissions with pagination metadata.
func (s *AdmissionService) List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, *models.Pagination, error) {
	admissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admissions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return admissions, pagination, nil
}

// Get returns an admission with embedded documents and stage history.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.AdmissionDetail, error) {
	admission, err := s.findAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	documents, err := s.documents.ListByAdmission(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	events, err := s.repo.ListStageEvents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage history")
	}
	if documents == nil {
		documents = []models.Document{}
	}
	return &models.AdmissionDetail{Admission: *admission, Documents: documents, StageEvents: events}, nil
}

// Advance moves the stage to the next value along the fixed forward path.
func (s *AdmissionService) Advance(ctx context.Context, id string, req dto.AdvanceAdmissionRequest, actor string) (*models.Admission, error) {
	admission, err := s.findAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if admission.Stage.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrState, "admission already decided")
	}
	next := models.NextStage(admission.Stage)
	if next == "" {
		return nil, appErrors.Clone(appErrors.ErrState, "interview is the last stage before a decision")
	}
	version := req.Version
	if version == 0 {
		version = admission.Version
	}
	params := repository.AdvanceStageParams{
		ID:        id,
		Version:   version,
		FromStage: admission.Stage,
		ToStage:   next,
		Actor:     actor,
	}
	if err := s.repo.AdvanceStage(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance admission")
	}
	updated, err := s.findAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionAdmissionAdvance, id, admission, updated)
	return updated, nil
}

// Patch updates non-state fields. Stage, decision, and number columns are
// never touched here regardless of payload.
func (s *AdmissionService) Patch(ctx context.Context, id string, req dto.PatchAdmissionRequest, actor string) (*models.Admission, error) {
	admission, err := s.findAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if admission.Stage.Terminal() && !s.patchAfterDecision {
		return nil, appErrors.Clone(appErrors.ErrState, "admission already decided")
	}
	version := req.Version
	if version == 0 {
		version = admission.Version
	}
	params := repository.UpdateFieldsParams{
		ID:            id,
		Version:       version,
		ApplicantName: req.ApplicantName,
		FatherName:    req.FatherName,
		ContactNumber: req.ContactNumber,
		CNIC:          req.CNIC,
		Address:       req.Address,
		Notes:         req.Notes,
	}
	if err := s.repo.UpdateFields(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to patch admission")
	}
	updated, err := s.findAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionAdmissionPatch, id, admission, updated)
	return updated, nil
}

// Decide finalizes an admission. Approve allocates the admission number and
// creates exactly one student in the same transaction; reject only closes the
// pipeline. Both are terminal: later advance/approve/reject calls fail.
func (s *AdmissionService) Decide(ctx context.Context, id string, req dto.DecideAdmissionRequest, actor, idemKey string) (*dto.DecisionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	admission, err := s.findAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if admission.Stage.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission already decided")
	}

	version := req.Version
	if version == 0 {
		version = admission.Version
	}

	switch req.Action {
	case dto.DecisionReject:
		return s.reject(ctx, admission, req, version, actor)
	case dto.DecisionApprove:
		return s.approve(ctx, admission, req, version, actor, idemKey)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject")
	}
}

func (s *AdmissionService) reject(ctx context.Context, admission *models.Admission, req dto.DecideAdmissionRequest, version int, actor string) (*dto.DecisionResult, error) {
	params := repository.DecideParams{
		ID:           admission.ID,
		Version:      version,
		FromStage:    admission.Stage,
		ToStage:      models.StageRejected,
		Actor:        actor,
		DecisionNote: optionalString(req.DecisionNote),
	}
	if err := s.repo.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject admission")
	}
	updated, err := s.findAdmission(ctx, admission.ID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionAdmissionReject, admission.ID, admission, updated)
	if s.metrics != nil {
		s.metrics.IncAdmissionDecision(string(dto.DecisionReject))
	}
	s.refreshOpenGauge(ctx)
	return &dto.DecisionResult{Admission: updated}, nil
}

func (s *AdmissionService) approve(ctx context.Context, admission *models.Admission, req dto.DecideAdmissionRequest, version int, actor, idemKey string) (*dto.DecisionResult, error) {
	number := strings.TrimSpace(req.AdmissionNumber)
	if number == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admission number is required")
	}
	if req.DepartmentID == "" || req.ClassID == "" || req.SectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department, class, and section are required for approval")
	}
	if err := s.validatePlacement(ctx, req); err != nil {
		return nil, err
	}

	number, err := s.allocator.Allocate(ctx, req.DepartmentID, number)
	if err != nil {
		return nil, err
	}

	if s.idem != nil && idemKey != "" {
		ok, err := s.idem.Reserve(ctx, idemKey)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve idempotency key")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate approval request")
		}
	}

	admissionDate := time.Now().UTC()
	if req.AdmissionDate != nil {
		admissionDate = req.AdmissionDate.UTC()
	}
	student := &models.Student{
		AdmissionID:     admission.ID,
		AdmissionNumber: number,
		FullName:        admission.ApplicantName,
		DepartmentID:    req.DepartmentID,
		ClassID:         req.ClassID,
		SectionID:       req.SectionID,
		HalaqahID:       req.HalaqahID,
		Status:          models.StudentStatusActive,
		Hostel:          req.Hostel,
		Transport:       req.Transport,
		Scholarship:     req.Scholarship,
	}
	params := repository.DecideParams{
		ID:              admission.ID,
		Version:         version,
		FromStage:       admission.Stage,
		ToStage:         models.StageApproved,
		Actor:           actor,
		DecisionNote:    optionalString(req.DecisionNote),
		AdmissionNumber: &number,
		AdmissionDate:   &admissionDate,
		Student:         student,
	}
	if err := s.repo.Decide(ctx, params); err != nil {
		s.releaseIdempotencyKey(ctx, idemKey)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission already decided")
		}
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve admission")
	}

	updated, err := s.findAdmission(ctx, admission.ID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionAdmissionApprove, admission.ID, admission, updated)
	if s.metrics != nil {
		s.metrics.IncAdmissionDecision(string(dto.DecisionApprove))
	}
	s.logger.Info("admission approved",
		zap.String("admission_id", admission.ID),
		zap.String("student_id", student.ID),
		zap.String("admission_number", number),
	)
	s.refreshOpenGauge(ctx)
	return &dto.DecisionResult{Admission: updated, Student: student}, nil
}

func (s *AdmissionService) validatePlacement(ctx context.Context, req dto.DecideAdmissionRequest) error {
	if s.catalog == nil {
		return nil
	}
	checks := []struct {
		name   string
		id     string
		exists func(context.Context, string) (bool, error)
	}{
		{"department", req.DepartmentID, s.catalog.DepartmentExists},
		{"class", req.ClassID, s.catalog.ClassExists},
		{"section", req.SectionID, s.catalog.SectionExists},
	}
	if req.HalaqahID != nil && *req.HalaqahID != "" {
		checks = append(checks, struct {
			name   string
			id     string
			exists func(context.Context, string) (bool, error)
		}{"halaqah", *req.HalaqahID, s.catalog.HalaqahExists})
	}
	for _, check := range checks {
		ok, err := check.exists(ctx, check.id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to validate %s", check.name))
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s id: %s", check.name, check.id))
		}
	}
	return nil
}

func (s *AdmissionService) findAdmission(ctx context.Context, id string) (*models.Admission, error) {
	admission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission")
	}
	return admission, nil
}

// refreshOpenGauge recounts the open pipeline after anything that changes it.
// Gauge staleness is tolerable, so failures only warn.
func (s *AdmissionService) refreshOpenGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.repo.CountOpen(ctx)
	if err != nil {
		s.logger.Warn("failed to count open admissions", zap.Error(err))
		return
	}
	s.metrics.SetOpenAdmissions(count)
}

func (s *AdmissionService) releaseIdempotencyKey(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release idempotency key", zap.Error(err))
	}
}

func (s *AdmissionService) emitAudit(ctx context.Context, actor, action, resourceID string, oldValue, newValue interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Actor:      actor,
		Action:     action,
		Resource:   "admission",
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

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
