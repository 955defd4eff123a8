package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/repository"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type stubAdmissionStore struct {
	admissions map[string]models.Admission
	events     []models.StageEvent
	decided    *repository.DecideParams
	decideErr  error
}

func (s *stubAdmissionStore) Create(ctx context.Context, admission *models.Admission) error {
	if s.admissions == nil {
		s.admissions = make(map[string]models.Admission)
	}
	if admission.ID == "" {
		admission.ID = "adm-new"
	}
	if admission.Version == 0 {
		admission.Version = 1
	}
	s.admissions[admission.ID] = *admission
	return nil
}

func (s *stubAdmissionStore) List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error) {
	var list []models.Admission
	for _, a := range s.admissions {
		list = append(list, a)
	}
	return list, len(list), nil
}

func (s *stubAdmissionStore) FindByID(ctx context.Context, id string) (*models.Admission, error) {
	if a, ok := s.admissions[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAdmissionStore) ListStageEvents(ctx context.Context, admissionID string) ([]models.StageEvent, error) {
	var events []models.StageEvent
	for _, e := range s.events {
		if e.AdmissionID == admissionID {
			events = append(events, e)
		}
	}
	return events, nil
}

func (s *stubAdmissionStore) UpdateFields(ctx context.Context, params repository.UpdateFieldsParams) error {
	a, ok := s.admissions[params.ID]
	if !ok || a.Version != params.Version {
		return sql.ErrNoRows
	}
	if params.ApplicantName != nil {
		a.ApplicantName = *params.ApplicantName
	}
	if params.Notes != nil {
		a.Notes = *params.Notes
	}
	a.Version++
	s.admissions[params.ID] = a
	return nil
}

func (s *stubAdmissionStore) AdvanceStage(ctx context.Context, params repository.AdvanceStageParams) error {
	a, ok := s.admissions[params.ID]
	if !ok || a.Stage != params.FromStage || a.Version != params.Version {
		return sql.ErrNoRows
	}
	a.Stage = params.ToStage
	a.Version++
	s.admissions[params.ID] = a
	s.events = append(s.events, models.StageEvent{AdmissionID: params.ID, FromStage: params.FromStage, ToStage: params.ToStage, Actor: params.Actor})
	return nil
}

func (s *stubAdmissionStore) CountOpen(ctx context.Context) (int, error) {
	count := 0
	for _, a := range s.admissions {
		if !a.Stage.Terminal() {
			count++
		}
	}
	return count, nil
}

func (s *stubAdmissionStore) Decide(ctx context.Context, params repository.DecideParams) error {
	if s.decideErr != nil {
		return s.decideErr
	}
	a, ok := s.admissions[params.ID]
	if !ok || a.Version != params.Version || a.Stage.Terminal() {
		return sql.ErrNoRows
	}
	if params.Student != nil {
		if params.Student.ID == "" {
			params.Student.ID = "stu-1"
		}
		if params.Student.Version == 0 {
			params.Student.Version = 1
		}
		a.StudentID = &params.Student.ID
	}
	a.Stage = params.ToStage
	a.DecisionNote = params.DecisionNote
	a.AdmissionNumber = params.AdmissionNumber
	a.AdmissionDate = params.AdmissionDate
	a.Version++
	s.admissions[params.ID] = a
	s.events = append(s.events, models.StageEvent{AdmissionID: params.ID, FromStage: params.FromStage, ToStage: params.ToStage, Actor: params.Actor})
	s.decided = &params
	return nil
}

type stubDocumentLister struct {
	documents map[string][]models.Document
}

func (s *stubDocumentLister) ListByAdmission(ctx context.Context, admissionID string) ([]models.Document, error) {
	return s.documents[admissionID], nil
}

type stubAllocator struct {
	err       error
	allocated string
}

func (s *stubAllocator) Allocate(ctx context.Context, departmentID, requested string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.allocated = requested
	return requested, nil
}

type stubCatalog struct {
	missing map[string]bool
}

func (s *stubCatalog) exists(id string) (bool, error) {
	return !s.missing[id], nil
}

func (s *stubCatalog) DepartmentExists(ctx context.Context, id string) (bool, error) {
	return s.exists(id)
}

func (s *stubCatalog) ClassExists(ctx context.Context, id string) (bool, error) {
	return s.exists(id)
}

func (s *stubCatalog) SectionExists(ctx context.Context, id string) (bool, error) {
	return s.exists(id)
}

func (s *stubCatalog) HalaqahExists(ctx context.Context, id string) (bool, error) {
	return s.exists(id)
}

type stubAudit struct {
	logs []models.AuditLog
}

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

type stubIdem struct {
	reserved map[string]bool
	released []string
}

func (s *stubIdem) Reserve(ctx context.Context, key string) (bool, error) {
	if s.reserved == nil {
		s.reserved = make(map[string]bool)
	}
	if s.reserved[key] {
		return false, nil
	}
	s.reserved[key] = true
	return true, nil
}

func (s *stubIdem) Release(ctx context.Context, key string) error {
	delete(s.reserved, key)
	s.released = append(s.released, key)
	return nil
}

func newAdmissionService(repo *stubAdmissionStore, audit *stubAudit, idem *stubIdem, opts ...AdmissionServiceOption) *AdmissionService {
	return NewAdmissionService(repo, &stubDocumentLister{}, &stubAllocator{}, &stubCatalog{}, audit, idem, validator.New(), zap.NewNop(), opts...)
}

func seedAdmission(stage models.AdmissionStage) *stubAdmissionStore {
	return &stubAdmissionStore{admissions: map[string]models.Admission{
		"a1": {ID: "a1", ApplicantName: "Ahmed Raza", FatherName: "Raza Khan", ContactNumber: "0300", Stage: stage, Version: 1},
	}}
}

func TestAdmissionServiceCreate(t *testing.T) {
	repo := &stubAdmissionStore{}
	audit := &stubAudit{}
	svc := newAdmissionService(repo, audit, &stubIdem{})

	admission, err := svc.Create(context.Background(), dto.CreateAdmissionRequest{
		ApplicantName: "Ahmed Raza",
		FatherName:    "Raza Khan",
		ContactNumber: "0300-1234567",
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StageInquiry, admission.Stage)
	assert.Equal(t, 1, admission.Version)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAdmissionCreate, audit.logs[0].Action)
}

func TestAdmissionServiceCreateValidation(t *testing.T) {
	svc := newAdmissionService(&stubAdmissionStore{}, &stubAudit{}, &stubIdem{})

	_, err := svc.Create(context.Background(), dto.CreateAdmissionRequest{ApplicantName: "Ahmed"}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAdmissionServiceAdvance(t *testing.T) {
	repo := seedAdmission(models.StageInquiry)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	admission, err := svc.Advance(context.Background(), "a1", dto.AdvanceAdmissionRequest{Version: 1}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StageForm, admission.Stage)
	assert.Equal(t, 2, admission.Version)
	require.Len(t, repo.events, 1)
	assert.Equal(t, models.StageInquiry, repo.events[0].FromStage)
}

func TestAdmissionServiceAdvanceFullPath(t *testing.T) {
	repo := seedAdmission(models.StageInquiry)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	stages := []models.AdmissionStage{models.StageForm, models.StageDocuments, models.StageInterview}
	for i, want := range stages {
		admission, err := svc.Advance(context.Background(), "a1", dto.AdvanceAdmissionRequest{Version: i + 1}, "admin")
		require.NoError(t, err)
		assert.Equal(t, want, admission.Stage)
	}

	_, err := svc.Advance(context.Background(), "a1", dto.AdvanceAdmissionRequest{Version: 4}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrState.Code, appErr.Code)
}

func TestAdmissionServiceAdvanceStaleVersion(t *testing.T) {
	repo := seedAdmission(models.StageForm)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	_, err := svc.Advance(context.Background(), "a1", dto.AdvanceAdmissionRequest{Version: 7}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAdmissionServiceAdvanceAfterDecision(t *testing.T) {
	repo := seedAdmission(models.StageApproved)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	_, err := svc.Advance(context.Background(), "a1", dto.AdvanceAdmissionRequest{Version: 1}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrState.Code, appErr.Code)
}

func TestAdmissionServicePatch(t *testing.T) {
	repo := seedAdmission(models.StageForm)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	name := "Ahmed Raza Khan"
	admission, err := svc.Patch(context.Background(), "a1", dto.PatchAdmissionRequest{ApplicantName: &name, Version: 1}, "admin")
	require.NoError(t, err)
	assert.Equal(t, name, admission.ApplicantName)
	assert.Equal(t, models.StageForm, admission.Stage)
	assert.Equal(t, 2, admission.Version)
}

func TestAdmissionServicePatchAfterDecisionDisabled(t *testing.T) {
	repo := seedAdmission(models.StageRejected)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{}, WithPatchAfterDecision(false))

	name := "Corrected Name"
	_, err := svc.Patch(context.Background(), "a1", dto.PatchAdmissionRequest{ApplicantName: &name, Version: 1}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrState.Code, appErr.Code)
}

func TestAdmissionServiceApprove(t *testing.T) {
	repo := seedAdmission(models.StageInterview)
	audit := &stubAudit{}
	svc := newAdmissionService(repo, audit, &stubIdem{})

	result, err := svc.Decide(context.Background(), "a1", dto.DecideAdmissionRequest{
		Action:          dto.DecisionApprove,
		Version:         1,
		AdmissionNumber: " HIFZ-26-0001 ",
		DepartmentID:    "d1",
		ClassID:         "c1",
		SectionID:       "sec1",
	}, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, models.StageApproved, result.Admission.Stage)
	require.NotNil(t, result.Student)
	assert.Equal(t, "HIFZ-26-0001", result.Student.AdmissionNumber)
	assert.Equal(t, "Ahmed Raza", result.Student.FullName)
	assert.Equal(t, models.StudentStatusActive, result.Student.Status)
	require.NotNil(t, result.Admission.StudentID)
	assert.Equal(t, result.Student.ID, *result.Admission.StudentID)
}

func TestAdmissionServiceApproveBlankNumber(t *testing.T) {
	svc := newAdmissionService(seedAdmission(models.StageInterview), &stubAudit{}, &stubIdem{})

	_, err := svc.Decide(context.Background(), "a1", dto.DecideAdmissionRequest{
		Action:          dto.DecisionApprove,
		Version:         1,
		AdmissionNumber: "   ",
		DepartmentID:    "d1",
		ClassID:         "c1",
		SectionID:       "sec1",
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAdmissionServiceApproveTwice(t *testing.T) {
	repo := seedAdmission(models.StageInterview)
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	req := dto.DecideAdmissionRequest{
		Action:          dto.DecisionApprove,
		Version:         1,
		AdmissionNumber: "HIFZ-26-0001",
		DepartmentID:    "d1",
		ClassID:         "c1",
		SectionID:       "sec1",
	}
	_, err := svc.Decide(context.Background(), "a1", req, "admin", "")
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), "a1", req, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAdmissionServiceApproveUnknownClass(t *testing.T) {
	repo := seedAdmission(models.StageInterview)
	catalog := &stubCatalog{missing: map[string]bool{"ghost": true}}
	svc := NewAdmissionService(repo, &stubDocumentLister{}, &stubAllocator{}, catalog, &stubAudit{}, &stubIdem{}, validator.New(), zap.NewNop())

	_, err := svc.Decide(context.Background(), "a1", dto.DecideAdmissionRequest{
		Action:          dto.DecisionApprove,
		Version:         1,
		AdmissionNumber: "HIFZ-26-0001",
		DepartmentID:    "d1",
		ClassID:         "ghost",
		SectionID:       "sec1",
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAdmissionServiceApproveIdempotencyReplay(t *testing.T) {
	repo := seedAdmission(models.StageInterview)
	idem := &stubIdem{reserved: map[string]bool{"key-1": true}}
	svc := newAdmissionService(repo, &stubAudit{}, idem)

	_, err := svc.Decide(context.Background(), "a1", dto.DecideAdmissionRequest{
		Action:          dto.DecisionApprove,
		Version:         1,
		AdmissionNumber: "HIFZ-26-0001",
		DepartmentID:    "d1",
		ClassID:         "c1",
		SectionID:       "sec1",
	}, "admin", "key-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, repo.decided)
}

func TestAdmissionServiceReject(t *testing.T) {
	repo := seedAdmission(models.StageDocuments)
	audit := &stubAudit{}
	svc := newAdmissionService(repo, audit, &stubIdem{})

	result, err := svc.Decide(context.Background(), "a1", dto.DecideAdmissionRequest{
		Action:       dto.DecisionReject,
		Version:      1,
		DecisionNote: "incomplete documents",
	}, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, models.StageRejected, result.Admission.Stage)
	assert.Nil(t, result.Student)
	require.NotNil(t, result.Admission.DecisionNote)
	assert.Equal(t, "incomplete documents", *result.Admission.DecisionNote)
}

func TestAdmissionServiceApproveDuplicateNumber(t *testing.T) {
	repo := seedAdmission(models.StageInterview)
	repo.decideErr = fmt.Errorf("create student: %w", &pq.Error{Code: "23505"})
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{})

	_, err := svc.Decide(context.Background(), "a1", dto.DecideAdmissionRequest{
		Action:          dto.DecisionApprove,
		Version:         1,
		AdmissionNumber: "HIFZ-26-0001",
		DepartmentID:    "d1",
		ClassID:         "c1",
		SectionID:       "sec1",
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAdmissionServiceOpenAdmissionsGauge(t *testing.T) {
	repo := &stubAdmissionStore{}
	metrics := NewMetricsService()
	svc := newAdmissionService(repo, &stubAudit{}, &stubIdem{}, WithAdmissionMetrics(metrics))

	_, err := svc.Create(context.Background(), dto.CreateAdmissionRequest{
		ApplicantName: "Ahmed Raza",
		FatherName:    "Raza Khan",
		ContactNumber: "0300-1234567",
	}, "admin")
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, metrics), "admissions_open 1")

	_, err = svc.Decide(context.Background(), "adm-new", dto.DecideAdmissionRequest{
		Action:  dto.DecisionReject,
		Version: 1,
	}, "admin", "")
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, metrics), "admissions_open 0")
}

func scrapeMetrics(t *testing.T, m *MetricsService) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(w, req)
	return w.Body.String()
}

func TestAdmissionServiceGetNotFound(t *testing.T) {
	svc := newAdmissionService(&stubAdmissionStore{}, &stubAudit{}, &stubIdem{})

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
