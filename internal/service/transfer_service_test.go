package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	"github.com/madrasa-adp/intake-api/internal/repository"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type stubTransferStore struct {
	students map[string]models.Student
	records  []models.TransferRecord
	applied  *repository.ApplyParams
}

func (s *stubTransferStore) Apply(ctx context.Context, params repository.ApplyParams) error {
	current, ok := s.students[params.Student.ID]
	if !ok || current.Version != params.StudentVersion {
		return sql.ErrNoRows
	}
	mutated := *params.Student
	mutated.Version = params.StudentVersion + 1
	s.students[mutated.ID] = mutated
	if params.Record.ID == "" {
		params.Record.ID = "tr-new"
	}
	s.records = append(s.records, *params.Record)
	s.applied = &params
	return nil
}

func (s *stubTransferStore) ListByStudent(ctx context.Context, studentID string, filter models.TransferFilter) ([]models.TransferRecord, error) {
	var out []models.TransferRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].StudentID == studentID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *stubTransferStore) FindByID(ctx context.Context, id string) (*models.TransferRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			record := r
			return &record, nil
		}
	}
	return nil, sql.ErrNoRows
}

type stubStudentLookup struct {
	store *stubTransferStore
}

func (s *stubStudentLookup) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s.store.students[id]; ok {
		return &st, nil
	}
	return nil, sql.ErrNoRows
}

func seedTransferStore(status models.StudentStatus) *stubTransferStore {
	halaqah := "h1"
	return &stubTransferStore{students: map[string]models.Student{
		"s1": {
			ID: "s1", AdmissionID: "a1", AdmissionNumber: "HIFZ-26-0001", FullName: "Ahmed Raza",
			DepartmentID: "d1", ClassID: "c1", SectionID: "sec1", HalaqahID: &halaqah,
			Status: status, Version: 3,
		},
	}}
}

func newTransferService(store *stubTransferStore, audit *stubAudit, idem *stubIdem, opts ...TransferServiceOption) *TransferService {
	return NewTransferService(store, &stubStudentLookup{store: store}, &stubCatalog{}, audit, idem, validator.New(), zap.NewNop(), opts...)
}

func TestTransferServicePromotion(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	audit := &stubAudit{}
	svc := newTransferService(store, audit, &stubIdem{})

	result, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypePromotion,
		ToClassID:   "c2",
		ToSectionID: "sec9",
		Version:     3,
	}, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, "c2", result.Student.ClassID)
	assert.Equal(t, "sec9", result.Student.SectionID)
	assert.Equal(t, 4, result.Student.Version)
	assert.Equal(t, "c1", result.Transfer.FromClassID)
	assert.Equal(t, "sec1", result.Transfer.FromSectionID)
	assert.Equal(t, "c2", result.Transfer.ToClassID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTransferApply, audit.logs[0].Action)
}

func TestTransferServiceSectionChange(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	result, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypeSectionChange,
		ToSectionID: "sec2",
		Version:     3,
	}, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, "c1", result.Student.ClassID)
	assert.Equal(t, "sec2", result.Student.SectionID)
}

func TestTransferServiceHalaqahChange(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	target := "h2"
	result, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypeHalaqahChange,
		ToHalaqahID: &target,
		Version:     3,
	}, "admin", "")
	require.NoError(t, err)
	require.NotNil(t, result.Student.HalaqahID)
	assert.Equal(t, "h2", *result.Student.HalaqahID)
	require.NotNil(t, result.Transfer.FromHalaqahID)
	assert.Equal(t, "h1", *result.Transfer.FromHalaqahID)
}

func TestTransferServiceTC(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	url := "https://files.example/tc.pdf"
	result, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:    models.TransferTypeTC,
		Reason:  "family relocation",
		TCURL:   &url,
		Version: 3,
	}, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusLeft, result.Student.Status)
	assert.Equal(t, "c1", result.Transfer.ToClassID)
	require.NotNil(t, result.Transfer.TCURL)
}

func TestTransferServiceRejectsLeftStudent(t *testing.T) {
	store := seedTransferStore(models.StudentStatusLeft)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	_, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypeSectionChange,
		ToSectionID: "sec2",
		Version:     3,
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrState.Code, appErr.Code)
	assert.Nil(t, store.applied)
}

func TestTransferServiceMissingTarget(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	_, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:    models.TransferTypePromotion,
		Version: 3,
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestTransferServiceUnknownSection(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	catalog := &stubCatalog{missing: map[string]bool{"ghost": true}}
	svc := NewTransferService(store, &stubStudentLookup{store: store}, catalog, &stubAudit{}, &stubIdem{}, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypeSectionChange,
		ToSectionID: "ghost",
		Version:     3,
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestTransferServiceStaleVersion(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	_, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypeSectionChange,
		ToSectionID: "sec2",
		Version:     9,
	}, "admin", "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestTransferServiceIdempotencyReplay(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	idem := &stubIdem{reserved: map[string]bool{"key-9": true}}
	svc := newTransferService(store, &stubAudit{}, idem)

	_, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
		Type:        models.TransferTypeSectionChange,
		ToSectionID: "sec2",
		Version:     3,
	}, "admin", "key-9")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, store.applied)
}

func TestTransferServiceList(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	for _, section := range []string{"sec2", "sec3"} {
		_, err := svc.Apply(context.Background(), "s1", dto.ApplyTransferRequest{
			Type:        models.TransferTypeSectionChange,
			ToSectionID: section,
		}, "admin", "")
		require.NoError(t, err)
	}

	records, err := svc.List(context.Background(), "s1", dto.TransferQuery{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sec3", records[0].ToSectionID)
	assert.Equal(t, "sec2", records[1].ToSectionID)
}

func TestTransferServiceListUnknownStudent(t *testing.T) {
	store := seedTransferStore(models.StudentStatusActive)
	svc := newTransferService(store, &stubAudit{}, &stubIdem{})

	_, err := svc.List(context.Background(), "ghost", dto.TransferQuery{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
