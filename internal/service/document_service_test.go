package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
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

type stubDocumentStore struct {
	docs    map[string]models.Document
	nextPos int
	nextID  int
}

func (s *stubDocumentStore) Add(ctx context.Context, doc *models.Document) error {
	if s.docs == nil {
		s.docs = make(map[string]models.Document)
	}
	s.nextID++
	s.nextPos++
	if doc.ID == "" {
		doc.ID = "doc-" + string(rune('0'+s.nextID))
	}
	doc.Position = s.nextPos
	s.docs[doc.ID] = *doc
	return nil
}

func (s *stubDocumentStore) FindByID(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := s.docs[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubDocumentStore) ListByAdmission(ctx context.Context, admissionID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range s.docs {
		if d.AdmissionID == admissionID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *stubDocumentStore) Update(ctx context.Context, params repository.UpdateDocumentParams) error {
	d, ok := s.docs[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Title != nil {
		d.Title = *params.Title
	}
	if params.URL != nil {
		d.URL = *params.URL
	}
	if params.Verified != nil {
		d.Verified = *params.Verified
	}
	s.docs[params.ID] = d
	return nil
}

func (s *stubDocumentStore) Remove(ctx context.Context, id string) error {
	if _, ok := s.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.docs, id)
	return nil
}

func newDocumentService(store *stubDocumentStore, audit *stubAudit) *DocumentService {
	admissions := &stubAdmissionStore{admissions: map[string]models.Admission{
		"a1": {ID: "a1", Stage: models.StageDocuments, Version: 1},
	}}
	return NewDocumentService(store, admissions, audit, validator.New(), zap.NewNop())
}

func TestDocumentServiceAdd(t *testing.T) {
	store := &stubDocumentStore{}
	audit := &stubAudit{}
	svc := newDocumentService(store, audit)

	doc, err := svc.Add(context.Background(), "a1", dto.AddDocumentRequest{Title: "B-Form", URL: "https://files.example/bform.pdf"}, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "a1", doc.AdmissionID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionDocumentAdd, audit.logs[0].Action)
}

func TestDocumentServiceAddUnknownAdmission(t *testing.T) {
	svc := newDocumentService(&stubDocumentStore{}, &stubAudit{})

	_, err := svc.Add(context.Background(), "ghost", dto.AddDocumentRequest{Title: "B-Form"}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDocumentServiceKeysStableAcrossRemoval(t *testing.T) {
	store := &stubDocumentStore{}
	svc := newDocumentService(store, &stubAudit{})

	first, err := svc.Add(context.Background(), "a1", dto.AddDocumentRequest{Title: "B-Form"}, "admin")
	require.NoError(t, err)
	second, err := svc.Add(context.Background(), "a1", dto.AddDocumentRequest{Title: "Photo"}, "admin")
	require.NoError(t, err)
	third, err := svc.Add(context.Background(), "a1", dto.AddDocumentRequest{Title: "Vaccination Card"}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), second.ID, "admin"))

	verified := true
	updated, err := svc.Update(context.Background(), third.ID, dto.UpdateDocumentRequest{Verified: &verified}, "admin")
	require.NoError(t, err)
	assert.True(t, updated.Verified)
	assert.Equal(t, "Vaccination Card", updated.Title)

	docs, err := svc.List(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, first.ID, docs[0].ID)
	assert.Equal(t, third.ID, docs[1].ID)
}

func TestDocumentServiceUpdateUnknownKey(t *testing.T) {
	svc := newDocumentService(&stubDocumentStore{}, &stubAudit{})

	title := "Renamed"
	_, err := svc.Update(context.Background(), "ghost", dto.UpdateDocumentRequest{Title: &title}, "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDocumentServiceRemoveUnknownKey(t *testing.T) {
	svc := newDocumentService(&stubDocumentStore{}, &stubAudit{})

	err := svc.Remove(context.Background(), "ghost", "admin")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
