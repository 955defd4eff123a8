package service

import (
	"context"

	"github.com/madrasa-adp/intake-api/internal/models"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type catalogStore interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListClasses(ctx context.Context, departmentID string) ([]models.Class, error)
	ListSections(ctx context.Context, classID string) ([]models.Section, error)
	ListHalaqahs(ctx context.Context, departmentID string) ([]models.Halaqah, error)
}

// CatalogService exposes the read-only reference catalog.
type CatalogService struct {
	repo catalogStore
}

// NewCatalogService constructs the service.
func NewCatalogService(repo catalogStore) *CatalogService {
	return &CatalogService{repo: repo}
}

// Departments lists all departments.
func (s *CatalogService) Departments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// Classes lists classes, optionally scoped to a department.
func (s *CatalogService) Classes(ctx context.Context, departmentID string) ([]models.Class, error) {
	classes, err := s.repo.ListClasses(ctx, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Sections lists sections, optionally scoped to a class.
func (s *CatalogService) Sections(ctx context.Context, classID string) ([]models.Section, error) {
	sections, err := s.repo.ListSections(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

// Halaqahs lists halaqahs, optionally scoped to a department.
func (s *CatalogService) Halaqahs(ctx context.Context, departmentID string) ([]models.Halaqah, error) {
	halaqahs, err := s.repo.ListHalaqahs(ctx, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list halaqahs")
	}
	return halaqahs, nil
}
