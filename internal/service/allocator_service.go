package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/models"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
)

type studentNumberIndex interface {
	ExistsByAdmissionNumber(ctx context.Context, number, excludeID string) (bool, error)
	MaxAdmissionNumber(ctx context.Context, prefix string) (string, error)
}

type departmentCatalog interface {
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
}

// AllocatorService validates admission numbers against the pool of active
// students and generates sequential suggestions per department and year.
// Numbers are caller-supplied; Generate is advisory only.
type AllocatorService struct {
	students  studentNumberIndex
	catalog   departmentCatalog
	prefixLen int
	logger    *zap.Logger
}

// NewAllocatorService constructs the allocator. prefixLen bounds the
// department code portion of generated numbers.
func NewAllocatorService(students studentNumberIndex, catalog departmentCatalog, prefixLen int, logger *zap.Logger) *AllocatorService {
	if prefixLen <= 0 {
		prefixLen = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocatorService{students: students, catalog: catalog, prefixLen: prefixLen, logger: logger}
}

// Allocate validates a caller-supplied number: non-blank and not held by any
// active student. It returns the trimmed number on success.
func (s *AllocatorService) Allocate(ctx context.Context, departmentID, requested string) (string, error) {
	number := strings.TrimSpace(requested)
	if number == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "admission number is required")
	}
	taken, err := s.students.ExistsByAdmissionNumber(ctx, number, "")
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
	}
	if taken {
		return "", appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("admission number %s is already assigned", number))
	}
	return number, nil
}

// Generate suggests the next free number in the <DEPT>-<YY>-<NNNN> scheme.
// The suggestion is not reserved; Allocate re-validates at approval time.
func (s *AllocatorService) Generate(ctx context.Context, departmentID string, year int) (string, error) {
	department, err := s.catalog.FindDepartmentByID(ctx, departmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	code := strings.ToUpper(strings.TrimSpace(department.Code))
	if len(code) > s.prefixLen {
		code = code[:s.prefixLen]
	}
	if code == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "department has no code")
	}
	if year <= 0 {
		year = time.Now().UTC().Year()
	}
	prefix := fmt.Sprintf("%s-%02d-", code, year%100)

	last, err := s.students.MaxAdmissionNumber(ctx, prefix)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan existing numbers")
	}
	next := 1
	if last != "" {
		if seq, err := strconv.Atoi(strings.TrimPrefix(last, prefix)); err == nil {
			next = seq + 1
		} else {
			s.logger.Warn("unparseable admission number in sequence", zap.String("number", last))
		}
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}
