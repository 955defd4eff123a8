package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-adp/intake-api/internal/models"
)

func TestStudentRepositoryExistsByAdmissionNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students")).
		WithArgs("HIFZ-26-0001", models.StudentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByAdmissionNumber(context.Background(), "HIFZ-26-0001", "")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students")).
		WithArgs("HIFZ-26-9999", models.StudentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsByAdmissionNumber(context.Background(), "HIFZ-26-9999", "")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryMaxAdmissionNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.admission_number FROM students")).
		WithArgs("HIFZ-26-%").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number"}).AddRow("HIFZ-26-0041"))

	number, err := repo.MaxAdmissionNumber(context.Background(), "HIFZ-26-")
	require.NoError(t, err)
	require.Equal(t, "HIFZ-26-0041", number)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.admission_number FROM students")).
		WithArgs("NAZR-26-%").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number"}))

	number, err = repo.MaxAdmissionNumber(context.Background(), "NAZR-26-")
	require.NoError(t, err)
	require.Empty(t, number)
	require.NoError(t, mock.ExpectationsWereMet())
}
