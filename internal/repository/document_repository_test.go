package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-adp/intake-api/internal/models"
)

func TestDocumentRepositoryAdd(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admission_documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{AdmissionID: "a1", Title: "B-Form"}
	require.NoError(t, repo.Add(context.Background(), doc))
	require.NotEmpty(t, doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdateUnknownKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admission_documents SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	verified := true
	err := repo.Update(context.Background(), UpdateDocumentParams{ID: "ghost", Verified: &verified})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryRemove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM admission_documents")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Remove(context.Background(), "doc-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM admission_documents")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Remove(context.Background(), "doc-1"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
