package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-adp/intake-api/internal/models"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
	"github.com/madrasa-adp/intake-api/pkg/storage"
)

type stubExportAdmissions struct {
	admissions []models.Admission
}

func (s *stubExportAdmissions) List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error) {
	if filter.Page > 1 {
		return nil, len(s.admissions), nil
	}
	return s.admissions, len(s.admissions), nil
}

func newExportService(t *testing.T) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	number := "HIFZ-26-0001"
	return NewExportService(ExportServiceConfig{
		Admissions: &stubExportAdmissions{admissions: []models.Admission{{
			ID:              "a1",
			ApplicantName:   "Ahmed Raza",
			FatherName:      "Raza Khan",
			ContactNumber:   "0300",
			Stage:           models.StageApproved,
			AdmissionNumber: &number,
			CreatedAt:       time.Now().UTC(),
		}}},
		Storage:         store,
		Signer:          storage.NewSignedURLSigner("secret", time.Hour),
		InstitutionName: "Madrasa Tul Uloom",
	})
}

func waitForExport(t *testing.T, svc *ExportService, id string) *ExportJob {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := svc.Job(id)
		return err == nil && job.Status != ExportStatusPending
	}, 2*time.Second, 10*time.Millisecond)
	job, err := svc.Job(id)
	require.NoError(t, err)
	return job
}

func downloadExport(t *testing.T, svc *ExportService, downloadURL string) []byte {
	t.Helper()
	token := strings.TrimPrefix(downloadURL, "/api/v1/exports/download?token=")
	file, _, err := svc.Download(token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	return data
}

func TestExportServiceAdmissionRegisterCSV(t *testing.T) {
	svc := newExportService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.QueueAdmissionRegister(models.AdmissionFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, job.Format)

	done := waitForExport(t, svc, job.ID)
	require.Equal(t, ExportStatusCompleted, done.Status)
	assert.True(t, strings.HasSuffix(done.FilePath, ".csv"))

	data := downloadExport(t, svc, done.DownloadURL)
	assert.Contains(t, string(data), "Ahmed Raza")
	assert.Contains(t, string(data), "HIFZ-26-0001")
}

func TestExportServiceAdmissionRegisterPDF(t *testing.T) {
	svc := newExportService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.QueueAdmissionRegister(models.AdmissionFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, ExportFormatPDF, job.Format)

	done := waitForExport(t, svc, job.ID)
	require.Equal(t, ExportStatusCompleted, done.Status)
	assert.True(t, strings.HasSuffix(done.FilePath, ".pdf"))

	data := downloadExport(t, svc, done.DownloadURL)
	require.True(t, len(data) > 4)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestExportServiceUnknownFormat(t *testing.T) {
	svc := newExportService(t)

	_, err := svc.QueueAdmissionRegister(models.AdmissionFilter{}, "xlsx")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
