package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madrasa-adp/intake-api/internal/dto"
	"github.com/madrasa-adp/intake-api/internal/models"
	appErrors "github.com/madrasa-adp/intake-api/pkg/errors"
	"github.com/madrasa-adp/intake-api/pkg/export"
	"github.com/madrasa-adp/intake-api/pkg/jobs"
	"github.com/madrasa-adp/intake-api/pkg/storage"
)

// Export job types, formats, and statuses.
const (
	ExportTypeAdmissionRegister = "admission_register"
	ExportTypeStudentRoster     = "student_roster"

	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"

	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// exportPageSize matches the repository listing cap.
const exportPageSize = 100

// ExportJob tracks one queued export from request to downloadable file.
type ExportJob struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	FilePath    string     `json:"-"`
	DownloadURL string     `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type exportAdmissionSource interface {
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error)
}

type exportStudentSource interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type transferRecordSource interface {
	FindByID(ctx context.Context, id string) (*models.TransferRecord, error)
}

// ExportService renders register/roster files (CSV or tabular PDF) in
// background workers and leaving-certificate PDFs synchronously. Files are
// served through signed, expiring download tokens.
type ExportService struct {
	admissions  exportAdmissionSource
	students    exportStudentSource
	transfers   transferRecordSource
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	queue       *jobs.Queue
	logger      *zap.Logger
	institution string

	jobs sync.Map
}

// ExportServiceConfig wires the export pipeline.
type ExportServiceConfig struct {
	Admissions      exportAdmissionSource
	Students        exportStudentSource
	Transfers       transferRecordSource
	Storage         *storage.LocalStorage
	Signer          *storage.SignedURLSigner
	InstitutionName string
	Workers         int
	Retries         int
	Logger          *zap.Logger
}

// NewExportService constructs the service and its worker queue. Call Start
// before queueing exports.
func NewExportService(cfg ExportServiceConfig) *ExportService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	svc := &ExportService{
		admissions:  cfg.Admissions,
		students:    cfg.Students,
		transfers:   cfg.Transfers,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		store:       cfg.Storage,
		signer:      cfg.Signer,
		logger:      cfg.Logger,
		institution: cfg.InstitutionName,
	}
	svc.queue = jobs.NewQueue("exports", svc.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     cfg.Logger,
	})
	return svc
}

// Start launches the background workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

type admissionRegisterPayload struct {
	Filter models.AdmissionFilter
	Format string
}

type studentRosterPayload struct {
	Filter models.StudentFilter
	Format string
}

// QueueAdmissionRegister schedules an export of the admission register.
func (s *ExportService) QueueAdmissionRegister(filter models.AdmissionFilter, format string) (*ExportJob, error) {
	format, err := normalizeExportFormat(format)
	if err != nil {
		return nil, err
	}
	return s.enqueue(ExportTypeAdmissionRegister, format, admissionRegisterPayload{Filter: filter, Format: format})
}

// QueueStudentRoster schedules an export of the student roster.
func (s *ExportService) QueueStudentRoster(filter models.StudentFilter, format string) (*ExportJob, error) {
	format, err := normalizeExportFormat(format)
	if err != nil {
		return nil, err
	}
	return s.enqueue(ExportTypeStudentRoster, format, studentRosterPayload{Filter: filter, Format: format})
}

func normalizeExportFormat(format string) (string, error) {
	switch format {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// Job returns the tracked state of a queued export.
func (s *ExportService) Job(id string) (*ExportJob, error) {
	value, ok := s.jobs.Load(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	job := value.(ExportJob)
	return &job, nil
}

// Download validates the token and opens the referenced file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return file, relPath, nil
}

// LeavingCertificate renders a transfer certificate for a TC record and
// returns a signed download link. Rendering is synchronous; certificates are
// small single-page documents.
func (s *ExportService) LeavingCertificate(ctx context.Context, studentID, transferID string) (*dto.CertificateResult, error) {
	record, err := s.transfers.FindByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transfer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transfer")
	}
	if record.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "transfer not found")
	}
	if record.Type != models.TransferTypeTC {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificates exist only for leaving transfers")
	}
	student, err := s.students.FindDetailByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	cert := export.Certificate{
		InstitutionName: s.institution,
		SerialNumber:    record.ID,
		StudentName:     student.FullName,
		AdmissionNumber: student.AdmissionNumber,
		EffectiveDate:   record.EffectiveDate.Format("2006-01-02"),
		Reason:          record.Reason,
		IssuedAt:        time.Now().UTC().Format("2006-01-02"),
	}
	if student.ClassName != nil {
		cert.ClassName = *student.ClassName
	}
	if student.SectionName != nil {
		cert.SectionName = *student.SectionName
	}
	data, err := s.pdf.RenderCertificate(cert)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	relPath := fmt.Sprintf("certificates/tc-%s.pdf", record.ID)
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	token, expiresAt, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.CertificateResult{
		TransferID:  record.ID,
		DownloadURL: downloadPath(token),
		ExpiresAt:   expiresAt,
	}, nil
}

// CleanupExpired removes export files older than the TTL.
func (s *ExportService) CleanupExpired(ttl time.Duration) {
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export cleanup", zap.Int("deleted", len(deleted)))
	}
}

func (s *ExportService) enqueue(exportType, format string, payload interface{}) (*ExportJob, error) {
	job := ExportJob{
		ID:          uuid.NewString(),
		Type:        exportType,
		Format:      format,
		Status:      ExportStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	s.jobs.Store(job.ID, job)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: exportType, Payload: payload}); err != nil {
		s.jobs.Delete(job.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}
	return &job, nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	var (
		dataset export.Dataset
		title   string
		format  string
		prefix  string
		err     error
	)
	switch job.Type {
	case ExportTypeAdmissionRegister:
		payload, _ := job.Payload.(admissionRegisterPayload)
		dataset, err = s.admissionRegisterDataset(ctx, payload.Filter)
		title = "Admission Register"
		format = payload.Format
		prefix = fmt.Sprintf("registers/admissions-%s", job.ID)
	case ExportTypeStudentRoster:
		payload, _ := job.Payload.(studentRosterPayload)
		dataset, err = s.studentRosterDataset(ctx, payload.Filter)
		title = "Student Roster"
		format = payload.Format
		prefix = fmt.Sprintf("rosters/students-%s", job.ID)
	default:
		s.fail(job.ID, fmt.Sprintf("unknown export type %s", job.Type))
		return nil
	}
	if err != nil {
		s.fail(job.ID, err.Error())
		return err
	}

	var (
		data    []byte
		relPath string
	)
	if format == ExportFormatPDF {
		data, err = s.pdf.Render(dataset, title)
		relPath = prefix + ".pdf"
	} else {
		data, err = s.csv.Render(dataset)
		relPath = prefix + ".csv"
	}
	if err != nil {
		s.fail(job.ID, err.Error())
		return err
	}
	if _, err := s.store.Save(relPath, data); err != nil {
		s.fail(job.ID, err.Error())
		return err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.fail(job.ID, err.Error())
		return err
	}
	s.complete(job.ID, relPath, token, expiresAt)
	return nil
}

func (s *ExportService) admissionRegisterDataset(ctx context.Context, filter models.AdmissionFilter) (export.Dataset, error) {
	filter.PageSize = exportPageSize
	var admissions []models.Admission
	for page := 1; ; page++ {
		filter.Page = page
		batch, _, err := s.admissions.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, fmt.Errorf("load admission register: %w", err)
		}
		admissions = append(admissions, batch...)
		if len(batch) < exportPageSize {
			break
		}
	}
	headers := []string{"ID", "Applicant", "Father", "Contact", "Stage", "Admission Number", "Created At"}
	rows := make([]map[string]string, 0, len(admissions))
	for _, a := range admissions {
		number := ""
		if a.AdmissionNumber != nil {
			number = *a.AdmissionNumber
		}
		rows = append(rows, map[string]string{
			"ID":               a.ID,
			"Applicant":        a.ApplicantName,
			"Father":           a.FatherName,
			"Contact":          a.ContactNumber,
			"Stage":            string(a.Stage),
			"Admission Number": number,
			"Created At":       a.CreatedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func (s *ExportService) studentRosterDataset(ctx context.Context, filter models.StudentFilter) (export.Dataset, error) {
	filter.PageSize = exportPageSize
	var students []models.StudentDetail
	for page := 1; ; page++ {
		filter.Page = page
		batch, _, err := s.students.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, fmt.Errorf("load student roster: %w", err)
		}
		students = append(students, batch...)
		if len(batch) < exportPageSize {
			break
		}
	}
	headers := []string{"ID", "Admission Number", "Name", "Department", "Class", "Section", "Status", "Hostel", "Transport"}
	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		row := map[string]string{
			"ID":               st.ID,
			"Admission Number": st.AdmissionNumber,
			"Name":             st.FullName,
			"Status":           string(st.Status),
			"Hostel":           strconv.FormatBool(st.Hostel),
			"Transport":        strconv.FormatBool(st.Transport),
		}
		if st.DepartmentName != nil {
			row["Department"] = *st.DepartmentName
		}
		if st.ClassName != nil {
			row["Class"] = *st.ClassName
		}
		if st.SectionName != nil {
			row["Section"] = *st.SectionName
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func (s *ExportService) fail(id, message string) {
	value, ok := s.jobs.Load(id)
	if !ok {
		return
	}
	job := value.(ExportJob)
	job.Status = ExportStatusFailed
	job.Error = message
	s.jobs.Store(id, job)
}

func (s *ExportService) complete(id, relPath, token string, expiresAt time.Time) {
	value, ok := s.jobs.Load(id)
	if !ok {
		return
	}
	job := value.(ExportJob)
	now := time.Now().UTC()
	job.Status = ExportStatusCompleted
	job.FilePath = relPath
	job.DownloadURL = downloadPath(token)
	job.ExpiresAt = &expiresAt
	job.CompletedAt = &now
	job.Error = ""
	s.jobs.Store(id, job)
}

func downloadPath(token string) string {
	return "/api/v1/exports/download?token=" + token
}
