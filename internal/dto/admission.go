package dto

import (
	"time"

	"github.com/madrasa-adp/intake-api/internal/models"
)

// CreateAdmissionRequest opens an intake record at the inquiry stage.
type CreateAdmissionRequest struct {
	ApplicantName string `json:"applicant_name" validate:"required"`
	FatherName    string `json:"father_name" validate:"required"`
	ContactNumber string `json:"contact_number" validate:"required"`
	CNIC          string `json:"cnic"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
}

// PatchAdmissionRequest updates non-state fields. Nil pointers are left untouched.
type PatchAdmissionRequest struct {
	ApplicantName *string `json:"applicant_name,omitempty"`
	FatherName    *string `json:"father_name,omitempty"`
	ContactNumber *string `json:"contact_number,omitempty"`
	CNIC          *string `json:"cnic,omitempty"`
	Address       *string `json:"address,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Version       int     `json:"version"`
}

// AdvanceAdmissionRequest moves the stage one step forward.
type AdvanceAdmissionRequest struct {
	Version int `json:"version"`
}

// DecisionAction names the two terminal decisions.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// DecideAdmissionRequest finalizes an admission. Approvals carry the initial
// enrollment placement copied onto the created student.
type DecideAdmissionRequest struct {
	Action          DecisionAction `json:"action" validate:"required,oneof=approve reject"`
	Version         int            `json:"version"`
	DecisionNote    string         `json:"decision_note"`
	AdmissionNumber string         `json:"admission_number"`
	AdmissionDate   *time.Time     `json:"admission_date,omitempty"`
	DepartmentID    string         `json:"department_id"`
	ClassID         string         `json:"class_id"`
	SectionID       string         `json:"section_id"`
	HalaqahID       *string        `json:"halaqah_id,omitempty"`
	Hostel          bool           `json:"hostel"`
	Transport       bool           `json:"transport"`
	Scholarship     bool           `json:"scholarship"`
}

// DecisionResult returns the decided admission and, for approvals, the student.
type DecisionResult struct {
	Admission *models.Admission `json:"admission"`
	Student   *models.Student   `json:"student,omitempty"`
}

// AddDocumentRequest appends an attachment to an admission.
type AddDocumentRequest struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url"`
}

// UpdateDocumentRequest patches an attachment by key.
type UpdateDocumentRequest struct {
	Title    *string `json:"title,omitempty"`
	URL      *string `json:"url,omitempty"`
	Verified *bool   `json:"verified,omitempty"`
}
