package models

import "time"

// AdmissionStage represents the intake pipeline step of an admission.
type AdmissionStage string

// Intake stages in forward order, plus the two terminal decisions.
const (
	StageInquiry   AdmissionStage = "INQUIRY"
	StageForm      AdmissionStage = "FORM"
	StageDocuments AdmissionStage = "DOCUMENTS"
	StageInterview AdmissionStage = "INTERVIEW"
	StageApproved  AdmissionStage = "APPROVED"
	StageRejected  AdmissionStage = "REJECTED"
)

// NextStage returns the next forward stage, or "" when no forward move exists.
func NextStage(stage AdmissionStage) AdmissionStage {
	switch stage {
	case StageInquiry:
		return StageForm
	case StageForm:
		return StageDocuments
	case StageDocuments:
		return StageInterview
	default:
		return ""
	}
}

// Terminal reports whether the stage is a final decision.
func (s AdmissionStage) Terminal() bool {
	return s == StageApproved || s == StageRejected
}

// Admission is an applicant record progressing through intake stages.
type Admission struct {
	ID              string         `db:"id" json:"id"`
	ApplicantName   string         `db:"applicant_name" json:"applicant_name"`
	FatherName      string         `db:"father_name" json:"father_name"`
	ContactNumber   string         `db:"contact_number" json:"contact_number"`
	CNIC            string         `db:"cnic" json:"cnic"`
	Address         string         `db:"address" json:"address"`
	Stage           AdmissionStage `db:"stage" json:"stage"`
	DecisionNote    *string        `db:"decision_note" json:"decision_note,omitempty"`
	AdmissionNumber *string        `db:"admission_number" json:"admission_number,omitempty"`
	AdmissionDate   *time.Time     `db:"admission_date" json:"admission_date,omitempty"`
	Notes           string         `db:"notes" json:"notes"`
	StudentID       *string        `db:"student_id" json:"student_id,omitempty"`
	Version         int            `db:"version" json:"version"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// AdmissionDetail embeds the document list and stage history.
type AdmissionDetail struct {
	Admission
	Documents   []Document   `json:"documents"`
	StageEvents []StageEvent `json:"stage_events,omitempty"`
}

// StageEvent is one entry of the append-only stage transition log.
type StageEvent struct {
	ID          string         `db:"id" json:"id"`
	AdmissionID string         `db:"admission_id" json:"admission_id"`
	FromStage   AdmissionStage `db:"from_stage" json:"from_stage"`
	ToStage     AdmissionStage `db:"to_stage" json:"to_stage"`
	Actor       string         `db:"actor" json:"actor"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Document is an attachment owned by exactly one admission.
// Keys are stable UUIDs and are never reused after removal.
type Document struct {
	ID          string    `db:"id" json:"id"`
	AdmissionID string    `db:"admission_id" json:"admission_id"`
	Title       string    `db:"title" json:"title"`
	URL         string    `db:"url" json:"url"`
	Verified    bool      `db:"verified" json:"verified"`
	Position    int       `db:"position" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AdmissionFilter encapsulates allowed search parameters for listing admissions.
type AdmissionFilter struct {
	Search    string
	Stage     AdmissionStage
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
