package models

import "time"

// StudentStatus represents the lifecycle of an enrolled student.
type StudentStatus string

const (
	StudentStatusActive StudentStatus = "ACTIVE"
	StudentStatusLeft   StudentStatus = "LEFT"
)

// Student represents a learner enrolled via an approved admission.
type Student struct {
	ID              string        `db:"id" json:"id"`
	AdmissionID     string        `db:"admission_id" json:"admission_id"`
	AdmissionNumber string        `db:"admission_number" json:"admission_number"`
	FullName        string        `db:"full_name" json:"full_name"`
	DepartmentID    string        `db:"department_id" json:"department_id"`
	ClassID         string        `db:"class_id" json:"class_id"`
	SectionID       string        `db:"section_id" json:"section_id"`
	HalaqahID       *string       `db:"halaqah_id" json:"halaqah_id,omitempty"`
	Status          StudentStatus `db:"status" json:"status"`
	Hostel          bool          `db:"hostel" json:"hostel"`
	Transport       bool          `db:"transport" json:"transport"`
	Scholarship     bool          `db:"scholarship" json:"scholarship"`
	Version         int           `db:"version" json:"version"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches Student with catalog names for display.
type StudentDetail struct {
	Student
	DepartmentName *string `db:"department_name" json:"department_name,omitempty"`
	ClassName      *string `db:"class_name" json:"class_name,omitempty"`
	SectionName    *string `db:"section_name" json:"section_name,omitempty"`
	HalaqahName    *string `db:"halaqah_name" json:"halaqah_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search       string
	DepartmentID string
	ClassID      string
	SectionID    string
	HalaqahID    string
	Status       StudentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
