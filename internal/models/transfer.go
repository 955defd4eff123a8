package models

import "time"

// TransferType enumerates supported enrollment transitions.
type TransferType string

const (
	TransferTypePromotion     TransferType = "PROMOTION"
	TransferTypeSectionChange TransferType = "SECTION_CHANGE"
	TransferTypeHalaqahChange TransferType = "HALAQAH_CHANGE"
	TransferTypeTC            TransferType = "TC"
)

// ValidTransferType reports whether the value is a known transfer type.
func ValidTransferType(t TransferType) bool {
	switch t {
	case TransferTypePromotion, TransferTypeSectionChange, TransferTypeHalaqahChange, TransferTypeTC:
		return true
	}
	return false
}

// Enrollment is the (class, section, halaqah) tuple locating a student.
type Enrollment struct {
	ClassID   string  `json:"class_id"`
	SectionID string  `json:"section_id"`
	HalaqahID *string `json:"halaqah_id,omitempty"`
}

// TransferRecord is an immutable audit entry describing one enrollment
// change or leaving event. Records are never updated or deleted.
type TransferRecord struct {
	ID            string       `db:"id" json:"id"`
	StudentID     string       `db:"student_id" json:"student_id"`
	Type          TransferType `db:"type" json:"type"`
	FromClassID   string       `db:"from_class_id" json:"from_class_id"`
	FromSectionID string       `db:"from_section_id" json:"from_section_id"`
	FromHalaqahID *string      `db:"from_halaqah_id" json:"from_halaqah_id,omitempty"`
	ToClassID     string       `db:"to_class_id" json:"to_class_id"`
	ToSectionID   string       `db:"to_section_id" json:"to_section_id"`
	ToHalaqahID   *string      `db:"to_halaqah_id" json:"to_halaqah_id,omitempty"`
	EffectiveDate time.Time    `db:"effective_date" json:"effective_date"`
	Reason        string       `db:"reason" json:"reason"`
	TCURL         *string      `db:"tc_url" json:"tc_url,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// TransferFilter constrains transfer listing queries.
type TransferFilter struct {
	StudentID string
	Type      TransferType
	Limit     int
	Offset    int
}
