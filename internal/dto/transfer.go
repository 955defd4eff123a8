package dto

import (
	"time"

	"github.com/madrasa-adp/intake-api/internal/models"
)

// ApplyTransferRequest describes one enrollment transition.
type ApplyTransferRequest struct {
	Type          models.TransferType `json:"type" validate:"required"`
	ToClassID     string              `json:"to_class_id"`
	ToSectionID   string              `json:"to_section_id"`
	ToHalaqahID   *string             `json:"to_halaqah_id,omitempty"`
	EffectiveDate *time.Time          `json:"effective_date,omitempty"`
	Reason        string              `json:"reason"`
	TCURL         *string             `json:"tc_url,omitempty"`
	Version       int                 `json:"version"`
}

// TransferResult returns the mutated student and the appended record together.
type TransferResult struct {
	Student  *models.Student        `json:"student"`
	Transfer *models.TransferRecord `json:"transfer"`
}

// TransferQuery constrains transfer listings.
type TransferQuery struct {
	Type   models.TransferType
	Limit  int
	Offset int
}

// CertificateResult points at a rendered leaving-certificate file.
type CertificateResult struct {
	TransferID  string    `json:"transfer_id"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
