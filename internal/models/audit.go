package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionAdmissionCreate  = "ADMISSION_CREATE"
	AuditActionAdmissionAdvance = "ADMISSION_ADVANCE"
	AuditActionAdmissionPatch   = "ADMISSION_PATCH"
	AuditActionAdmissionApprove = "ADMISSION_APPROVE"
	AuditActionAdmissionReject  = "ADMISSION_REJECT"
	AuditActionTransferApply    = "TRANSFER_APPLY"
	AuditActionDocumentAdd      = "DOCUMENT_ADD"
	AuditActionDocumentUpdate   = "DOCUMENT_UPDATE"
	AuditActionDocumentRemove   = "DOCUMENT_REMOVE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
