package messagequeue

import "github.com/openhms/diagbridge/internal/domain/finding"

// FindingsPayload is the schema for diagnostics.findings.* messages.
type FindingsPayload struct {
	TaskID    string          `json:"task_id"`
	PatientID string          `json:"patient_id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Report    *finding.Report `json:"report,omitempty"`
	Reason    string          `json:"reason,omitempty"` // populated on failure
}
