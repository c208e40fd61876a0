// Package task defines the diagnostic Task domain entity.
package task

// Kind is the type of diagnostic artifact referenced by a task.
type Kind string

const (
	KindXRay    Kind = "XRAY"
	KindCT      Kind = "CT"
	KindReport  Kind = "REPORT"
	KindECG     Kind = "ECG"
	KindUnknown Kind = "UNKNOWN"
)

// ParseKind maps a raw artifact type tag to a Kind. Unrecognized tags map
// to KindUnknown rather than failing; the analyzer rejects them explicitly.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindXRay, KindCT, KindReport, KindECG:
		return Kind(s)
	default:
		return KindUnknown
	}
}

// Status represents the lifecycle stage of a task. Values are stored
// uppercase because they cross the connector boundary verbatim and the
// record systems we integrate with use uppercase status columns.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// CanTransition reports whether moving from s to next is a valid forward
// transition. Status never moves backwards; COMPLETED and FAILED are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Task identifies one diagnostic artifact awaiting analysis. The core holds
// a Task only for the duration of one dispatch; durable storage belongs to
// the record connector.
type Task struct {
	ID          string         `json:"id"`
	PatientID   string         `json:"patient_id"`
	ArtifactRef string         `json:"artifact_ref"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
