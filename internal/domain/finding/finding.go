// Package finding defines the structured output of one artifact analysis.
package finding

// Urgency grades how quickly a clinician should look at the findings.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Report holds the analysis result for one artifact. Either the structured
// fields are populated, or Error carries the reason analysis declined the
// artifact. A Report is immutable once produced; the orchestrator owns it
// until it is handed to the connector for write-back.
type Report struct {
	Summary       string   `json:"summary,omitempty"`
	Abnormalities []string `json:"abnormalities,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	Urgency       Urgency  `json:"urgency,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Declined reports whether analysis could not classify the artifact.
// A declined report is still a data result and is written back as such.
func (r *Report) Declined() bool {
	return r.Error != ""
}
