package demo

import (
	"context"
	"log/slog"

	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/analyzer"
)

// Analyzer is the deterministic reference analyzer. It classifies XRAY and
// REPORT artifacts with canned findings and declines everything else.
type Analyzer struct{}

// NewAnalyzer creates the demo analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze returns fixed findings per kind. It never returns a non-nil error:
// unrecognized kinds produce an error-marker report, which the orchestrator
// still writes back.
func (a *Analyzer) Analyze(ctx context.Context, artifactRef string, kind task.Kind) (*finding.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Debug("demo analyzer invoked", "kind", kind, "artifact", artifactRef)

	switch kind {
	case task.KindXRay:
		return &finding.Report{
			Summary:       "Cardiomegaly not detected. Lungs appear clear.",
			Abnormalities: []string{"None"},
			Confidence:    0.98,
			Urgency:       finding.UrgencyLow,
		}, nil
	case task.KindReport:
		return &finding.Report{
			Summary:       "Hemoglobin levels slightly low.",
			Abnormalities: []string{"Anemia (Mild)"},
			Confidence:    0.95,
			Urgency:       finding.UrgencyMedium,
		}, nil
	default:
		return &finding.Report{Error: analyzer.ErrUnknownFileType}, nil
	}
}
