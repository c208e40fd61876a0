// Package analyzer defines the analysis service port (interface).
package analyzer

import (
	"context"

	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
)

// Analyzer produces findings for one diagnostic artifact.
//
// An unrecognized kind is a data result, not a failure: implementations
// return a Report with the Error field set ("unknown file type") and a nil
// error, because the orchestrator must still write "could not analyze" back
// to the record system. A non-nil error means the analysis itself failed
// (model unreachable, malformed reply) and the task is marked FAILED.
//
// Calls may take seconds to minutes and must honor ctx cancellation.
type Analyzer interface {
	Analyze(ctx context.Context, artifactRef string, kind task.Kind) (*finding.Report, error)
}

// ErrUnknownFileType is the Report.Error value for unrecognized kinds.
const ErrUnknownFileType = "unknown file type"
