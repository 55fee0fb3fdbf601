// Package analysis talks to the external optical-analysis engine: job
// submission and paginated result retrieval.
package analysis

import (
	"context"
	"fmt"

	"invoice-workflow-orchestrator/internal/domain"
)

// Feature types requested for every analysis job.
const (
	FeatureTables = "TABLES"
	FeatureForms  = "FORMS"
)

// Engine is the black-box asynchronous analysis service. StartAnalysis
// registers the completion channel configured at construction time so that a
// future notification can be correlated back to the returned job id.
// GetAnalysisPage must be deterministic for a given (jobID, token) pair; the
// engine guarantees replay-safe pagination.
type Engine interface {
	StartAnalysis(ctx context.Context, doc domain.Document) (string, error)
	GetAnalysisPage(ctx context.Context, jobID, nextToken string) (domain.ResultPage, error)
}

// SubmissionError reports a document the engine refused to analyze
// (unsupported format, throttling, permission denial). It is not retried and
// never creates a workflow instance.
type SubmissionError struct {
	Document domain.Document
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("analysis submission rejected for %s/%s: %v", e.Document.Bucket, e.Document.Key, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PaginationOverflowError means the engine kept returning continuation
// tokens past the configured page cap. Fatal for the instance; requires
// manual intervention.
type PaginationOverflowError struct {
	JobID string
	Pages int
}

func (e *PaginationOverflowError) Error() string {
	return fmt.Sprintf("job %s exceeded page cap after %d pages", e.JobID, e.Pages)
}

// AggregationError means the retry budget was exhausted while draining
// result pages. Fatal for the instance: this is an infrastructure failure,
// distinct from a business needs-review outcome.
type AggregationError struct {
	JobID string
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregating result for job %s: %v", e.JobID, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
