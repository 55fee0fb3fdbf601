package analysis

import (
	"context"
	"errors"
	"fmt"

	"invoice-workflow-orchestrator/internal/domain"
	"invoice-workflow-orchestrator/internal/retry"
)

const DefaultPageCap = 1000

// Aggregator drains every result page for a job into one ordered,
// duplicate-free AnalysisResult. The engine's pagination is deterministic per
// (jobID, token), so an interrupted fetch restarted from scratch reproduces
// the same block sequence.
type Aggregator struct {
	Engine  Engine
	PageCap int
	Retry   retry.Policy
}

func NewAggregator(engine Engine, pageCap int, policy retry.Policy) *Aggregator {
	if pageCap <= 0 {
		pageCap = DefaultPageCap
	}
	return &Aggregator{Engine: engine, PageCap: pageCap, Retry: policy}
}

// Fetch is invoked only after a SUCCEEDED completion event for jobID. Blocks
// are appended in response order; the accumulated sequence equals the
// concatenation of page blocks in page order. Individual page fetches are
// retried with backoff; exhausting the budget fails the fetch with an
// AggregationError. A PaginationOverflowError is returned if the engine
// produces continuation tokens past the page cap.
func (a *Aggregator) Fetch(ctx context.Context, jobID string) (domain.AnalysisResult, error) {
	if jobID == "" {
		return domain.AnalysisResult{}, errors.New("job id is empty")
	}

	result := domain.AnalysisResult{JobID: jobID, Blocks: make([]domain.Block, 0)}
	nextToken := ""
	for pages := 0; ; pages++ {
		if pages >= a.PageCap {
			return domain.AnalysisResult{}, &PaginationOverflowError{JobID: jobID, Pages: pages}
		}

		var page domain.ResultPage
		token := nextToken
		err := retry.Do(ctx, a.Retry, func(ctx context.Context) error {
			var fetchErr error
			page, fetchErr = a.Engine.GetAnalysisPage(ctx, jobID, token)
			return fetchErr
		})
		if err != nil {
			return domain.AnalysisResult{}, &AggregationError{JobID: jobID, Err: fmt.Errorf("page %d: %w", pages+1, err)}
		}

		result.Blocks = append(result.Blocks, page.Blocks...)
		if page.NextToken == "" {
			return result, nil
		}
		nextToken = page.NextToken
	}
}
