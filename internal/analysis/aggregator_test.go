package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"invoice-workflow-orchestrator/internal/domain"
	"invoice-workflow-orchestrator/internal/retry"
)

// fakeEngine serves a fixed page script per job and can inject transient
// failures per (token, attempt).
type fakeEngine struct {
	pages     map[string][]domain.ResultPage
	failures  map[string]int
	fetches   map[string]int
	startErr  error
	nextJobID string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		pages:    make(map[string][]domain.ResultPage),
		failures: make(map[string]int),
		fetches:  make(map[string]int),
	}
}

func (f *fakeEngine) StartAnalysis(_ context.Context, doc domain.Document) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.nextJobID == "" {
		return "", errors.New("no job scripted")
	}
	return f.nextJobID, nil
}

func (f *fakeEngine) GetAnalysisPage(_ context.Context, jobID, nextToken string) (domain.ResultPage, error) {
	key := jobID + "/" + nextToken
	f.fetches[key]++
	if remaining := f.failures[key]; remaining > 0 {
		f.failures[key] = remaining - 1
		return domain.ResultPage{}, errors.New("engine unavailable")
	}

	script := f.pages[jobID]
	index := 0
	if nextToken != "" {
		_, err := fmt.Sscanf(nextToken, "page-%d", &index)
		if err != nil || index <= 0 || index >= len(script) {
			return domain.ResultPage{}, fmt.Errorf("invalid token %q", nextToken)
		}
	}
	return script[index], nil
}

// scriptPages installs pages with counts[i] blocks each, chained by
// continuation tokens, last page tokenless.
func (f *fakeEngine) scriptPages(jobID string, counts ...int) {
	script := make([]domain.ResultPage, 0, len(counts))
	block := 0
	for i, n := range counts {
		page := domain.ResultPage{Blocks: make([]domain.Block, 0, n)}
		for j := 0; j < n; j++ {
			page.Blocks = append(page.Blocks, domain.Block{
				ID:        fmt.Sprintf("block-%03d", block),
				BlockType: domain.BlockTypeLine,
				Text:      fmt.Sprintf("line %d", block),
			})
			block++
		}
		if i < len(counts)-1 {
			page.NextToken = fmt.Sprintf("page-%d", i+1)
		}
		script = append(script, page)
	}
	f.pages[jobID] = script
}

func testPolicy() retry.Policy {
	return retry.Policy{
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 2,
		MaximumInterval:    2 * time.Millisecond,
		MaximumAttempts:    3,
	}
}

func TestFetchConcatenatesPagesInOrder(t *testing.T) {
	engine := newFakeEngine()
	engine.scriptPages("J1", 10, 10, 4)

	agg := NewAggregator(engine, 0, testPolicy())
	result, err := agg.Fetch(context.Background(), "J1")
	require.NoError(t, err)
	require.Equal(t, "J1", result.JobID)
	require.Len(t, result.Blocks, 24)
	for i, blk := range result.Blocks {
		require.Equal(t, fmt.Sprintf("block-%03d", i), blk.ID, "block order must match page order")
	}
}

func TestFetchZeroPagesOfBlocks(t *testing.T) {
	engine := newFakeEngine()
	engine.scriptPages("J1", 0)

	agg := NewAggregator(engine, 0, testPolicy())
	result, err := agg.Fetch(context.Background(), "J1")
	require.NoError(t, err)
	require.Empty(t, result.Blocks)
}

func TestFetchRetriesTransientPageFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.scriptPages("J1", 2, 3)
	engine.failures["J1/page-1"] = 2

	agg := NewAggregator(engine, 0, testPolicy())
	result, err := agg.Fetch(context.Background(), "J1")
	require.NoError(t, err)
	require.Len(t, result.Blocks, 5)
	require.Equal(t, 3, engine.fetches["J1/page-1"])
}

func TestFetchExhaustedRetriesBecomeAggregationError(t *testing.T) {
	engine := newFakeEngine()
	engine.scriptPages("J1", 2, 3)
	engine.failures["J1/page-1"] = 10

	agg := NewAggregator(engine, 0, testPolicy())
	_, err := agg.Fetch(context.Background(), "J1")

	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	require.Equal(t, "J1", aggErr.JobID)
}

func TestFetchEnforcesPageCap(t *testing.T) {
	engine := newFakeEngine()
	// Page 0 always points back at itself: a misbehaving engine that never
	// terminates pagination.
	engine.pages["J1"] = []domain.ResultPage{
		{Blocks: []domain.Block{{ID: "b", BlockType: domain.BlockTypeLine}}, NextToken: "page-1"},
		{Blocks: nil, NextToken: "page-1"},
	}

	agg := NewAggregator(engine, 25, testPolicy())
	_, err := agg.Fetch(context.Background(), "J1")

	var overflow *PaginationOverflowError
	require.ErrorAs(t, err, &overflow)
	require.Equal(t, 25, overflow.Pages)
}

func TestFetchRestartReproducesIdenticalResult(t *testing.T) {
	engine := newFakeEngine()
	engine.scriptPages("J1", 4, 4, 4)

	agg := NewAggregator(engine, 0, testPolicy())

	// First fetch interrupted after two pages: the third page keeps failing
	// past the retry budget.
	engine.failures["J1/page-2"] = 10
	_, err := agg.Fetch(context.Background(), "J1")
	require.Error(t, err)

	// Restart from scratch once the engine recovers.
	first, err := agg.Fetch(context.Background(), "J1")
	require.NoError(t, err)
	second, err := agg.Fetch(context.Background(), "J1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first.Blocks, 12)
}

func TestFetchEmptyJobID(t *testing.T) {
	agg := NewAggregator(newFakeEngine(), 0, testPolicy())
	_, err := agg.Fetch(context.Background(), "")
	require.Error(t, err)
}
