package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"invoice-workflow-orchestrator/internal/domain"
)

// HTTPEngine is the HTTP adapter for the analysis engine.
type HTTPEngine struct {
	baseURL         string
	apiToken        string
	notificationURL string
	timeout         time.Duration
	httpClient      *http.Client
}

func NewHTTPEngine(baseURL, apiToken, notificationURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiToken:        apiToken,
		notificationURL: notificationURL,
		timeout:         timeout,
		httpClient:      &http.Client{},
	}
}

type startAnalysisRequest struct {
	DocumentLocation domain.Document `json:"document_location"`
	FeatureTypes     []string        `json:"feature_types"`
	NotificationURL  string          `json:"notification_url"`
}

type startAnalysisResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error,omitempty"`
}

type analysisPageResponse struct {
	Blocks    []domain.Block `json:"blocks"`
	NextToken string         `json:"next_token,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (c *HTTPEngine) StartAnalysis(ctx context.Context, doc domain.Document) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := startAnalysisRequest{
		DocumentLocation: doc,
		FeatureTypes:     []string{FeatureTables, FeatureForms},
		NotificationURL:  c.notificationURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/analyses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("start analysis: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read start analysis response: %w", err)
	}

	var parsed startAnalysisResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unable to parse start analysis response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		cause := fmt.Errorf("engine returned status %d", resp.StatusCode)
		if parsed.Error != "" {
			cause = fmt.Errorf("%s", parsed.Error)
		}
		return "", &SubmissionError{Document: doc, Err: cause}
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("start analysis failed with status %d", resp.StatusCode)
	}
	if parsed.JobID == "" {
		return "", fmt.Errorf("engine returned empty job id")
	}
	return parsed.JobID, nil
}

func (c *HTTPEngine) GetAnalysisPage(ctx context.Context, jobID, nextToken string) (domain.ResultPage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1/analyses/%s/result", c.baseURL, url.PathEscape(jobID))
	if nextToken != "" {
		endpoint += "?next_token=" + url.QueryEscape(nextToken)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ResultPage{}, err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ResultPage{}, fmt.Errorf("get analysis page: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ResultPage{}, fmt.Errorf("read analysis page: %w", err)
	}

	var parsed analysisPageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.ResultPage{}, fmt.Errorf("unable to parse analysis page: %w", err)
	}

	if resp.StatusCode >= 400 {
		if parsed.Error != "" {
			return domain.ResultPage{}, fmt.Errorf("get analysis page failed: %s", parsed.Error)
		}
		return domain.ResultPage{}, fmt.Errorf("get analysis page failed with status %d", resp.StatusCode)
	}

	return domain.ResultPage{Blocks: parsed.Blocks, NextToken: parsed.NextToken}, nil
}

func (c *HTTPEngine) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}
