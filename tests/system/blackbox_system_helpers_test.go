//go:build system

package system_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"invoice-workflow-orchestrator/internal/domain"
)

type uploadResponse struct {
	DocumentID string          `json:"document_id"`
	Document   domain.Document `json:"document"`
}

type statusResponse struct {
	DocumentID     string                `json:"document_id"`
	JobID          string                `json:"job_id"`
	Phase          domain.Phase          `json:"phase"`
	DecisionStatus domain.DecisionStatus `json:"decision_status"`
	FailureReason  string                `json:"failure_reason"`
}

type resultResponse struct {
	DocumentID     string                `json:"document_id"`
	JobID          string                `json:"job_id"`
	Phase          domain.Phase          `json:"phase"`
	Document       domain.Document       `json:"document"`
	Artifact       *domain.ArtifactRef   `json:"artifact"`
	DecisionStatus domain.DecisionStatus `json:"decision_status"`
}

type systemTestConfig struct {
	APIBaseURL          string
	OrchestratorBaseURL string

	CompletionTimeout time.Duration
	PollInterval      time.Duration
}

func loadSystemTestConfig() systemTestConfig {
	cfg := systemTestConfig{
		APIBaseURL:          "http://localhost:8080",
		OrchestratorBaseURL: "http://localhost:8081",
		CompletionTimeout:   2 * time.Minute,
		PollInterval:        2 * time.Second,
	}
	if v := os.Getenv("SYSTEM_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("SYSTEM_ORCHESTRATOR_BASE_URL"); v != "" {
		cfg.OrchestratorBaseURL = v
	}
	return cfg
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func waitForEndpoint(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("endpoint %s not ready after %s", url, timeout)
}

// minimalPDF is just enough of a PDF for the upload validator and the stub
// analysis engine used in the compose environment.
func minimalPDF(marker string) []byte {
	return []byte("%PDF-1.4\n% " + marker + "\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func uploadInvoice(cfg systemTestConfig, filename string, content []byte) (uploadResponse, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return uploadResponse{}, err
	}
	if _, err := part.Write(content); err != nil {
		return uploadResponse{}, err
	}
	if err := writer.Close(); err != nil {
		return uploadResponse{}, err
	}

	resp, err := httpClient.Post(cfg.APIBaseURL+"/v1/invoices", writer.FormDataContentType(), body)
	if err != nil {
		return uploadResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadResponse{}, err
	}
	if resp.StatusCode != http.StatusAccepted {
		return uploadResponse{}, fmt.Errorf("upload returned %d: %s", resp.StatusCode, raw)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return uploadResponse{}, err
	}
	return parsed, nil
}

func fetchStatus(cfg systemTestConfig, documentID string) (statusResponse, error) {
	resp, err := httpClient.Get(fmt.Sprintf("%s/v1/invoices/%s/status", cfg.APIBaseURL, documentID))
	if err != nil {
		return statusResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusResponse{}, fmt.Errorf("status returned %d", resp.StatusCode)
	}
	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return statusResponse{}, err
	}
	return parsed, nil
}

func fetchResult(cfg systemTestConfig, documentID string) (resultResponse, error) {
	resp, err := httpClient.Get(fmt.Sprintf("%s/v1/invoices/%s/result", cfg.APIBaseURL, documentID))
	if err != nil {
		return resultResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resultResponse{}, fmt.Errorf("result returned %d", resp.StatusCode)
	}
	var parsed resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return resultResponse{}, err
	}
	return parsed, nil
}

func waitForTerminalPhase(cfg systemTestConfig, documentID string) (statusResponse, error) {
	deadline := time.Now().Add(cfg.CompletionTimeout)
	var last statusResponse
	for time.Now().Before(deadline) {
		status, err := fetchStatus(cfg, documentID)
		if err == nil {
			last = status
			if status.Phase.IsTerminal() {
				return status, nil
			}
		}
		time.Sleep(cfg.PollInterval)
	}
	return last, fmt.Errorf("document %s did not reach a terminal phase (last phase %q)", documentID, last.Phase)
}

func postCompletion(cfg systemTestConfig, jobID string, status domain.JobStatus, doc domain.Document) (int, error) {
	payload := map[string]any{
		"job_id": jobID,
		"status": status,
		"document_location": map[string]string{
			"bucket": doc.Bucket,
			"key":    doc.Key,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Post(cfg.OrchestratorBaseURL+"/v1/completions", "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
