package domain

import (
	"encoding/json"
	"time"
)

// Document identifies a source artifact in object storage. It is immutable
// once a workflow instance has been created for it.
type Document struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (d Document) IsZero() bool {
	return d.Bucket == "" || d.Key == ""
}

// BlockType distinguishes the units of analysis output: lines, table cells
// and the halves of form key-value pairs.
type BlockType string

const (
	BlockTypePage        BlockType = "PAGE"
	BlockTypeLine        BlockType = "LINE"
	BlockTypeWord        BlockType = "WORD"
	BlockTypeTable       BlockType = "TABLE"
	BlockTypeCell        BlockType = "CELL"
	BlockTypeKeyValueSet BlockType = "KEY_VALUE_SET"
)

const (
	EntityTypeKey   = "KEY"
	EntityTypeValue = "VALUE"
)

type Block struct {
	ID          string    `json:"id"`
	BlockType   BlockType `json:"block_type"`
	Text        string    `json:"text,omitempty"`
	EntityTypes []string  `json:"entity_types,omitempty"`
	Page        int       `json:"page,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
}

func (b Block) HasEntityType(entityType string) bool {
	for _, et := range b.EntityTypes {
		if et == entityType {
			return true
		}
	}
	return false
}

// ResultPage is one page of analysis output. NextToken is empty on the last
// page. Pages are ephemeral; the aggregator consumes them and discards them
// after the merge.
type ResultPage struct {
	Blocks    []Block `json:"blocks"`
	NextToken string  `json:"next_token,omitempty"`
}

// AnalysisResult is the merged, ordered block sequence for a job with all
// continuation metadata stripped.
type AnalysisResult struct {
	JobID  string  `json:"job_id"`
	Blocks []Block `json:"blocks"`
}

// DecisionStatus values follow the wire strings of the upstream approval
// system. Anything outside the recognized set routes to review.
type DecisionStatus string

const (
	DecisionApprovedForPayment DecisionStatus = "Approved for Payment"
	DecisionPendingReview      DecisionStatus = "Pending Review"
	DecisionRejected           DecisionStatus = "Rejected"
)

// Decision is the payment-approval outcome derived from an AnalysisResult.
// Created once per job, immutable afterwards.
type Decision struct {
	Status      DecisionStatus `json:"status"`
	FailedRules []string       `json:"failed_rules,omitempty"`
	Invoice     InvoiceFields  `json:"invoice"`
}

// InvoiceFields are the extracted payment fields persisted alongside the
// decision.
type InvoiceFields struct {
	PayeeName     string  `json:"payee_name,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	DueDate       string  `json:"due_date,omitempty"`
	TotalAmount   float64 `json:"total_amount"`
	StatusText    string  `json:"status_text,omitempty"`
}

// ArtifactRef addresses a persisted result artifact in the analyses bucket.
type ArtifactRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r ArtifactRef) IsZero() bool {
	return r.Bucket == "" || r.Key == ""
}

// WorkflowInstance is the unit of orchestration state, keyed by job id.
// Payloads live in object storage; the instance carries references only.
type WorkflowInstance struct {
	ID             string         `json:"id"`
	JobID          string         `json:"job_id"`
	DocumentID     string         `json:"document_id"`
	Document       Document       `json:"document"`
	Phase          Phase          `json:"phase"`
	Artifact       ArtifactRef    `json:"artifact,omitempty"`
	DecisionStatus DecisionStatus `json:"decision_status,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CompletionEvent is the payload delivered by the analysis engine's
// notification channel. Delivery is at-least-once: duplicates and reordering
// across jobs are expected.
type CompletionEvent struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Document Document  `json:"document_location"`
}

type ReviewQueueItem struct {
	DocumentKey string          `json:"document_key"`
	JobID       string          `json:"job_id"`
	FailedRules []string        `json:"failed_rules"`
	Decision    json.RawMessage `json:"decision"`
	Status      string          `json:"status"`
}
