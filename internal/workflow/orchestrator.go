// Package workflow implements the document processing state machine: it
// reacts to job-completion events and sequences aggregation, persistence,
// decision and terminal routing for one instance at a time.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"invoice-workflow-orchestrator/internal/domain"
	"invoice-workflow-orchestrator/internal/retry"
	"invoice-workflow-orchestrator/internal/storage"
)

// InstanceStore persists workflow instances. Every phase-advancing method is
// a conditional write: it succeeds only if the stored phase still matches
// the transition's source phase, and returns storage.ErrStaleTransition
// otherwise. That is what makes duplicate event handling safe.
type InstanceStore interface {
	CreateInstance(ctx context.Context, inst domain.WorkflowInstance) error
	GetInstanceByJobID(ctx context.Context, jobID string) (domain.WorkflowInstance, error)
	MarkJobFailed(ctx context.Context, jobID, reason string) error
	SaveResultArtifact(ctx context.Context, jobID string, ref domain.ArtifactRef) error
	RecordDecision(ctx context.Context, jobID string, status domain.DecisionStatus) error
	MarkArchived(ctx context.Context, jobID string) error
	MarkUnderReview(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	UpsertInvoice(ctx context.Context, documentKey, jobID string, fields domain.InvoiceFields, status domain.DecisionStatus) error
	QueueReview(ctx context.Context, documentKey, jobID string, failedRules []string, decision domain.Decision) error
}

// ResultStore persists the aggregated analysis as a durable artifact that
// outlives the orchestrator process.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, documentKey string, result domain.AnalysisResult) (domain.ArtifactRef, error)
	LoadAnalysis(ctx context.Context, ref domain.ArtifactRef) (domain.AnalysisResult, error)
}

// Archiver moves a processed document out of the working bucket. Copy and
// delete are separate steps so the terminal action can be retried safely.
type Archiver interface {
	CopyToArchive(ctx context.Context, doc domain.Document) error
	RemoveObject(ctx context.Context, doc domain.Document) error
}

// JobSubmitter starts an asynchronous analysis job for a document.
type JobSubmitter interface {
	StartAnalysis(ctx context.Context, doc domain.Document) (string, error)
}

// ResultFetcher drains all result pages for a succeeded job.
type ResultFetcher interface {
	Fetch(ctx context.Context, jobID string) (domain.AnalysisResult, error)
}

type Orchestrator struct {
	Store                InstanceStore
	Results              ResultStore
	Blob                 Archiver
	Submitter            JobSubmitter
	Aggregator           ResultFetcher
	Retry                retry.Policy
	MaxAutoApproveAmount float64
}

// StartInstance submits an analysis job for the document and creates the
// workflow instance in phase SUBMITTED. If the engine rejects the document
// the error surfaces to the caller and no instance is created.
func (o *Orchestrator) StartInstance(ctx context.Context, documentID string, doc domain.Document) (domain.WorkflowInstance, error) {
	if doc.IsZero() {
		return domain.WorkflowInstance{}, errors.New("document reference is empty")
	}

	jobID, err := o.Submitter.StartAnalysis(ctx, doc)
	if err != nil {
		return domain.WorkflowInstance{}, err
	}

	inst := domain.WorkflowInstance{
		ID:          uuid.NewString(),
		JobID:       jobID,
		DocumentID:  documentID,
		Document:    doc,
		Phase:       domain.PhaseSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	if err := o.Store.CreateInstance(ctx, inst); err != nil {
		return domain.WorkflowInstance{}, fmt.Errorf("create workflow instance for job %s: %w", jobID, err)
	}

	log.Printf("workflow instance created job_id=%s document=%s/%s", jobID, doc.Bucket, doc.Key)
	return inst, nil
}

// HandleCompletion processes one completion event end to end. It is safe
// under at-least-once delivery: unknown jobs are dropped with a warning,
// events for instances past SUBMITTED are no-ops, and a racing duplicate
// loses its conditional phase update harmlessly. A non-nil return means the
// event should be redelivered; fatal per-instance failures dead-letter the
// instance and acknowledge the event instead.
func (o *Orchestrator) HandleCompletion(ctx context.Context, event domain.CompletionEvent) error {
	inst, err := o.Store.GetInstanceByJobID(ctx, event.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("dropping completion event for unknown job job_id=%s status=%s", event.JobID, event.Status)
			return nil
		}
		return fmt.Errorf("load instance for job %s: %w", event.JobID, err)
	}

	if inst.Phase != domain.PhaseSubmitted {
		log.Printf("duplicate completion event ignored job_id=%s phase=%s", event.JobID, inst.Phase)
		return nil
	}

	switch event.Status {
	case domain.JobStatusFailed:
		if err := o.Store.MarkJobFailed(ctx, event.JobID, "analysis job returned FAILED"); err != nil {
			if errors.Is(err, storage.ErrStaleTransition) {
				log.Printf("lost race recording job failure job_id=%s", event.JobID)
				return nil
			}
			return fmt.Errorf("mark job failed for %s: %w", event.JobID, err)
		}
		log.Printf("ALERT analysis job failed job_id=%s document=%s/%s", event.JobID, inst.Document.Bucket, inst.Document.Key)
		return nil

	case domain.JobStatusSucceeded:
		return o.processSucceededJob(ctx, inst)

	default:
		log.Printf("dropping completion event with unknown status job_id=%s status=%q", event.JobID, event.Status)
		return nil
	}
}

func (o *Orchestrator) processSucceededJob(ctx context.Context, inst domain.WorkflowInstance) error {
	result, err := o.Aggregator.Fetch(ctx, inst.JobID)
	if err != nil {
		// Retries are already exhausted inside the aggregator. This is an
		// infrastructure failure, not a business review outcome.
		return o.deadLetter(ctx, inst.JobID, fmt.Errorf("aggregate result: %w", err))
	}

	var ref domain.ArtifactRef
	err = retry.Do(ctx, o.Retry, func(ctx context.Context) error {
		var saveErr error
		ref, saveErr = o.Results.SaveAnalysis(ctx, inst.Document.Key, result)
		return saveErr
	})
	if err != nil {
		return o.deadLetter(ctx, inst.JobID, fmt.Errorf("persist result artifact: %w", err))
	}

	if err := o.Store.SaveResultArtifact(ctx, inst.JobID, ref); err != nil {
		if errors.Is(err, storage.ErrStaleTransition) {
			log.Printf("lost race advancing to RESULT_SAVED job_id=%s", inst.JobID)
			return nil
		}
		return fmt.Errorf("advance to RESULT_SAVED for job %s: %w", inst.JobID, err)
	}
	log.Printf("result saved job_id=%s artifact=%s/%s blocks=%d", inst.JobID, ref.Bucket, ref.Key, len(result.Blocks))

	return o.decideAndRoute(ctx, inst, result)
}

// decideAndRoute is the synchronous continuation from RESULT_SAVED: derive
// the decision, record it, and execute the terminal action.
func (o *Orchestrator) decideAndRoute(ctx context.Context, inst domain.WorkflowInstance, result domain.AnalysisResult) error {
	decision := domain.Decide(result, o.MaxAutoApproveAmount)

	if err := retry.Do(ctx, o.Retry, func(ctx context.Context) error {
		return o.Store.UpsertInvoice(ctx, inst.Document.Key, inst.JobID, decision.Invoice, decision.Status)
	}); err != nil {
		// The invoice record is derived data, recoverable from the stored
		// artifact; routing still has to reach a terminal state.
		log.Printf("failed to persist invoice record job_id=%s: %v", inst.JobID, err)
	}

	if err := o.Store.RecordDecision(ctx, inst.JobID, decision.Status); err != nil {
		if errors.Is(err, storage.ErrStaleTransition) {
			log.Printf("lost race advancing to DECIDED job_id=%s", inst.JobID)
			return nil
		}
		return fmt.Errorf("advance to DECIDED for job %s: %w", inst.JobID, err)
	}
	log.Printf("decision recorded job_id=%s status=%q", inst.JobID, decision.Status)

	if decision.Status == domain.DecisionApprovedForPayment {
		return o.archive(ctx, inst)
	}
	return o.sendToReview(ctx, inst, decision)
}

// archive runs the archive terminal action: copy, then delete. Never
// delete-before-copy: a failure between the steps leaves the source intact
// and a retry re-copies (idempotent overwrite) before deleting.
func (o *Orchestrator) archive(ctx context.Context, inst domain.WorkflowInstance) error {
	err := retry.Do(ctx, o.Retry, func(ctx context.Context) error {
		if err := o.Blob.CopyToArchive(ctx, inst.Document); err != nil {
			return err
		}
		return o.Blob.RemoveObject(ctx, inst.Document)
	})
	if err != nil {
		return o.deadLetter(ctx, inst.JobID, fmt.Errorf("archive document: %w", err))
	}

	if err := o.Store.MarkArchived(ctx, inst.JobID); err != nil {
		if errors.Is(err, storage.ErrStaleTransition) {
			log.Printf("lost race advancing to ARCHIVED job_id=%s", inst.JobID)
			return nil
		}
		return fmt.Errorf("advance to ARCHIVED for job %s: %w", inst.JobID, err)
	}
	log.Printf("document archived job_id=%s key=%s", inst.JobID, inst.Document.Key)
	return nil
}

// sendToReview publishes the instance to the review channel. Any decision
// other than an approval lands here, so no document is ever silently
// dropped.
func (o *Orchestrator) sendToReview(ctx context.Context, inst domain.WorkflowInstance, decision domain.Decision) error {
	err := retry.Do(ctx, o.Retry, func(ctx context.Context) error {
		return o.Store.QueueReview(ctx, inst.Document.Key, inst.JobID, decision.FailedRules, decision)
	})
	if err != nil {
		return o.deadLetter(ctx, inst.JobID, fmt.Errorf("publish review request: %w", err))
	}

	if err := o.Store.MarkUnderReview(ctx, inst.JobID); err != nil {
		if errors.Is(err, storage.ErrStaleTransition) {
			log.Printf("lost race advancing to UNDER_REVIEW job_id=%s", inst.JobID)
			return nil
		}
		return fmt.Errorf("advance to UNDER_REVIEW for job %s: %w", inst.JobID, err)
	}
	log.Printf("document queued for review job_id=%s key=%s rules=%v", inst.JobID, inst.Document.Key, decision.FailedRules)
	return nil
}

// deadLetter moves the instance to the FAILED phase and acknowledges the
// event. The stored reason keeps the failure observable; redelivering the
// event would not help once the retry budget is spent.
func (o *Orchestrator) deadLetter(ctx context.Context, jobID string, cause error) error {
	log.Printf("ALERT workflow instance failed job_id=%s: %v", jobID, cause)
	if err := o.Store.MarkFailed(ctx, jobID, cause.Error()); err != nil && !errors.Is(err, storage.ErrStaleTransition) {
		return fmt.Errorf("dead-letter job %s: %w", jobID, err)
	}
	return nil
}
