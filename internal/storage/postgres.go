package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"invoice-workflow-orchestrator/internal/domain"
)

// ErrStaleTransition is returned when a conditional phase update matched no
// row: either the instance does not exist or its phase moved on since it was
// read. A racing duplicate event loses with this error and nothing else.
var ErrStaleTransition = errors.New("workflow instance phase changed since read")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateInstance inserts a new workflow instance in phase SUBMITTED. A second
// insert for the same job id is a no-op, which makes duplicate upload events
// harmless.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst domain.WorkflowInstance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, job_id, document_id, document_bucket, document_key, phase, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (job_id) DO NOTHING
	`, inst.ID, inst.JobID, inst.DocumentID, inst.Document.Bucket, inst.Document.Key, domain.PhaseSubmitted)
	return err
}

func (s *PostgresStore) GetInstanceByJobID(ctx context.Context, jobID string) (domain.WorkflowInstance, error) {
	return s.getInstance(ctx, `WHERE job_id = $1`, jobID)
}

func (s *PostgresStore) GetInstanceByDocumentID(ctx context.Context, documentID string) (domain.WorkflowInstance, error) {
	return s.getInstance(ctx, `WHERE document_id = $1`, documentID)
}

func (s *PostgresStore) getInstance(ctx context.Context, where string, arg any) (domain.WorkflowInstance, error) {
	var inst domain.WorkflowInstance
	var artifactBucket, artifactKey, decisionStatus, failureReason sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, document_id, document_bucket, document_key, phase,
		       artifact_bucket, artifact_key, decision_status, failure_reason,
		       submitted_at, updated_at
		FROM workflow_instances `+where, arg)
	if err := row.Scan(
		&inst.ID,
		&inst.JobID,
		&inst.DocumentID,
		&inst.Document.Bucket,
		&inst.Document.Key,
		&inst.Phase,
		&artifactBucket,
		&artifactKey,
		&decisionStatus,
		&failureReason,
		&inst.SubmittedAt,
		&inst.UpdatedAt,
	); err != nil {
		return domain.WorkflowInstance{}, err
	}
	inst.Artifact = domain.ArtifactRef{Bucket: artifactBucket.String, Key: artifactKey.String}
	inst.DecisionStatus = domain.DecisionStatus(decisionStatus.String)
	inst.FailureReason = failureReason.String
	return inst, nil
}

// MarkJobFailed records an engine-reported job failure: SUBMITTED -> JOB_FAILED.
func (s *PostgresStore) MarkJobFailed(ctx context.Context, jobID, reason string) error {
	return s.transition(ctx, `
		UPDATE workflow_instances
		SET phase = $3, failure_reason = $4, updated_at = NOW()
		WHERE job_id = $1 AND phase = $2
	`, jobID, domain.PhaseSubmitted, domain.PhaseJobFailed, reason)
}

// SaveResultArtifact advances SUBMITTED -> RESULT_SAVED and records the
// artifact reference in the same conditional write.
func (s *PostgresStore) SaveResultArtifact(ctx context.Context, jobID string, ref domain.ArtifactRef) error {
	return s.transition(ctx, `
		UPDATE workflow_instances
		SET phase = $3, artifact_bucket = $4, artifact_key = $5, updated_at = NOW()
		WHERE job_id = $1 AND phase = $2
	`, jobID, domain.PhaseSubmitted, domain.PhaseResultSaved, ref.Bucket, ref.Key)
}

// RecordDecision advances RESULT_SAVED -> DECIDED.
func (s *PostgresStore) RecordDecision(ctx context.Context, jobID string, status domain.DecisionStatus) error {
	return s.transition(ctx, `
		UPDATE workflow_instances
		SET phase = $3, decision_status = $4, updated_at = NOW()
		WHERE job_id = $1 AND phase = $2
	`, jobID, domain.PhaseResultSaved, domain.PhaseDecided, status)
}

// MarkArchived advances DECIDED -> ARCHIVED.
func (s *PostgresStore) MarkArchived(ctx context.Context, jobID string) error {
	return s.transition(ctx, `
		UPDATE workflow_instances
		SET phase = $3, updated_at = NOW()
		WHERE job_id = $1 AND phase = $2
	`, jobID, domain.PhaseDecided, domain.PhaseArchived)
}

// MarkUnderReview advances DECIDED -> UNDER_REVIEW.
func (s *PostgresStore) MarkUnderReview(ctx context.Context, jobID string) error {
	return s.transition(ctx, `
		UPDATE workflow_instances
		SET phase = $3, updated_at = NOW()
		WHERE job_id = $1 AND phase = $2
	`, jobID, domain.PhaseDecided, domain.PhaseUnderReview)
}

// MarkFailed dead-letters the instance from any non-terminal phase. The
// stored reason makes the failure observable to operators.
func (s *PostgresStore) MarkFailed(ctx context.Context, jobID, reason string) error {
	return s.transition(ctx, `
		UPDATE workflow_instances
		SET phase = $2, failure_reason = $3, updated_at = NOW()
		WHERE job_id = $1 AND phase NOT IN ($4, $5, $6, $7)
	`, jobID, domain.PhaseFailed, reason,
		domain.PhaseJobFailed, domain.PhaseArchived, domain.PhaseUnderReview, domain.PhaseFailed)
}

func (s *PostgresStore) transition(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// UpsertInvoice persists the extracted payment fields, keyed by the source
// document key.
func (s *PostgresStore) UpsertInvoice(ctx context.Context, documentKey, jobID string, fields domain.InvoiceFields, status domain.DecisionStatus) error {
	var dueDate any
	if fields.DueDate != "" {
		dueDate = fields.DueDate
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (invoice_id, job_id, payee_name, invoice_number, due_date, total_amount, approval_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			payee_name = EXCLUDED.payee_name,
			invoice_number = EXCLUDED.invoice_number,
			due_date = EXCLUDED.due_date,
			total_amount = EXCLUDED.total_amount,
			approval_status = EXCLUDED.approval_status,
			updated_at = NOW()
	`, documentKey, jobID, fields.PayeeName, fields.InvoiceNumber, dueDate, fields.TotalAmount, status)
	return err
}

// QueueReview publishes an instance to the review channel. Requeueing the
// same document resets the row to PENDING rather than duplicating it.
func (s *PostgresStore) QueueReview(ctx context.Context, documentKey, jobID string, failedRules []string, decision domain.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_queue (document_key, job_id, failed_rules, decision, status)
		VALUES ($1, $2, $3, $4::jsonb, 'PENDING')
		ON CONFLICT (document_key) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			failed_rules = EXCLUDED.failed_rules,
			decision = EXCLUDED.decision,
			status = 'PENDING',
			updated_at = NOW()
	`, documentKey, jobID, pq.Array(failedRules), string(payload))
	return err
}

func (s *PostgresStore) ResolveReview(ctx context.Context, documentKey string, decision string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE review_queue
		SET status = $2, updated_at = NOW()
		WHERE document_key = $1
	`, documentKey, decision)
	return err
}

func (s *PostgresStore) ListPendingReviews(ctx context.Context) ([]domain.ReviewQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_key, job_id, failed_rules, decision, status
		FROM review_queue
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ReviewQueueItem, 0)
	for rows.Next() {
		var item domain.ReviewQueueItem
		var failedRules []string
		if err := rows.Scan(&item.DocumentKey, &item.JobID, pq.Array(&failedRules), &item.Decision, &item.Status); err != nil {
			return nil, err
		}
		item.FailedRules = failedRules
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
