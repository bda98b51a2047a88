package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sourcevia/be-entity-workflow/internal/database"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// ReviewerRepository handles reads and decision updates on reviewer
// assignments. Assignment creation is handled by WorkflowRepository.CreateCycle
// (transactionally); there is no add/remove operation after forward time.
type ReviewerRepository struct {
	db *database.DB
}

// NewReviewerRepository creates a new ReviewerRepository.
func NewReviewerRepository(db *database.DB) *ReviewerRepository {
	return &ReviewerRepository{db: db}
}

// GetByWorkflowID returns all reviewer assignments for a cycle in assignment order.
func (r *ReviewerRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*ReviewerAssignment, error) {
	query := `
		SELECT id, workflow_id, user_id, user_name,
		       status, decision_notes, decided_at,
		       created_at, updated_at
		FROM workflow_reviewers
		WHERE workflow_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get reviewer assignments")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetForUser returns the calling user's assignment on a cycle, or a not-found
// error when the user is not an assigned reviewer.
func (r *ReviewerRepository) GetForUser(ctx context.Context, workflowID, userID string) (*ReviewerAssignment, error) {
	query := `
		SELECT id, workflow_id, user_id, user_name,
		       status, decision_notes, decided_at,
		       created_at, updated_at
		FROM workflow_reviewers
		WHERE workflow_id = $1 AND user_id = $2
	`

	rev, err := r.scanReviewer(r.db.QueryRow(ctx, query, workflowID, userID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("reviewer_assignment", userID)
	}
	return rev, err
}

// RecordDecision moves a reviewer's status from pending to validated or
// returned. The pending guard means a decision is recorded at most once; a
// second attempt surfaces as a conflict.
func (r *ReviewerRepository) RecordDecision(
	ctx context.Context,
	workflowID, userID string,
	decision workflow.ReviewerDecision,
	notes *string,
) error {
	query := `
		UPDATE workflow_reviewers
		SET status         = $3::reviewer_status,
		    decision_notes = $4,
		    decided_at     = NOW(),
		    updated_at     = NOW()
		WHERE workflow_id = $1
		  AND user_id = $2
		  AND status = 'pending'::reviewer_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, workflowID, userID, string(decision), notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "reviewer decision already recorded or reviewer not assigned")
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type reviewerScanner interface {
	Scan(dest ...any) error
}

func (r *ReviewerRepository) scanReviewer(row reviewerScanner) (*ReviewerAssignment, error) {
	rev := &ReviewerAssignment{}
	err := row.Scan(
		&rev.ID,
		&rev.WorkflowID,
		&rev.UserID,
		&rev.UserName,
		&rev.Status,
		&rev.DecisionNotes,
		&rev.DecidedAt,
		&rev.CreatedAt,
		&rev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rev, nil
}

func (r *ReviewerRepository) scanRows(rows pgx.Rows) ([]*ReviewerAssignment, error) {
	var reviewers []*ReviewerAssignment
	for rows.Next() {
		rev, err := r.scanReviewer(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan reviewer assignment")
		}
		reviewers = append(reviewers, rev)
	}
	return reviewers, nil
}
