package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sourcevia/be-entity-workflow/internal/database"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// WorkflowRepository manages workflow cycles and their reviewer assignments.
// Cycle + reviewer creation is always done together in a single transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// CreateCycle inserts a workflow cycle and its reviewer assignments in one
// transaction. The cycle number is computed from the latest existing cycle for
// the entity so resubmissions supersede rather than overwrite.
func (r *WorkflowRepository) CreateCycle(ctx context.Context, wf *EntityWorkflow, reviewers []*ReviewerAssignment) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		wfQuery := `
			INSERT INTO entity_workflows
			    (entity_type, entity_id, cycle, status,
			     forwarded_by, forward_notes)
			VALUES ($1, $2,
			        COALESCE((SELECT MAX(cycle) FROM entity_workflows
			                  WHERE entity_type = $1 AND entity_id = $2), 0) + 1,
			        $3::workflow_status, $4, $5)
			RETURNING id, cycle, forwarded_at, created_at, updated_at
		`

		err := tx.QueryRow(ctx, wfQuery,
			wf.EntityType,
			wf.EntityID,
			wf.Status,
			wf.ForwardedBy,
			wf.ForwardNotes,
		).Scan(&wf.ID, &wf.Cycle, &wf.ForwardedAt, &wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow cycle")
		}

		reviewerQuery := `
			INSERT INTO workflow_reviewers
			    (workflow_id, user_id, user_name, status)
			VALUES ($1, $2, $3, $4::reviewer_status)
			RETURNING id, created_at, updated_at
		`

		for _, rev := range reviewers {
			rev.WorkflowID = wf.ID
			err := tx.QueryRow(ctx, reviewerQuery,
				rev.WorkflowID,
				rev.UserID,
				rev.UserName,
				rev.Status,
			).Scan(&rev.ID, &rev.CreatedAt, &rev.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create reviewer assignment")
			}
		}

		return nil
	})
}

// GetByID retrieves a workflow cycle by its primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*EntityWorkflow, error) {
	query := selectWorkflow + ` WHERE id = $1`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow", id)
	}
	return wf, err
}

// GetLatest returns the most recent cycle for an entity, or nil when the
// entity has never been forwarded (status not_started).
func (r *WorkflowRepository) GetLatest(ctx context.Context, entityType workflow.EntityType, entityID string) (*EntityWorkflow, error) {
	query := selectWorkflow + `
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY cycle DESC
		LIMIT 1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, entityType, entityID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

// UpdateStatus transitions a cycle's status, guarded by the set of statuses
// the transition may legally start from. A concurrent actor that already moved
// the cycle makes the guarded update match zero rows, which surfaces as a
// conflict instead of a silent overwrite.
func (r *WorkflowRepository) UpdateStatus(
	ctx context.Context,
	id string,
	to workflow.Status,
	allowedFrom []workflow.Status,
	completedAt *time.Time,
) error {
	query := `
		UPDATE entity_workflows
		SET status       = $2::workflow_status,
		    completed_at = $3,
		    updated_at   = NOW()
		WHERE id = $1
		  AND status = ANY($4::workflow_status[])
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, to, completedAt, statusStrings(allowedFrom)).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "workflow status changed concurrently; refresh and retry")
	}
	return err
}

// SetHopDecision records the HoP decision and moves the cycle to its terminal
// status. The guard on pending_hop_approval makes the decision single-shot.
func (r *WorkflowRepository) SetHopDecision(
	ctx context.Context,
	id string,
	decision workflow.HopDecision,
	notes *string,
	decidedBy string,
) error {
	var to workflow.Status
	if decision == workflow.HopApproved {
		to = workflow.StatusApproved
	} else {
		to = workflow.StatusRejected
	}

	query := `
		UPDATE entity_workflows
		SET status         = $2::workflow_status,
		    hop_decision   = $3,
		    hop_notes      = $4,
		    hop_decided_by = $5,
		    hop_decided_at = NOW(),
		    completed_at   = NOW(),
		    updated_at     = NOW()
		WHERE id = $1
		  AND status = 'pending_hop_approval'::workflow_status
		  AND hop_decision IS NULL
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, to, string(decision), notes, decidedBy).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "workflow is not awaiting HoP approval")
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectWorkflow = `
	SELECT id, entity_type, entity_id, cycle, status,
	       forwarded_by, forwarded_at, forward_notes,
	       hop_decision, hop_notes, hop_decided_by, hop_decided_at,
	       completed_at, created_at, updated_at
	FROM entity_workflows`

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*EntityWorkflow, error) {
	wf := &EntityWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.EntityType,
		&wf.EntityID,
		&wf.Cycle,
		&wf.Status,
		&wf.ForwardedBy,
		&wf.ForwardedAt,
		&wf.ForwardNotes,
		&wf.HopDecision,
		&wf.HopNotes,
		&wf.HopDecidedBy,
		&wf.HopDecidedAt,
		&wf.CompletedAt,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func statusStrings(statuses []workflow.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
