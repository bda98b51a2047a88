package repository

import (
	"time"

	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// ── Domain records for the entity approval workflow ──────────────────────────

// EntityWorkflow is one approval cycle for a governed entity. Cycles are never
// mutated after completion; a resubmission creates a new row with cycle+1.
type EntityWorkflow struct {
	ID            string
	EntityType    workflow.EntityType
	EntityID      string
	Cycle         int
	Status        workflow.Status
	ForwardedBy   string
	ForwardedAt   time.Time
	ForwardNotes  *string
	HopDecision   *string
	HopNotes      *string
	HopDecidedBy  *string
	HopDecidedAt  *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReviewerAssignment is one reviewer on a workflow cycle. The set of rows for
// a cycle is frozen at forward time.
type ReviewerAssignment struct {
	ID            string
	WorkflowID    string
	UserID        string
	UserName      string
	Status        workflow.ReviewerStatus
	DecisionNotes *string
	DecidedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditEntry is one immutable record in the compliance audit log. Entries are
// keyed by entity so the trail spans workflow cycles.
type AuditEntry struct {
	ID              string
	EntityType      workflow.EntityType
	EntityID        string
	WorkflowID      *string
	Action          workflow.Action
	PerformedBy     string
	PerformedByName string
	PerformedAt     time.Time
	StatusBefore    *workflow.Status
	StatusAfter     *workflow.Status
	Notes           *string
	Metadata        map[string]interface{} // arbitrary JSON context
}

// User is one entry in the workflow user directory.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"-"`
}
