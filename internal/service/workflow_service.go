package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcevia/be-entity-workflow/internal/auth"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/logger"
	"github.com/sourcevia/be-entity-workflow/internal/repository"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// WorkflowStore persists workflow cycles.
type WorkflowStore interface {
	CreateCycle(ctx context.Context, wf *repository.EntityWorkflow, reviewers []*repository.ReviewerAssignment) error
	GetLatest(ctx context.Context, entityType workflow.EntityType, entityID string) (*repository.EntityWorkflow, error)
	UpdateStatus(ctx context.Context, id string, to workflow.Status, allowedFrom []workflow.Status, completedAt *time.Time) error
	SetHopDecision(ctx context.Context, id string, decision workflow.HopDecision, notes *string, decidedBy string) error
}

// ReviewerStore persists reviewer assignments.
type ReviewerStore interface {
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*repository.ReviewerAssignment, error)
	GetForUser(ctx context.Context, workflowID, userID string) (*repository.ReviewerAssignment, error)
	RecordDecision(ctx context.Context, workflowID, userID string, decision workflow.ReviewerDecision, notes *string) error
}

// AuditStore appends and reads the immutable audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByEntity(ctx context.Context, entityType workflow.EntityType, entityID string) ([]*repository.AuditEntry, error)
}

// UserDirectory resolves workflow users.
type UserDirectory interface {
	ListActive(ctx context.Context) ([]*repository.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*repository.User, error)
	ListByRole(ctx context.Context, role string) ([]*repository.User, error)
}

// Notifier publishes workflow transition events. Implementations must be
// non-fatal: a failed publish never fails the transition.
type Notifier interface {
	PublishWorkflowEvent(ctx context.Context, eventType, entityType, entityID, workflowID, actorID string, recipients []string, payload map[string]interface{})
}

// WorkflowService orchestrates the entity approval workflow: it is the action
// resolver and the single writer of workflow state. Authorization is enforced
// here on every transition regardless of which actions were advertised to the
// client.
type WorkflowService struct {
	workflows WorkflowStore
	reviewers ReviewerStore
	audit     AuditStore
	users     UserDirectory
	notifier  Notifier
	governed  map[workflow.EntityType]bool
	log       *logger.Logger
}

// NewWorkflowService creates a new WorkflowService. governedTypes lists the
// entity types subject to workflow governance.
func NewWorkflowService(
	workflows WorkflowStore,
	reviewers ReviewerStore,
	audit AuditStore,
	users UserDirectory,
	notifier Notifier,
	governedTypes []string,
	log *logger.Logger,
) *WorkflowService {
	governed := make(map[workflow.EntityType]bool, len(governedTypes))
	for _, t := range governedTypes {
		if et, ok := workflow.ParseEntityType(t); ok {
			governed[et] = true
		}
	}

	return &WorkflowService{
		workflows: workflows,
		reviewers: reviewers,
		audit:     audit,
		users:     users,
		notifier:  notifier,
		governed:  governed,
		log:       log,
	}
}

// ── Response types ────────────────────────────────────────────────────────────

// ReviewerView is one reviewer's state in a status response.
type ReviewerView struct {
	UserID    string                  `json:"user_id"`
	UserName  string                  `json:"user_name"`
	Status    workflow.ReviewerStatus `json:"status"`
	Notes     *string                 `json:"notes,omitempty"`
	DecidedAt *time.Time              `json:"decided_at,omitempty"`
}

// HopDecisionView is the recorded HoP decision in a status response.
type HopDecisionView struct {
	Decision  string     `json:"decision"`
	Notes     *string    `json:"notes,omitempty"`
	DecidedBy string     `json:"decided_by"`
	DecidedAt *time.Time `json:"decided_at"`
}

// StatusResponse is the full workflow record plus the caller's permitted
// actions. When RequiresWorkflow is false all other fields are zero and the
// client suppresses its workflow UI entirely.
type StatusResponse struct {
	RequiresWorkflow bool                     `json:"requires_workflow"`
	WorkflowStatus   workflow.Status          `json:"workflow_status,omitempty"`
	Cycle            int                      `json:"cycle,omitempty"`
	Reviewers        []ReviewerView           `json:"reviewers,omitempty"`
	HopDecision      *HopDecisionView         `json:"hop_decision,omitempty"`
	AuditTrail       []workflow.TimelineEntry `json:"audit_trail,omitempty"`
	Actions          workflow.Actions         `json:"actions"`
}

// ── Status ────────────────────────────────────────────────────────────────────

// GetWorkflowStatus assembles the workflow record, audit timeline, and the
// caller's permitted actions for one entity.
func (s *WorkflowService) GetWorkflowStatus(
	ctx context.Context,
	session auth.Session,
	entityType workflow.EntityType,
	entityID string,
) (*StatusResponse, error) {
	if !s.governed[entityType] {
		return &StatusResponse{RequiresWorkflow: false}, nil
	}

	wf, err := s.workflows.GetLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		RequiresWorkflow: true,
		WorkflowStatus:   workflow.StatusNotStarted,
	}

	isPendingReviewer := false
	if wf != nil {
		resp.WorkflowStatus = wf.Status
		resp.Cycle = wf.Cycle

		assignments, err := s.reviewers.GetByWorkflowID(ctx, wf.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range assignments {
			resp.Reviewers = append(resp.Reviewers, ReviewerView{
				UserID:    a.UserID,
				UserName:  a.UserName,
				Status:    a.Status,
				Notes:     a.DecisionNotes,
				DecidedAt: a.DecidedAt,
			})
			if a.UserID == session.UserID && a.Status == workflow.ReviewerPending {
				isPendingReviewer = true
			}
		}

		if wf.HopDecision != nil {
			resp.HopDecision = &HopDecisionView{
				Decision:  *wf.HopDecision,
				Notes:     wf.HopNotes,
				DecidedBy: derefOr(wf.HopDecidedBy, ""),
				DecidedAt: wf.HopDecidedAt,
			}
		}
	}

	trail, err := s.GetAuditTrail(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	resp.AuditTrail = trail

	resp.Actions = workflow.ResolveActions(session.Role, resp.WorkflowStatus, isPendingReviewer)
	return resp, nil
}

// GetAuditTrail returns the entity's full audit trail formatted newest-first.
func (s *WorkflowService) GetAuditTrail(
	ctx context.Context,
	entityType workflow.EntityType,
	entityID string,
) ([]workflow.TimelineEntry, error) {
	entries, err := s.audit.GetByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	timeline := make([]workflow.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		te := workflow.TimelineEntry{
			Action:          e.Action,
			PerformedBy:     e.PerformedBy,
			PerformedByName: e.PerformedByName,
			PerformedAt:     e.PerformedAt,
		}
		if e.Notes != nil {
			te.Notes = *e.Notes
		}
		if e.StatusAfter != nil {
			te.StatusAfter = *e.StatusAfter
		}
		timeline = append(timeline, te)
	}

	return workflow.BuildTimeline(timeline)
}

// ListActiveUsers returns the reviewer-picker user directory.
func (s *WorkflowService) ListActiveUsers(ctx context.Context) ([]*repository.User, error) {
	return s.users.ListActive(ctx)
}

// ── Forward for review ────────────────────────────────────────────────────────

// ForwardForReview starts a new review cycle with a frozen reviewer set.
func (s *WorkflowService) ForwardForReview(
	ctx context.Context,
	session auth.Session,
	entityType workflow.EntityType,
	entityID string,
	reviewerUserIDs []string,
	notes *string,
) (*StatusResponse, error) {
	if err := s.requireGoverned(entityType); err != nil {
		return nil, err
	}
	if err := requireOfficer(session); err != nil {
		return nil, err
	}
	if len(reviewerUserIDs) == 0 {
		return nil, errors.InvalidInput("reviewer_user_ids", "at least one reviewer is required")
	}
	reviewerUserIDs = dedupe(reviewerUserIDs)

	latest, err := s.workflows.GetLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	statusBefore := workflow.StatusNotStarted
	if latest != nil {
		statusBefore = latest.Status
	}
	if !workflow.CanTransition(workflow.TransitionForwardForReview, statusBefore) {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot forward for review from status %s", statusBefore))
	}

	users, err := s.users.GetByIDs(ctx, reviewerUserIDs)
	if err != nil {
		return nil, err
	}

	wf := &repository.EntityWorkflow{
		EntityType:   entityType,
		EntityID:     entityID,
		Status:       workflow.StatusPendingReview,
		ForwardedBy:  session.UserID,
		ForwardNotes: notes,
	}
	assignments := make([]*repository.ReviewerAssignment, 0, len(users))
	for _, u := range users {
		assignments = append(assignments, &repository.ReviewerAssignment{
			UserID:   u.ID,
			UserName: u.Name,
			Status:   workflow.ReviewerPending,
		})
	}

	if err := s.workflows.CreateCycle(ctx, wf, assignments); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entity_type", string(entityType)).
		Str("entity_id", entityID).
		Str("workflow_id", wf.ID).
		Int("cycle", wf.Cycle).
		Int("reviewers", len(assignments)).
		Msg("Entity forwarded for review")

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:      entityType,
		EntityID:        entityID,
		WorkflowID:      &wf.ID,
		Action:          workflow.ActionForwardedForReview,
		PerformedBy:     session.UserID,
		PerformedByName: session.UserName,
		StatusBefore:    &statusBefore,
		StatusAfter:     statusPtr(workflow.StatusPendingReview),
		Notes:           notes,
		Metadata: map[string]interface{}{
			"cycle":     wf.Cycle,
			"reviewers": reviewerUserIDs,
		},
	})

	s.notifier.PublishWorkflowEvent(ctx, "review_requested",
		string(entityType), entityID, wf.ID, session.UserID, reviewerUserIDs,
		map[string]interface{}{"cycle": wf.Cycle})

	return s.GetWorkflowStatus(ctx, session, entityType, entityID)
}

// ── Reviewer decision ─────────────────────────────────────────────────────────

// ReviewerDecision records the calling reviewer's validated/returned decision
// and advances the aggregate cycle status when the decision resolves it.
func (s *WorkflowService) ReviewerDecision(
	ctx context.Context,
	session auth.Session,
	entityType workflow.EntityType,
	entityID string,
	decision workflow.ReviewerDecision,
	notes *string,
) (*StatusResponse, error) {
	if err := s.requireGoverned(entityType); err != nil {
		return nil, err
	}

	wf, err := s.requireLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if wf.Status != workflow.StatusPendingReview {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("workflow is not awaiting review (status: %s)", wf.Status))
	}

	assignment, err := s.reviewers.GetForUser(ctx, wf.ID, session.UserID)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNotFound {
			return nil, errors.New(errors.ErrCodeForbidden, "caller is not an assigned reviewer")
		}
		return nil, err
	}
	if assignment.Status != workflow.ReviewerPending {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("reviewer decision already recorded (%s)", assignment.Status))
	}

	if err := s.reviewers.RecordDecision(ctx, wf.ID, session.UserID, decision, notes); err != nil {
		return nil, err
	}

	// Recompute the aggregate from all reviewer statuses.
	assignments, err := s.reviewers.GetByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	statuses := make([]workflow.ReviewerStatus, 0, len(assignments))
	for _, a := range assignments {
		statuses = append(statuses, a.Status)
	}
	aggregate := workflow.AggregateReviewerStatus(statuses)

	if aggregate != workflow.StatusPendingReview {
		if err := s.workflows.UpdateStatus(ctx, wf.ID, aggregate,
			[]workflow.Status{workflow.StatusPendingReview}, nil); err != nil {
			return nil, err
		}
	}

	action := workflow.ActionReviewerValidated
	eventType := "reviewer_validated"
	if decision == workflow.DecisionReturned {
		action = workflow.ActionReviewerReturned
		eventType = "reviewer_returned"
	}

	s.log.Info().
		Str("entity_type", string(entityType)).
		Str("entity_id", entityID).
		Str("workflow_id", wf.ID).
		Str("decision", string(decision)).
		Str("aggregate_status", string(aggregate)).
		Msg("Reviewer decision recorded")

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:      entityType,
		EntityID:        entityID,
		WorkflowID:      &wf.ID,
		Action:          action,
		PerformedBy:     session.UserID,
		PerformedByName: session.UserName,
		StatusBefore:    statusPtr(workflow.StatusPendingReview),
		StatusAfter:     &aggregate,
		Notes:           notes,
	})

	s.notifier.PublishWorkflowEvent(ctx, eventType,
		string(entityType), entityID, wf.ID, session.UserID, []string{wf.ForwardedBy},
		map[string]interface{}{"aggregate_status": string(aggregate)})

	return s.GetWorkflowStatus(ctx, session, entityType, entityID)
}

// ── Forward to HoP ────────────────────────────────────────────────────────────

// ForwardToHop sends the entity to the Head of Procurement. Officers may use
// this from pending_review as a shortcut that bypasses outstanding peer review.
func (s *WorkflowService) ForwardToHop(
	ctx context.Context,
	session auth.Session,
	entityType workflow.EntityType,
	entityID string,
	notes *string,
) (*StatusResponse, error) {
	if err := s.requireGoverned(entityType); err != nil {
		return nil, err
	}
	if err := requireOfficer(session); err != nil {
		return nil, err
	}

	wf, err := s.requireLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanTransition(workflow.TransitionForwardToHop, wf.Status) {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot forward to HoP from status %s", wf.Status))
	}

	if err := s.workflows.UpdateStatus(ctx, wf.ID, workflow.StatusPendingHopApproval,
		workflow.AllowedFrom(workflow.TransitionForwardToHop), nil); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entity_type", string(entityType)).
		Str("entity_id", entityID).
		Str("workflow_id", wf.ID).
		Msg("Entity forwarded to HoP")

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:      entityType,
		EntityID:        entityID,
		WorkflowID:      &wf.ID,
		Action:          workflow.ActionForwardedToHop,
		PerformedBy:     session.UserID,
		PerformedByName: session.UserName,
		StatusBefore:    &wf.Status,
		StatusAfter:     statusPtr(workflow.StatusPendingHopApproval),
		Notes:           notes,
	})

	s.notifier.PublishWorkflowEvent(ctx, "forwarded_to_hop",
		string(entityType), entityID, wf.ID, session.UserID,
		s.hopRecipients(ctx), nil)

	return s.GetWorkflowStatus(ctx, session, entityType, entityID)
}

// ── HoP decision ──────────────────────────────────────────────────────────────

// HopDecision records the terminal approve/reject decision for the cycle.
func (s *WorkflowService) HopDecision(
	ctx context.Context,
	session auth.Session,
	entityType workflow.EntityType,
	entityID string,
	decision workflow.HopDecision,
	notes *string,
) (*StatusResponse, error) {
	if err := s.requireGoverned(entityType); err != nil {
		return nil, err
	}
	if session.Role != workflow.RoleHop && session.Role != workflow.RoleAdmin {
		return nil, errors.New(errors.ErrCodeForbidden, "only the Head of Procurement can decide approvals")
	}

	wf, err := s.requireLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if wf.Status != workflow.StatusPendingHopApproval {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("workflow is not awaiting HoP approval (status: %s)", wf.Status))
	}

	if err := s.workflows.SetHopDecision(ctx, wf.ID, decision, notes, session.UserID); err != nil {
		return nil, err
	}

	action := workflow.ActionHopApproved
	statusAfter := workflow.StatusApproved
	eventType := "entity_approved"
	if decision == workflow.HopRejected {
		action = workflow.ActionHopRejected
		statusAfter = workflow.StatusRejected
		eventType = "entity_rejected"
	}

	s.log.Info().
		Str("entity_type", string(entityType)).
		Str("entity_id", entityID).
		Str("workflow_id", wf.ID).
		Str("decision", string(decision)).
		Msg("HoP decision recorded")

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:      entityType,
		EntityID:        entityID,
		WorkflowID:      &wf.ID,
		Action:          action,
		PerformedBy:     session.UserID,
		PerformedByName: session.UserName,
		StatusBefore:    &wf.Status,
		StatusAfter:     &statusAfter,
		Notes:           notes,
	})

	s.notifier.PublishWorkflowEvent(ctx, eventType,
		string(entityType), entityID, wf.ID, session.UserID,
		s.cycleParticipants(ctx, wf), nil)

	return s.GetWorkflowStatus(ctx, session, entityType, entityID)
}

// ── Reopen ────────────────────────────────────────────────────────────────────

// Reopen moves a rejected cycle back to returned_for_revision so an officer
// can resubmit. This is the only way out of the rejected terminal state and is
// restricted to admins.
func (s *WorkflowService) Reopen(
	ctx context.Context,
	session auth.Session,
	entityType workflow.EntityType,
	entityID string,
	notes *string,
) (*StatusResponse, error) {
	if err := s.requireGoverned(entityType); err != nil {
		return nil, err
	}
	if session.Role != workflow.RoleAdmin {
		return nil, errors.New(errors.ErrCodeForbidden, "only admins can reopen a rejected workflow")
	}

	wf, err := s.requireLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanTransition(workflow.TransitionReopen, wf.Status) {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot reopen from status %s", wf.Status))
	}

	if err := s.workflows.UpdateStatus(ctx, wf.ID, workflow.StatusReturnedForRevision,
		workflow.AllowedFrom(workflow.TransitionReopen), nil); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entity_type", string(entityType)).
		Str("entity_id", entityID).
		Str("workflow_id", wf.ID).
		Msg("Workflow reopened")

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:      entityType,
		EntityID:        entityID,
		WorkflowID:      &wf.ID,
		Action:          workflow.ActionReopened,
		PerformedBy:     session.UserID,
		PerformedByName: session.UserName,
		StatusBefore:    &wf.Status,
		StatusAfter:     statusPtr(workflow.StatusReturnedForRevision),
		Notes:           notes,
	})

	s.notifier.PublishWorkflowEvent(ctx, "workflow_reopened",
		string(entityType), entityID, wf.ID, session.UserID, []string{wf.ForwardedBy}, nil)

	return s.GetWorkflowStatus(ctx, session, entityType, entityID)
}

// ── Guards and helpers ────────────────────────────────────────────────────────

func (s *WorkflowService) requireGoverned(entityType workflow.EntityType) error {
	if !s.governed[entityType] {
		return errors.InvalidInput("entity_type",
			fmt.Sprintf("%s is not subject to workflow governance", entityType))
	}
	return nil
}

func requireOfficer(session auth.Session) error {
	if session.Role != workflow.RoleOfficer && session.Role != workflow.RoleAdmin {
		return errors.New(errors.ErrCodeForbidden, "only procurement officers can perform this action")
	}
	return nil
}

// requireLatest loads the latest cycle or reports not_found for entities that
// were never forwarded.
func (s *WorkflowService) requireLatest(
	ctx context.Context,
	entityType workflow.EntityType,
	entityID string,
) (*repository.EntityWorkflow, error) {
	wf, err := s.workflows.GetLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, errors.NotFound("workflow", entityID)
	}
	return wf, nil
}

// hopRecipients resolves HoP notification recipients; failures degrade to no
// recipients rather than failing the transition.
func (s *WorkflowService) hopRecipients(ctx context.Context) []string {
	users, err := s.users.ListByRole(ctx, string(workflow.RoleHop))
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not resolve HoP recipients")
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// cycleParticipants returns the forwarding officer plus all reviewers.
func (s *WorkflowService) cycleParticipants(ctx context.Context, wf *repository.EntityWorkflow) []string {
	ids := []string{wf.ForwardedBy}
	assignments, err := s.reviewers.GetByWorkflowID(ctx, wf.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("workflow_id", wf.ID).Msg("Could not resolve cycle participants")
		return ids
	}
	for _, a := range assignments {
		ids = append(ids, a.UserID)
	}
	return ids
}

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *WorkflowService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("entity_id", entry.EntityID).
			Str("action", string(entry.Action)).
			Msg("Failed to write audit log entry")
	}
}

func statusPtr(s workflow.Status) *workflow.Status { return &s }

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
