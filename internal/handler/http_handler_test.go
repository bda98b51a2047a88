package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcevia/be-entity-workflow/internal/auth"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/logger"
	"github.com/sourcevia/be-entity-workflow/internal/repository"
	"github.com/sourcevia/be-entity-workflow/internal/service"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// stubBackend implements the service store interfaces with canned in-memory
// state, enough to drive the HTTP layer end to end.
type stubBackend struct {
	latest      *repository.EntityWorkflow
	assignments []*repository.ReviewerAssignment
	audit       []*repository.AuditEntry
	users       []*repository.User

	createCalls int
}

func (s *stubBackend) CreateCycle(ctx context.Context, wf *repository.EntityWorkflow, reviewers []*repository.ReviewerAssignment) error {
	s.createCalls++
	wf.ID = "wf-1"
	wf.Cycle = 1
	wf.ForwardedAt = time.Now()
	s.latest = wf
	s.assignments = reviewers
	return nil
}

func (s *stubBackend) GetLatest(ctx context.Context, entityType workflow.EntityType, entityID string) (*repository.EntityWorkflow, error) {
	return s.latest, nil
}

func (s *stubBackend) UpdateStatus(ctx context.Context, id string, to workflow.Status, allowedFrom []workflow.Status, completedAt *time.Time) error {
	s.latest.Status = to
	return nil
}

func (s *stubBackend) SetHopDecision(ctx context.Context, id string, decision workflow.HopDecision, notes *string, decidedBy string) error {
	d := string(decision)
	now := time.Now()
	s.latest.HopDecision = &d
	s.latest.HopDecidedBy = &decidedBy
	s.latest.HopDecidedAt = &now
	if decision == workflow.HopApproved {
		s.latest.Status = workflow.StatusApproved
	} else {
		s.latest.Status = workflow.StatusRejected
	}
	return nil
}

func (s *stubBackend) GetByWorkflowID(ctx context.Context, workflowID string) ([]*repository.ReviewerAssignment, error) {
	return s.assignments, nil
}

func (s *stubBackend) GetForUser(ctx context.Context, workflowID, userID string) (*repository.ReviewerAssignment, error) {
	for _, a := range s.assignments {
		if a.UserID == userID {
			return a, nil
		}
	}
	return nil, errors.NotFound("reviewer_assignment", userID)
}

func (s *stubBackend) RecordDecision(ctx context.Context, workflowID, userID string, decision workflow.ReviewerDecision, notes *string) error {
	for _, a := range s.assignments {
		if a.UserID == userID {
			a.Status = workflow.ReviewerStatus(decision)
			return nil
		}
	}
	return errors.New(errors.ErrCodeConflict, "reviewer not assigned")
}

func (s *stubBackend) Append(ctx context.Context, entry *repository.AuditEntry) error {
	entry.PerformedAt = time.Now()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *stubBackend) GetByEntity(ctx context.Context, entityType workflow.EntityType, entityID string) ([]*repository.AuditEntry, error) {
	return s.audit, nil
}

func (s *stubBackend) ListActive(ctx context.Context) ([]*repository.User, error) {
	return s.users, nil
}

func (s *stubBackend) GetByIDs(ctx context.Context, ids []string) ([]*repository.User, error) {
	out := make([]*repository.User, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, u := range s.users {
			if u.ID == id {
				out = append(out, u)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NotFound("user", id)
		}
	}
	return out, nil
}

func (s *stubBackend) ListByRole(ctx context.Context, role string) ([]*repository.User, error) {
	var out []*repository.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

type noopNotifier struct{}

func (noopNotifier) PublishWorkflowEvent(ctx context.Context, eventType, entityType, entityID, workflowID, actorID string, recipients []string, payload map[string]interface{}) {
}

// sessionInjector fakes the auth middleware for tests.
func sessionInjector(s auth.Session, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), s)))
	})
}

func newTestServer(t *testing.T, backend *stubBackend, session auth.Session) *httptest.Server {
	t.Helper()

	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	svc := service.NewWorkflowService(backend, backend, backend, backend, noopNotifier{},
		[]string{"contract", "po", "resource", "asset", "vendor", "deliverable"}, log)

	mux := http.NewServeMux()
	NewHTTPHandler(svc, log).Register(mux)

	srv := httptest.NewServer(sessionInjector(session, mux))
	t.Cleanup(srv.Close)
	return srv
}

func newBackend() *stubBackend {
	return &stubBackend{
		users: []*repository.User{
			{ID: "u-rev-1", Name: "Rania Reviewer", Email: "rania@sourcevia.io", Role: string(workflow.RoleReviewer)},
			{ID: "u-hop", Name: "Hana HoP", Email: "hana@sourcevia.io", Role: string(workflow.RoleHop)},
		},
	}
}

var officer = auth.Session{UserID: "u-officer", UserName: "Olivia Officer", Role: workflow.RoleOfficer}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestWorkflowStatusNotStarted(t *testing.T) {
	srv := newTestServer(t, newBackend(), officer)

	resp, err := http.Get(srv.URL + "/api/v1/entity-workflow/contract/c-1/workflow-status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RequiresWorkflow bool            `json:"requires_workflow"`
		WorkflowStatus   string          `json:"workflow_status"`
		Actions          map[string]bool `json:"actions"`
	}
	decodeBody(t, resp, &body)

	assert.True(t, body.RequiresWorkflow)
	assert.Equal(t, "not_started", body.WorkflowStatus)
	assert.True(t, body.Actions["can_forward_for_review"])
	assert.False(t, body.Actions["can_forward_to_hop"])
}

func TestWorkflowStatusUnknownEntityType(t *testing.T) {
	srv := newTestServer(t, newBackend(), officer)

	resp, err := http.Get(srv.URL + "/api/v1/entity-workflow/invoice/i-1/workflow-status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "unknown entity type", body["detail"])
}

func TestForwardForReviewEndpoint(t *testing.T) {
	backend := newBackend()
	srv := newTestServer(t, backend, officer)

	resp, err := http.Post(
		srv.URL+"/api/v1/entity-workflow/contract/c-1/forward-for-review",
		"application/json",
		strings.NewReader(`{"reviewer_user_ids":["u-rev-1"],"notes":"please review"}`),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		WorkflowStatus string `json:"workflow_status"`
		Reviewers      []struct {
			UserID string `json:"user_id"`
			Status string `json:"status"`
		} `json:"reviewers"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(t, "pending_review", body.WorkflowStatus)
	require.Len(t, body.Reviewers, 1)
	assert.Equal(t, "u-rev-1", body.Reviewers[0].UserID)
	assert.Equal(t, "pending", body.Reviewers[0].Status)
	assert.Equal(t, 1, backend.createCalls)
}

func TestForwardForReviewEmptyReviewerList(t *testing.T) {
	backend := newBackend()
	srv := newTestServer(t, backend, officer)

	resp, err := http.Post(
		srv.URL+"/api/v1/entity-workflow/contract/c-1/forward-for-review",
		"application/json",
		strings.NewReader(`{"reviewer_user_ids":[]}`),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["detail"], "reviewer")
	assert.Zero(t, backend.createCalls)
}

func TestReviewerDecisionInvalidValue(t *testing.T) {
	srv := newTestServer(t, newBackend(), auth.Session{UserID: "u-rev-1", Role: workflow.RoleReviewer})

	resp, err := http.Post(
		srv.URL+"/api/v1/entity-workflow/contract/c-1/reviewer-decision",
		"application/json",
		strings.NewReader(`{"decision":"approved"}`),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "decision must be 'validated' or 'returned'", body["detail"])
}

func TestHopDecisionForbiddenForOfficer(t *testing.T) {
	backend := newBackend()
	backend.latest = &repository.EntityWorkflow{
		ID: "wf-1", EntityType: workflow.EntityContract, EntityID: "c-1",
		Cycle: 1, Status: workflow.StatusPendingHopApproval, ForwardedBy: "u-officer",
	}
	srv := newTestServer(t, backend, officer)

	resp, err := http.Post(
		srv.URL+"/api/v1/entity-workflow/contract/c-1/hop-decision",
		"application/json",
		strings.NewReader(`{"decision":"approved"}`),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHopDecisionFlow(t *testing.T) {
	backend := newBackend()
	backend.latest = &repository.EntityWorkflow{
		ID: "wf-1", EntityType: workflow.EntityContract, EntityID: "c-1",
		Cycle: 1, Status: workflow.StatusPendingHopApproval, ForwardedBy: "u-officer",
	}
	srv := newTestServer(t, backend, auth.Session{UserID: "u-hop", Role: workflow.RoleHop})

	resp, err := http.Post(
		srv.URL+"/api/v1/entity-workflow/contract/c-1/hop-decision",
		"application/json",
		strings.NewReader(`{"decision":"rejected","notes":"over budget"}`),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		WorkflowStatus string `json:"workflow_status"`
		HopDecision    *struct {
			Decision string `json:"decision"`
		} `json:"hop_decision"`
		Actions map[string]bool `json:"actions"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(t, "rejected", body.WorkflowStatus)
	require.NotNil(t, body.HopDecision)
	assert.Equal(t, "rejected", body.HopDecision.Decision)
	for name, allowed := range body.Actions {
		assert.False(t, allowed, "action %s must be off after rejection", name)
	}
}

func TestActiveUsersEndpoint(t *testing.T) {
	srv := newTestServer(t, newBackend(), officer)

	resp, err := http.Get(srv.URL + "/api/v1/entity-workflow/active-users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Users []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"users"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.Users, 2)
	assert.Equal(t, "u-rev-1", body.Users[0].ID)
	assert.Equal(t, "rania@sourcevia.io", body.Users[0].Email)
}

func TestAuditTrailEndpoint(t *testing.T) {
	backend := newBackend()
	wfID := "wf-1"
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	backend.audit = []*repository.AuditEntry{
		{EntityType: workflow.EntityContract, EntityID: "c-1", WorkflowID: &wfID,
			Action: workflow.ActionForwardedForReview, PerformedBy: "u-officer", PerformedAt: base},
		{EntityType: workflow.EntityContract, EntityID: "c-1", WorkflowID: &wfID,
			Action: workflow.ActionReviewerValidated, PerformedBy: "u-rev-1", PerformedAt: base.Add(time.Hour)},
	}
	srv := newTestServer(t, backend, officer)

	resp, err := http.Get(srv.URL + "/api/v1/entity-workflow/contract/c-1/audit-trail")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AuditTrail []struct {
			Action     string `json:"action"`
			Descriptor struct {
				Label string `json:"label"`
				Icon  string `json:"icon"`
				Color string `json:"color"`
			} `json:"descriptor"`
		} `json:"audit_trail"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.AuditTrail, 2)
	assert.Equal(t, "reviewer_validated", body.AuditTrail[0].Action)
	assert.Equal(t, "forwarded_for_review", body.AuditTrail[1].Action)
	assert.NotEmpty(t, body.AuditTrail[0].Descriptor.Icon)
}

func TestMissingSessionRejected(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	svc := service.NewWorkflowService(newBackend(), newBackend(), newBackend(), newBackend(), noopNotifier{},
		[]string{"contract"}, log)

	mux := http.NewServeMux()
	NewHTTPHandler(svc, log).Register(mux)
	srv := httptest.NewServer(mux) // no session injector
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/entity-workflow/contract/c-1/workflow-status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
