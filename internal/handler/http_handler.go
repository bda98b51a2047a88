package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sourcevia/be-entity-workflow/internal/auth"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/logger"
	"github.com/sourcevia/be-entity-workflow/internal/service"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// HTTPHandler handles the entity workflow REST API.
type HTTPHandler struct {
	service *service.WorkflowService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(service *service.WorkflowService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// Register mounts the workflow routes on the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/entity-workflow/active-users", h.ListActiveUsers)
	mux.HandleFunc("GET /api/v1/entity-workflow/{entity_type}/{entity_id}/workflow-status", h.GetWorkflowStatus)
	mux.HandleFunc("GET /api/v1/entity-workflow/{entity_type}/{entity_id}/audit-trail", h.GetAuditTrail)
	mux.HandleFunc("POST /api/v1/entity-workflow/{entity_type}/{entity_id}/forward-for-review", h.ForwardForReview)
	mux.HandleFunc("POST /api/v1/entity-workflow/{entity_type}/{entity_id}/reviewer-decision", h.ReviewerDecision)
	mux.HandleFunc("POST /api/v1/entity-workflow/{entity_type}/{entity_id}/forward-to-hop", h.ForwardToHop)
	mux.HandleFunc("POST /api/v1/entity-workflow/{entity_type}/{entity_id}/hop-decision", h.HopDecision)
	mux.HandleFunc("POST /api/v1/entity-workflow/{entity_type}/{entity_id}/reopen", h.Reopen)
}

// ── Request bodies ────────────────────────────────────────────────────────────

type forwardForReviewRequest struct {
	ReviewerUserIDs []string `json:"reviewer_user_ids"`
	Notes           *string  `json:"notes"`
}

type decisionRequest struct {
	Decision string  `json:"decision"`
	Notes    *string `json:"notes"`
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// GetWorkflowStatus returns the workflow record plus the caller's permitted actions.
func (h *HTTPHandler) GetWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	session, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	resp, err := h.service.GetWorkflowStatus(r.Context(), session, entityType, entityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetAuditTrail returns the entity's audit trail, newest-first.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	_, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	trail, err := h.service.GetAuditTrail(r.Context(), entityType, entityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"audit_trail": trail})
}

// ListActiveUsers returns the reviewer-picker user directory.
func (h *HTTPHandler) ListActiveUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListActiveUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// ForwardForReview dispatches an entity to a set of reviewers.
func (h *HTTPHandler) ForwardForReview(w http.ResponseWriter, r *http.Request) {
	session, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	var req forwardForReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.ForwardForReview(r.Context(), session, entityType, entityID, req.ReviewerUserIDs, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ReviewerDecision records the calling reviewer's validated/returned decision.
func (h *HTTPHandler) ReviewerDecision(w http.ResponseWriter, r *http.Request) {
	session, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, valid := workflow.ParseReviewerDecision(req.Decision)
	if !valid {
		h.writeDetail(w, http.StatusBadRequest, "decision must be 'validated' or 'returned'")
		return
	}

	resp, err := h.service.ReviewerDecision(r.Context(), session, entityType, entityID, decision, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ForwardToHop sends the entity to the Head of Procurement.
func (h *HTTPHandler) ForwardToHop(w http.ResponseWriter, r *http.Request) {
	session, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.ForwardToHop(r.Context(), session, entityType, entityID, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HopDecision records the terminal approve/reject decision.
func (h *HTTPHandler) HopDecision(w http.ResponseWriter, r *http.Request) {
	session, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, valid := workflow.ParseHopDecision(req.Decision)
	if !valid {
		h.writeDetail(w, http.StatusBadRequest, "decision must be 'approved' or 'rejected'")
		return
	}

	resp, err := h.service.HopDecision(r.Context(), session, entityType, entityID, decision, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Reopen unlocks a rejected workflow for a new cycle (admin only).
func (h *HTTPHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	session, entityType, entityID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Reopen(r.Context(), session, entityType, entityID, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ── Plumbing ──────────────────────────────────────────────────────────────────

// requestScope extracts the session and validated path parameters, writing the
// error response itself when anything is missing.
func (h *HTTPHandler) requestScope(w http.ResponseWriter, r *http.Request) (auth.Session, workflow.EntityType, string, bool) {
	session, ok := auth.SessionFrom(r.Context())
	if !ok {
		h.writeDetail(w, http.StatusUnauthorized, "authentication required")
		return auth.Session{}, "", "", false
	}

	entityType, valid := workflow.ParseEntityType(r.PathValue("entity_type"))
	if !valid {
		h.writeDetail(w, http.StatusBadRequest, "unknown entity type")
		return auth.Session{}, "", "", false
	}

	entityID := r.PathValue("entity_id")
	if entityID == "" {
		h.writeDetail(w, http.StatusBadRequest, "entity id is required")
		return auth.Session{}, "", "", false
	}

	return session, entityType, entityID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeDetail writes the {"detail": ...} error envelope the clients expect.
func (h *HTTPHandler) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	h.writeDetail(w, status, errors.MessageOf(err))
}
