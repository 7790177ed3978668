package web

// approvals.go serves the approval workflow. Analysts submit their
// drafts for review; approving and rejecting are admin operations.
// The core enforces the state machine itself; this layer enforces who
// may ask for each transition.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/logging"
	"github.com/ledgerline/assumptions/internal/web/middleware"
)

type approvalRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) readApprovalRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req approvalRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.badRequest(w, r, "malformed request body")
			return "", false
		}
	}
	if !s.checkComment(w, r, req.Comment) {
		return "", false
	}
	return req.Comment, true
}

func (s *Server) handleSubmitVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAnalyst)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	version, ok := s.resolveVersion(w, r, table)
	if !ok {
		return
	}
	comment, ok := s.readApprovalRequest(w, r)
	if !ok {
		return
	}

	var commentArg *string
	if strings.TrimSpace(comment) != "" {
		commentArg = &comment
	}
	updated, err := s.approvals.Submit(r.Context(), version.ID, id.UserID, commentArg)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("version submitted",
		"table_id", table.ID,
		"version_id", version.ID,
		"submitted_by", id.UserID,
	)
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleApproveVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAdmin)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	version, ok := s.resolveVersion(w, r, table)
	if !ok {
		return
	}
	comment, ok := s.readApprovalRequest(w, r)
	if !ok {
		return
	}

	var commentArg *string
	if strings.TrimSpace(comment) != "" {
		commentArg = &comment
	}
	updated, err := s.approvals.Approve(r.Context(), version.ID, id.UserID, commentArg)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("version approved",
		"table_id", table.ID,
		"version_id", version.ID,
		"approved_by", id.UserID,
	)
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRejectVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAdmin)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	version, ok := s.resolveVersion(w, r, table)
	if !ok {
		return
	}
	comment, ok := s.readApprovalRequest(w, r)
	if !ok {
		return
	}

	updated, err := s.approvals.Reject(r.Context(), version.ID, id.UserID, comment)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("version rejected",
		"table_id", table.ID,
		"version_id", version.ID,
		"rejected_by", id.UserID,
	)
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleApprovalHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	version, ok := s.resolveVersion(w, r, table)
	if !ok {
		return
	}

	history, err := s.approvals.GetHistory(r.Context(), version.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if history == nil {
		history = []core.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, history)
}
