package web

// tables.go serves table metadata. Viewers can read; metadata changes
// and deletion need admin.

import (
	"encoding/json"
	"net/http"

	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/logging"
	"github.com/ledgerline/assumptions/internal/web/middleware"
)

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	tables, err := s.tables.ListTables(r.Context(), id.TenantID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []core.TableMeta{}
	}
	respondJSON(w, http.StatusOK, tables)
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, table)
}

func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAdmin)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	var patch core.TablePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.badRequest(w, r, "malformed request body")
		return
	}

	updated, err := s.tables.UpdateTable(r.Context(), table.ID, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAdmin)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	if err := s.tables.DeleteTable(r.Context(), table.ID); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table deleted",
		"table_id", table.ID,
		"tenant_id", table.TenantID,
		"deleted_by", id.UserID,
	)
	w.WriteHeader(http.StatusNoContent)
}
