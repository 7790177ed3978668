package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/web/middleware"
)

// maxCommentLength bounds snapshot and approval comments.
const maxCommentLength = 500

func (s *Server) identity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		// Only reachable if a route escapes the auth middleware.
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil, false
	}
	return id, true
}

// requireRole loads the identity and enforces a minimum role.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, min middleware.Role) (*middleware.Identity, bool) {
	id, ok := s.identity(w, r)
	if !ok {
		return nil, false
	}
	if !id.Role.AtLeast(min) {
		s.forbidden(w, r)
		return nil, false
	}
	return id, true
}

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// resolveTable parses the tableID route param, loads the table, and
// enforces tenant ownership. Cross-tenant access reads as not-found so
// table ids do not leak across tenants.
func (s *Server) resolveTable(w http.ResponseWriter, r *http.Request, id *middleware.Identity) (*core.TableMeta, bool) {
	tableID, ok := uuidParam(r, "tableID")
	if !ok {
		s.badRequest(w, r, "malformed table id")
		return nil, false
	}

	table, err := s.tables.GetTable(r.Context(), tableID)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	if id.Role != middleware.RoleSuperAdmin && table.TenantID != id.TenantID {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
		return nil, false
	}
	return table, true
}

// resolveVersion parses the versionID route param and verifies the
// version belongs to the already-authorized table.
func (s *Server) resolveVersion(w http.ResponseWriter, r *http.Request, table *core.TableMeta) (*core.VersionMeta, bool) {
	versionID, ok := uuidParam(r, "versionID")
	if !ok {
		s.badRequest(w, r, "malformed version id")
		return nil, false
	}

	version, err := s.versioning.GetVersion(r.Context(), versionID)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	if version.TableID != table.ID {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
		return nil, false
	}
	return version, true
}

func (s *Server) checkComment(w http.ResponseWriter, r *http.Request, comment string) bool {
	if len(comment) > maxCommentLength {
		s.badRequest(w, r, "comment exceeds 500 characters")
		return false
	}
	return true
}
