package web

// versions.go serves snapshot operations. Snapshots are created by
// analysts; deletion and restore are admin operations with extra
// guards: the only version of a table and approved versions cannot be
// deleted, and once a table has an approved version only approved
// snapshots may be restored.

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/logging"
	"github.com/ledgerline/assumptions/internal/web/middleware"
)

type snapshotRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAnalyst)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, r, "malformed request body")
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if req.Comment == "" {
		s.badRequest(w, r, "a comment describing the snapshot is required")
		return
	}
	if !s.checkComment(w, r, req.Comment) {
		return
	}

	version, err := s.versioning.CreateSnapshot(r.Context(), table.ID, req.Comment, id.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("snapshot created",
		"table_id", table.ID,
		"version_id", version.ID,
		"version_number", version.VersionNumber,
	)
	respondJSON(w, http.StatusCreated, version)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	var statuses []core.ApprovalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := core.ParseApprovalStatus(strings.TrimSpace(part))
			if err != nil {
				s.badRequest(w, r, err.Error())
				return
			}
			statuses = append(statuses, status)
		}
	}

	versions, err := s.versioning.ListVersions(r.Context(), table.ID, statuses)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if versions == nil {
		versions = []core.VersionMeta{}
	}
	respondJSON(w, http.StatusOK, versions)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
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
	respondJSON(w, http.StatusOK, version)
}

func (s *Server) handleGetVersionData(w http.ResponseWriter, r *http.Request) {
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

	cells, err := s.versioning.GetTypedVersionData(r.Context(), version.ID, table.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, groupVersionRows(cells))
}

// versionRow is one snapshot row for display: its index and the typed
// cell values keyed by column name.
type versionRow struct {
	RowIndex int                   `json:"row_index"`
	Cells    map[string]core.Value `json:"cells"`
}

// groupVersionRows folds the flat cell list into per-row objects. The
// input is ordered by row index, so rows come out in index order.
func groupVersionRows(cells []core.TypedVersionCell) []versionRow {
	rows := []versionRow{}
	byIndex := make(map[int]int)
	for _, cell := range cells {
		i, ok := byIndex[cell.RowIndex]
		if !ok {
			i = len(rows)
			byIndex[cell.RowIndex] = i
			rows = append(rows, versionRow{
				RowIndex: cell.RowIndex,
				Cells:    make(map[string]core.Value),
			})
		}
		rows[i].Cells[cell.ColumnName] = cell.Value
	}
	return rows
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
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

	if version.Status == core.StatusApproved {
		s.badRequest(w, r, "cannot delete an approved version")
		return
	}
	count, err := s.versioning.CountVersions(r.Context(), table.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if count <= 1 {
		s.badRequest(w, r, "cannot delete the only version of a table")
		return
	}

	if err := s.versioning.DeleteVersion(r.Context(), version.ID); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("version deleted",
		"table_id", table.ID,
		"version_id", version.ID,
		"version_number", version.VersionNumber,
		"deleted_by", id.UserID,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
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

	restored, err := s.versioning.RestoreVersion(r.Context(), table.ID, version.ID, id.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("version restored",
		"table_id", table.ID,
		"restored_from", version.VersionNumber,
		"new_version_id", restored.ID,
		"restored_by", id.UserID,
	)
	respondJSON(w, http.StatusCreated, restored)
}

// comparePair parses and authorizes the from/to query parameters.
// Both versions must belong to the table, and comparing a version with
// itself is rejected here even though the core handles it, because it
// is always a caller mistake.
func (s *Server) comparePair(w http.ResponseWriter, r *http.Request, table *core.TableMeta) (from, to uuid.UUID, ok bool) {
	fromID, err := uuid.Parse(r.URL.Query().Get("from"))
	if err != nil {
		s.badRequest(w, r, "missing or malformed from version id")
		return
	}
	toID, err := uuid.Parse(r.URL.Query().Get("to"))
	if err != nil {
		s.badRequest(w, r, "missing or malformed to version id")
		return
	}
	if fromID == toID {
		s.badRequest(w, r, "cannot compare a version with itself")
		return
	}

	for _, versionID := range []uuid.UUID{fromID, toID} {
		version, err := s.versioning.GetVersion(r.Context(), versionID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if version.TableID != table.ID {
			respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
	}
	return fromID, toID, true
}

func (s *Server) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	from, to, ok := s.comparePair(w, r, table)
	if !ok {
		return
	}

	diff, err := s.versioning.CompareVersions(r.Context(), from, to)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, diff)
}

func (s *Server) handleFormattedDiff(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	from, to, ok := s.comparePair(w, r, table)
	if !ok {
		return
	}

	opts, ok := s.diffOptions(w, r, table.ID)
	if !ok {
		return
	}

	diff, err := s.versioning.GetFormattedDiff(r.Context(), from, to, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, diff)
}

// diffOptions parses the optional columns and row-range filters,
// validating requested column names against the cells the table's
// versions have captured.
func (s *Server) diffOptions(w http.ResponseWriter, r *http.Request, tableID uuid.UUID) (core.DiffOptions, bool) {
	var opts core.DiffOptions
	q := r.URL.Query()

	if raw := q.Get("columns"); raw != "" {
		known, err := s.versioning.GetAllColumnNames(r.Context(), tableID)
		if err != nil {
			s.respondError(w, r, err)
			return opts, false
		}
		knownSet := make(map[string]struct{}, len(known))
		for _, name := range known {
			knownSet[name] = struct{}{}
		}
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if _, ok := knownSet[name]; !ok {
				s.badRequest(w, r, "unknown column: "+name)
				return opts, false
			}
			opts.Columns = append(opts.Columns, name)
		}
	}

	parseBound := func(param string) (*int, bool) {
		raw := q.Get(param)
		if raw == "" {
			return nil, true
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(w, r, param+" must be a non-negative integer")
			return nil, false
		}
		return &n, true
	}

	var ok bool
	if opts.RowStart, ok = parseBound("row_start"); !ok {
		return opts, false
	}
	if opts.RowEnd, ok = parseBound("row_end"); !ok {
		return opts, false
	}
	if opts.RowStart != nil && opts.RowEnd != nil && *opts.RowStart > *opts.RowEnd {
		s.badRequest(w, r, "row_start must not exceed row_end")
		return opts, false
	}
	return opts, true
}
