package web

// imports.go accepts CSV uploads as multipart form data. Analysts can
// preview, create tables, and append; replacing a table's data is
// destructive and needs admin, and is refused outright once any
// version of the table has been approved.

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/logging"
	"github.com/ledgerline/assumptions/internal/web/middleware"
)

// readUpload pulls the "file" part out of a multipart request. One
// extra byte beyond the configured cap is read so the import service's
// size check still triggers on oversized uploads.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := s.cfg.Import.MaxFileSize + 1
	if err := r.ParseMultipartForm(limit); err != nil {
		s.badRequest(w, r, "malformed multipart request")
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, r, "missing file upload")
		return nil, false
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		s.badRequest(w, r, "failed to read upload")
		return nil, false
	}
	return raw, true
}

// importContext bounds an import operation by the configured timeout.
func (s *Server) importContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
}

// columnOverrides decodes the optional column_types form field, a JSON
// object of column name to type name.
func (s *Server) columnOverrides(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	raw := r.FormValue("column_types")
	if raw == "" {
		return nil, true
	}
	var overrides map[string]string
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		s.badRequest(w, r, "column_types must be a JSON object of column name to type")
		return nil, false
	}
	return overrides, true
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, middleware.RoleAnalyst); !ok {
		return
	}
	raw, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	overrides, ok := s.columnOverrides(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.importContext(r)
	defer cancel()
	preview, err := s.importer.Preview(ctx, raw, overrides)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

func (s *Server) handleCreateTableFromCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAnalyst)
	if !ok {
		return
	}
	raw, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	overrides, ok := s.columnOverrides(w, r)
	if !ok {
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		s.badRequest(w, r, "table name is required")
		return
	}

	params := core.NewTableParams{
		Name:        name,
		TenantID:    id.TenantID,
		CreatedBy:   id.UserID,
		ColumnTypes: overrides,
	}
	if v := strings.TrimSpace(r.FormValue("description")); v != "" {
		params.Description = &v
	}
	if v := strings.TrimSpace(r.FormValue("effective_date")); v != "" {
		params.EffectiveDate = &v
	}

	ctx, cancel := s.importContext(r)
	defer cancel()
	result, err := s.importer.CreateTableFromCSV(ctx, raw, params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table created from CSV",
		"table_id", result.TableID,
		"tenant_id", id.TenantID,
		"rows", result.RowCount,
		"columns", result.ColumnCount,
	)
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleReplaceData(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAdmin)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	// Approved versions freeze the table's live data against wholesale
	// replacement; restore is the sanctioned path.
	approved, err := s.importer.HasApprovedVersions(r.Context(), table.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if approved {
		s.badRequest(w, r, "cannot replace data: table has an approved version")
		return
	}

	raw, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.importContext(r)
	defer cancel()
	rowCount, err := s.importer.ReplaceTableData(ctx, table.ID, raw)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table data replaced",
		"table_id", table.ID,
		"rows", rowCount,
		"replaced_by", id.UserID,
	)
	respondJSON(w, http.StatusOK, map[string]int{"row_count": rowCount})
}

func (s *Server) handleAppendData(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireRole(w, r, middleware.RoleAnalyst)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}
	raw, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.importContext(r)
	defer cancel()
	rowCount, err := s.importer.AppendTableData(ctx, table.ID, raw)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"row_count": rowCount})
}
