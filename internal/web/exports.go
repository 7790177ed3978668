package web

// exports.go streams CSV downloads. The exporter writes directly to
// the response, so headers must be final before the first byte. Errors
// raised before anything was written still get a proper error
// response; once streaming begins they can only be logged.

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgerline/assumptions/internal/core"
	"github.com/ledgerline/assumptions/internal/logging"
)

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func includeMetadata(r *http.Request) bool {
	return r.URL.Query().Get("metadata") != "false"
}

func exportFilename(table *core.TableMeta, suffix string) string {
	return fmt.Sprintf("%s%s_%s.csv", table.Name, suffix, time.Now().UTC().Format("20060102"))
}

// exportContext bounds an export stream by the configured timeout.
func (s *Server) exportContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.Export.Timeout)
}

// countingWriter tracks whether the exporter has produced any output
// yet, so failures before the first byte can still become an error
// response.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// finishExport resolves a failed export. Nothing written yet means the
// response is still untouched: clear the CSV headers and report the
// error properly. Mid-stream failures can only be logged.
func (s *Server) finishExport(w http.ResponseWriter, r *http.Request, written int64, err error, logArgs ...any) {
	if err == nil {
		return
	}
	if written == 0 {
		w.Header().Del("Content-Type")
		w.Header().Del("Content-Disposition")
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Error("export aborted mid-stream",
		append(logArgs, "error", err)...)
}

func (s *Server) handleExportTable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	setCSVHeaders(w, exportFilename(table, ""))
	ctx, cancel := s.exportContext(r)
	defer cancel()
	cw := &countingWriter{w: w}
	err := s.exporter.ExportTable(ctx, cw, table.ID, includeMetadata(r))
	s.finishExport(w, r, cw.n, err, "table_id", table.ID)
}

func (s *Server) handleExportVersion(w http.ResponseWriter, r *http.Request) {
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

	suffix := fmt.Sprintf("_v%d", version.VersionNumber)
	setCSVHeaders(w, exportFilename(table, suffix))
	ctx, cancel := s.exportContext(r)
	defer cancel()
	cw := &countingWriter{w: w}
	err := s.exporter.ExportVersion(ctx, cw, table.ID, version.ID, includeMetadata(r))
	s.finishExport(w, r, cw.n, err, "table_id", table.ID, "version_id", version.ID)
}

// handleExportLatestApproved exports the highest-numbered approved
// snapshot, the version downstream consumers should be reading.
func (s *Server) handleExportLatestApproved(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	table, ok := s.resolveTable(w, r, id)
	if !ok {
		return
	}

	version, err := s.versioning.LatestApprovedVersion(r.Context(), table.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	suffix := fmt.Sprintf("_v%d_approved", version.VersionNumber)
	setCSVHeaders(w, exportFilename(table, suffix))
	ctx, cancel := s.exportContext(r)
	defer cancel()
	cw := &countingWriter{w: w}
	err = s.exporter.ExportVersion(ctx, cw, table.ID, version.ID, includeMetadata(r))
	s.finishExport(w, r, cw.n, err, "table_id", table.ID, "version_id", version.ID)
}
