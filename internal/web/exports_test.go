package web

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/assumptions/internal/core"
)

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := &countingWriter{w: &buf}

	n, err := cw.Write([]byte("name,age\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = cw.Write([]byte("Alice,30\r\n"))
	require.NoError(t, err)

	assert.Equal(t, int64(20), cw.n)
	assert.Equal(t, "name,age\r\nAlice,30\r\n", buf.String())
}

// A failure before the first byte leaves the response untouched, so
// the client gets a real error body instead of an empty 200 CSV.
func TestFinishExportBeforeFirstByte(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/tables/abc/export", nil)
	rec := httptest.NewRecorder()
	setCSVHeaders(rec, "rates_20240105.csv")

	err := fmt.Errorf("table abc: %w", core.ErrNotFound)
	s.finishExport(rec, req, 0, err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "not found", decodeErrorBody(t, rec).Error)
}

func TestFinishExportMidStream(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/tables/abc/export", nil)
	rec := httptest.NewRecorder()
	setCSVHeaders(rec, "rates_20240105.csv")
	_, err := rec.Write([]byte("name,age\r\n"))
	require.NoError(t, err)

	s.finishExport(rec, req, 10, fmt.Errorf("connection reset"))

	// Already streaming: headers and body stay as they were.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "name,age\r\n", rec.Body.String())
}

func TestFinishExportSuccess(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/tables/abc/export", nil)
	rec := httptest.NewRecorder()
	setCSVHeaders(rec, "rates_20240105.csv")

	s.finishExport(rec, req, 42, nil)

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
}
