package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/assumptions/internal/core"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRespondError(t *testing.T) {
	s := &Server{}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "not found maps to 404",
			err:        fmt.Errorf("table abc: %w", core.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "not found",
		},
		{
			name:       "state error maps to 400 with message",
			err:        core.NewStateError("cannot delete an approved version"),
			wantStatus: http.StatusBadRequest,
			wantError:  "cannot delete an approved version",
		},
		{
			name:       "storage error maps to opaque 500",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
			rec := httptest.NewRecorder()
			s.respondError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantError, decodeErrorBody(t, rec).Error)
		})
	}
}

func TestRespondErrorValidation(t *testing.T) {
	s := &Server{}
	verr := &core.ValidationError{
		Errors: []core.CellError{
			{Row: 3, Column: "age", Expected: core.TypeInteger, Value: "twenty", Message: "cannot parse"},
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tables/import", nil)
	rec := httptest.NewRecorder()
	s.respondError(rec, req, verr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec)
	require.Len(t, body.Details, 1)
	assert.Equal(t, 3, body.Details[0].Row)
	assert.Equal(t, "age", body.Details[0].Column)
	assert.False(t, body.Truncated)
}

// A wrapped validation error still carries its cell details to the
// client.
func TestRespondErrorWrappedValidation(t *testing.T) {
	s := &Server{}
	verr := &core.ValidationError{
		Errors:    []core.CellError{{Row: 2, Column: "rate", Message: "bad"}},
		Truncated: true,
	}
	wrapped := fmt.Errorf("import rejected: %w", verr)

	req := httptest.NewRequest(http.MethodPost, "/api/tables/import", nil)
	rec := httptest.NewRecorder()
	s.respondError(rec, req, wrapped)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Len(t, body.Details, 1)
	assert.True(t, body.Truncated)
}
