package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", apperr.Validation("payee is required"), http.StatusBadRequest, "validation"},
		{"not found", apperr.NotFound("dv", 3), http.StatusNotFound, "not_found"},
		{"state conflict", apperr.StateConflict("dv", 3, "paid", "cancel"), http.StatusConflict, "state_conflict"},
		{"budget exceeded", apperr.BudgetExceeded("allotment", 1, "2.00", "1.00", "1.00"), http.StatusUnprocessableEntity, "budget_exceeded"},
		{"permission", apperr.Permission(4, "director"), http.StatusForbidden, "permission"},
		{"series exhausted", apperr.SeriesExhausted("OR:2025"), http.StatusConflict, "series_exhausted"},
		{"infrastructure", errors.New("connection reset"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestPathInt(t *testing.T) {
	t.Run("should parse path variable", func(t *testing.T) {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/dv/12", nil), map[string]string{"dvId": "12"})

		id, err := PathInt(req, "dvId")

		require.NoError(t, err)
		assert.Equal(t, 12, id)
	})

	t.Run("should report invalid path variable as validation error", func(t *testing.T) {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/dv/abc", nil), map[string]string{"dvId": "abc"})

		_, err := PathInt(req, "dvId")

		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestDecodeOptionalJSON(t *testing.T) {
	type comments struct {
		Comments string `json:"comments"`
	}

	t.Run("should leave value untouched without a body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/dv/1/cancel", nil)
		v := comments{Comments: "kept"}

		err := DecodeOptionalJSON(req, &v)

		require.NoError(t, err)
		assert.Equal(t, "kept", v.Comments)
	})

	t.Run("should decode body of unknown length", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/dv/1/cancel", strings.NewReader(`{"comments":"late"}`))
		req.ContentLength = -1
		var v comments

		err := DecodeOptionalJSON(req, &v)

		require.NoError(t, err)
		assert.Equal(t, "late", v.Comments)
	})

	t.Run("should accept empty body of unknown length", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/dv/1/cancel", strings.NewReader(""))
		req.ContentLength = -1
		var v comments

		err := DecodeOptionalJSON(req, &v)

		require.NoError(t, err)
		assert.Empty(t, v.Comments)
	})

	t.Run("should report malformed body as validation error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/dv/1/cancel", strings.NewReader(`{"comments":`))

		err := DecodeOptionalJSON(req, &comments{})

		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
