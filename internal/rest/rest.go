package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/klokku/treasury/internal/apperr"
	log "github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Kind    string            `json:"kind,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict, apperr.KindSeriesExhausted:
		return http.StatusConflict
	case apperr.KindBudgetExceeded:
		return http.StatusUnprocessableEntity
	case apperr.KindPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError encodes err as an ErrorResponse. Infrastructure errors become 500 without detail.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	var body ErrorResponse
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &appErr):
		status = statusFor(appErr.Kind)
		body = ErrorResponse{Error: appErr.Error(), Kind: string(appErr.Kind), Details: appErr.Details}
	default:
		log.Errorf("request failed: %v", err)
		body = ErrorResponse{Error: "internal server error"}
	}
	WriteJSON(w, status, body)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

// DecodeJSON decodes the request body into v, reporting malformed input as a validation error.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("malformed request body: %v", err)
	}
	return nil
}

// DecodeOptionalJSON is DecodeJSON for bodies that may be left out. An empty body leaves v
// untouched whatever the transfer encoding.
func DecodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Validation("malformed request body: %v", err)
	}
	return nil
}

// PathInt reads an integer mux path variable.
func PathInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, apperr.Validation("invalid %s", name)
	}
	return value, nil
}
