package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxPageSize = 100

type contextKey string

const contextPrincipalKey contextKey = "principal"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a simple confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// PrincipalFromContext returns the principal attached by the Authenticate
// middleware, or the anonymous principal.
func PrincipalFromContext(ctx context.Context) types.Principal {
	if p, ok := ctx.Value(contextPrincipalKey).(types.Principal); ok {
		return p
	}
	return types.Principal{}
}

// CurrentPage translates the external 1-based page number to the 0-based
// page used internally.
func CurrentPage(page int) int {
	return page - 1
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// writeError maps a domain error kind to an HTTP status. Anything that is
// not a domain error is an internal failure and its message is not leaked.
func writeError(w http.ResponseWriter, err error) {
	switch services.KindOf(err) {
	case services.KindNotFound:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case services.KindBadRequest, services.KindValidation:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case services.KindForbidden:
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case services.KindUnauthenticated:
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// parsePagination reads the 1-based page and size query parameters and
// returns them alongside the internal offset.
func parsePagination(r *http.Request, defaultSize int) (page, size, offset int, err error) {
	page = 1
	size = defaultSize

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 1 {
			return 0, 0, 0, errors.New("invalid size")
		}
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	offset = CurrentPage(page) * size
	return page, size, offset, nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name)
	}
	return id, nil
}
