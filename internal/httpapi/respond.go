package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/auth"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/drafts"
	"github.com/rpattn/resourcekit/internal/filters"
	"github.com/rpattn/resourcekit/internal/ingestion"
	"github.com/rpattn/resourcekit/internal/repository"
	"github.com/rpattn/resourcekit/internal/sessions"
	"github.com/rpattn/resourcekit/pkg/validator"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, drafts.ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrScopeMismatch):
		return http.StatusForbidden
	case errors.Is(err, drafts.ErrConflict),
		errors.Is(err, drafts.ErrCommitting):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrUnknownLookupKey),
		errors.Is(err, domain.ErrFilterIndex),
		errors.Is(err, filters.ErrUnknownFamily),
		errors.Is(err, filters.ErrNotApplicable),
		errors.Is(err, filters.ErrInvalidFilter),
		errors.Is(err, ingestion.ErrInvalidUpload):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var result validator.ValidationResult
	if errors.As(err, &result) {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return badRequest("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func decodeObject(r *http.Request) (domain.Object, error) {
	var fields domain.Object
	if err := decodeJSON(r, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = domain.Object{}
	}
	return fields, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, badRequest("invalid %s: %v", name, err)
	}
	return id, nil
}

func (s *Server) pathKey(r *http.Request) (domain.LookupKey, error) {
	key := domain.LookupKey(mux.Vars(r)["key"])
	if !s.registry.IsLookupKey(key) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, key)
	}
	return key, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return v, nil
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, badRequest("invalid %s: %v", name, err)
	}
	return &id, nil
}
