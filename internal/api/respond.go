package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/logging"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalid:      http.StatusBadRequest,
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindPrecondition: http.StatusUnprocessableEntity,
	apperr.KindUnavailable:  http.StatusServiceUnavailable,
	apperr.KindInternal:     http.StatusInternalServerError,
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.FromContext(r.Context(), nil).Warn("encode response", zap.Error(err))
	}
}

// respondError hides the cause of internal errors from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err, "internal server error")
	}

	status := statusByKind[e.Kind]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	log := logging.FromContext(r.Context(), nil)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", e.Code), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("code", e.Code), zap.Error(err))
	}

	if e.Kind == apperr.KindUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, r, status, ErrorResponse{Error: e.Message, Code: e.Code, Details: e.Details})
}

var (
	errBadBody = apperr.New(apperr.KindInvalid, "invalid_request", "invalid JSON body")
	errBadID   = apperr.New(apperr.KindInvalid, "invalid_id", "path id must be a positive integer")
	errBadArg  = apperr.New(apperr.KindInvalid, "invalid_parameter", "invalid query parameter")
)

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(err, apperr.KindInvalid, "body_too_large", "request body too large")
		}
		return apperr.Wrap(err, errBadBody.Kind, errBadBody.Code, errBadBody.Message)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID.With("param", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errBadArg.With("param", name)
	}
	return n, nil
}
