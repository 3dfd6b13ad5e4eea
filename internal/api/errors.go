package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/ingest"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/store"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

const (
	msgNoParameters      = "At least one parameter is required"
	msgInvalidParameters = "Invalid parameters provided"
	msgInternal          = "Internal server error"
	msgNoFile            = "No file provided"
	msgEmptyFile         = "Empty file"
	msgUnsupportedFormat = "Unsupported file format"
	msgMissingColumns    = "Missing required columns"
	msgInvalidData       = "Invalid data format"
	msgNotFound          = "Not found"
	msgTooManyRequests   = "Too many requests"
)

type errorResponse struct {
	Error          string           `json:"error"`
	Details        []wqi.FieldError `json:"details,omitempty"`
	MissingColumns []string         `json:"missingColumns,omitempty"`
}

// apiError carries an HTTP status for a client-facing failure.
type apiError struct {
	status int
	body   errorResponse
	cause  error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return e.body.Error + ": " + e.cause.Error()
	}
	return e.body.Error
}

func (e *apiError) Unwrap() error { return e.cause }

func badRequest(msg string, cause error) *apiError {
	return &apiError{status: http.StatusBadRequest, body: errorResponse{Error: msg}, cause: cause}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts an error-returning handler, mapping domain errors to
// responses. Anything unrecognised is logged and reported as a bare 500.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			writeError(w, r, err)
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAPIError(err)
	if ae.status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		zap.L().Debug("api: rejected request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("status", ae.status),
			zap.Error(err),
		)
	}
	writeJSON(w, ae.status, ae.body)
}

func toAPIError(err error) *apiError {
	var (
		ae       *apiError
		invalid  *wqi.InvalidParametersError
		missing  *ingest.MissingColumnsError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, wqi.ErrNoParameters):
		return badRequest(msgNoParameters, err)
	case errors.As(err, &invalid):
		return &apiError{status: http.StatusBadRequest, body: errorResponse{Error: msgInvalidParameters, Details: invalid.Fields}, cause: err}
	case errors.As(err, &missing):
		return &apiError{status: http.StatusBadRequest, body: errorResponse{Error: msgMissingColumns, MissingColumns: missing.Columns}, cause: err}
	case errors.Is(err, ingest.ErrEmptyFile):
		return badRequest(msgEmptyFile, err)
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return badRequest(msgUnsupportedFormat, err)
	case errors.As(err, &tooLarge):
		return &apiError{status: http.StatusRequestEntityTooLarge, body: errorResponse{Error: "File too large"}, cause: err}
	case errors.Is(err, store.ErrNotFound):
		return &apiError{status: http.StatusNotFound, body: errorResponse{Error: msgNotFound}, cause: err}
	default:
		return &apiError{status: http.StatusInternalServerError, body: errorResponse{Error: msgInternal}, cause: err}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: write response", zap.Error(err))
	}
}
