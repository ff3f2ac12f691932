// Package handlers provides the HTTP API and middleware for fieldmemo.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/ingest"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// maxIngestBody bounds POST /api/memos bodies; transcripts are long but finite.
const maxIngestBody = 8 << 20

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// extractInt64ID parses a numeric path parameter.
func extractInt64ID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(extractID(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// parseDate accepts YYYY-MM-DD or RFC3339. An empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		log.Error().Err(err).Msg("handlers: failed to encode JSON response")
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

// respondStoreError maps storage sentinel errors onto status codes.
func respondStoreError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, what+" not found", err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid "+what, err)
	case errors.Is(err, storage.ErrConflict):
		respondError(w, http.StatusConflict, what+" already exists", err)
	default:
		log.Error().Err(err).Str("resource", what).Msg("handlers: store operation failed")
		respondError(w, http.StatusInternalServerError, "failed to process "+what, err)
	}
}

// respondIngestError maps ingestion errors onto status codes.
func respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "invalid ingest request", err)
	case errors.Is(err, ingest.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "store unavailable", err)
	default:
		respondError(w, http.StatusInternalServerError, "failed to ingest memo", err)
	}
}

// decodeJSON decodes a request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// paginated converts a storage page into the API list shape.
func paginated(result *storage.PaginatedResult[types.Memo]) MemoListResponse {
	return MemoListResponse{
		Memos:    result.Items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	}
}
