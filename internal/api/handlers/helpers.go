// Handler helpers shared across the API surface.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
)

const headerContentType = "Content-Type"

const (
	defaultPaginationLimit = 50
	maxPaginationLimit     = 200
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set(headerContentType, "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set(headerContentType, "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// parsePagination extracts and clamps limit/offset query params.
func parsePagination(r *http.Request) chat.Pagination {
	limit := defaultPaginationLimit
	offset := 0

	if lim, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && lim > 0 {
		if lim > maxPaginationLimit {
			lim = maxPaginationLimit
		}
		limit = lim
	}
	if off, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && off >= 0 {
		offset = off
	}
	return chat.Pagination{Limit: limit, Offset: offset}
}
