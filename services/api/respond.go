package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxBodySize = 1 << 20

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, format string, args ...any) {
	respondJSON(w, status, map[string]any{"error": fmt.Sprintf(format, args...)})
}

func statusOk() map[string]any {
	return map[string]any{"status": "ok"}
}

// decodeJSON reports whether decoding succeeded; on failure the 400 has
// already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

// idParam parses the {id} route parameter; on failure the 400 has
// already been written.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// intQuery reads an integer query parameter, falling back to def when
// absent or malformed.
func intQuery(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return value
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func isoTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func nullIsoTime(v sql.NullInt64) *string {
	if !v.Valid {
		return nil
	}
	s := isoTime(v.Int64)
	return &s
}
