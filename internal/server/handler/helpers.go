package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// writeJSON encodes v before touching the response so an encoding failure
// can still become a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"internal server error"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a non-negative integer query parameter. Missing or
// malformed values yield def.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// parseListOpts reads limit and offset. A zero limit means the default and
// anything above maxLimit is clamped.
func parseListOpts(r *http.Request) domain.ListOpts {
	limit := queryInt(r, "limit", defaultLimit)
	if limit == 0 {
		limit = defaultLimit
	}
	return domain.ListOpts{
		Limit:  min(limit, maxLimit),
		Offset: queryInt(r, "offset", 0),
	}
}

// listResponse is one page of T plus its paging window.
type listResponse[T any] struct {
	Data   []T   `json:"data"`
	Total  int64 `json:"total,omitempty"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
