package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/formsmith/formsmith/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a failure as {"error": CODE} with the code's HTTP
// status. Untyped errors read as INTERNAL and are logged; typed denials are
// expected traffic and are not.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, apperr.HTTPStatus(code), map[string]string{"error": string(code)})
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
