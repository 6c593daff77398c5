package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/suggest"
)

type SuggestHandler struct {
	client   *suggest.Client
	resolver *rbac.Resolver
	logger   *slog.Logger
}

func NewSuggestHandler(client *suggest.Client, resolver *rbac.Resolver, logger *slog.Logger) *SuggestHandler {
	return &SuggestHandler{client: client, resolver: resolver, logger: logger.With("component", "suggest")}
}

type suggestRequest struct {
	Description string `json:"description"`
}

// Fields proposes a field set for a described form.
func (h *SuggestHandler) Fields(w http.ResponseWriter, r *http.Request) {
	if _, err := h.resolver.RequireAuthenticated(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return
	}

	suggestions, err := h.client.Suggest(r.Context(), req.Description)
	if err != nil {
		// Model trouble should not block form building.
		h.logger.Warn("suggestion model failed, using fallback", "error", err)
		suggestions = suggest.Fallback(req.Description)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": suggestions})
}
