package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/push"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
)

type PushHandler struct {
	subs     *store.PushSubscriptionStore
	service  *push.Service
	resolver *rbac.Resolver
	logger   *slog.Logger
}

func NewPushHandler(subs *store.PushSubscriptionStore, service *push.Service, resolver *rbac.Resolver, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, service: service, resolver: resolver, logger: logger.With("component", "push")}
}

// VAPIDKey returns the public key browsers need to subscribe.
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.service.Configured() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "push notifications are not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Subscribe registers the caller's browser push endpoint.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint, p256dh, and auth are required"})
		return
	}

	sub, err := h.subs.Upsert(p.UserID, req.Endpoint, req.P256dh, req.Auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe removes one of the caller's push endpoints.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint is required"})
		return
	}

	if err := h.subs.DeleteForUser(p.UserID, req.Endpoint); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions returns the caller's registered endpoints.
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	subs, err := h.subs.ListByUser(p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}
