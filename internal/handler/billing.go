package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/billing"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/rbac"
	"github.com/formsmith/formsmith/internal/store"
)

const maxWebhookBody = 65536

type BillingHandler struct {
	client     *billing.Client
	reconciler *billing.Reconciler
	users      *store.UserStore
	teams      *store.TeamStore
	resolver   *rbac.Resolver
	portalURL  string
	logger     *slog.Logger
}

func NewBillingHandler(
	client *billing.Client,
	reconciler *billing.Reconciler,
	users *store.UserStore,
	teams *store.TeamStore,
	resolver *rbac.Resolver,
	portalURL string,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{
		client:     client,
		reconciler: reconciler,
		users:      users,
		teams:      teams,
		resolver:   resolver,
		portalURL:  portalURL,
		logger:     logger.With("component", "billing"),
	}
}

type checkoutRequest struct {
	Plan   model.Plan `json:"plan"`
	TeamID *int64     `json:"team_id"`
}

// Checkout starts a Stripe checkout for the caller (or their team) and
// returns the hosted payment page URL. The subscription itself lands later
// through the webhook.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Plan != model.PlanPro && req.Plan != model.PlanTeam {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plan must be pro or team"})
		return
	}

	customerID, err := h.customerID(r, req.TeamID, p.UserID, true)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	url, err := h.client.CreateCheckoutSession(customerID, req.Plan)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type portalRequest struct {
	TeamID *int64 `json:"team_id"`
}

// Portal returns a Stripe billing portal URL for an existing customer.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.RequireAuthenticated(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	customerID, err := h.customerID(r, req.TeamID, p.UserID, false)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	url, err := h.client.CreateBillingPortalSession(customerID, h.portalURL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// customerID resolves (and when create is set, lazily provisions) the Stripe
// customer for the caller or their team. Team billing needs the team-owner
// role.
func (h *BillingHandler) customerID(r *http.Request, teamID *int64, userID int64, create bool) (string, error) {
	if teamID != nil {
		if err := h.resolver.RequireTeamRole(r.Context(), *teamID, model.TeamRoleOwner); err != nil {
			return "", err
		}
		team, err := h.teams.GetByID(*teamID)
		if err != nil {
			return "", apperr.Internal(err)
		}
		if team.StripeCustomerID != nil {
			return *team.StripeCustomerID, nil
		}
		if !create {
			return "", apperr.New(apperr.CodeNotFound)
		}
		owner, err := h.users.GetByID(team.OwnerUserID)
		if err != nil || owner == nil {
			return "", apperr.Internal(err)
		}
		id, err := h.client.CreateCustomer(owner.Email, team.Name)
		if err != nil {
			return "", apperr.Internal(err)
		}
		if err := h.teams.UpdateStripeCustomerID(team.ID, id); err != nil {
			return "", apperr.Internal(err)
		}
		return id, nil
	}

	u, err := h.users.GetByID(userID)
	if err != nil || u == nil {
		return "", apperr.Internal(err)
	}
	if u.StripeCustomerID != nil {
		return *u.StripeCustomerID, nil
	}
	if !create {
		return "", apperr.New(apperr.CodeNotFound)
	}
	id, err := h.client.CreateCustomer(u.Email, u.Name)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := h.users.UpdateStripeCustomerID(u.ID, id); err != nil {
		return "", apperr.Internal(err)
	}
	return id, nil
}

// Webhook receives Stripe events. The signature gates everything: an
// unverifiable payload is rejected, a verified one is dispatched to the
// reconciler. Storage failures return 500 so Stripe redelivers; the
// reconciler's idempotency makes redelivery safe.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	event, err := h.client.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		writeError(w, h.logger, apperr.New(apperr.CodeInvalidSignature))
		return
	}

	if err := h.reconciler.HandleEvent(event); err != nil {
		writeError(w, h.logger, apperr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
