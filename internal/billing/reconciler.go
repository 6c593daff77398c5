package billing

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/store"
)

// Reconciler folds subscription lifecycle events into the local subscription
// table. Events may arrive out of order or more than once; applying the same
// event twice must leave the table unchanged, and a stale event must never
// regress a newer state.
type Reconciler struct {
	logger        *slog.Logger
	users         *store.UserStore
	teams         *store.TeamStore
	subscriptions *store.SubscriptionStore

	now func() time.Time
}

func NewReconciler(logger *slog.Logger, users *store.UserStore, teams *store.TeamStore, subscriptions *store.SubscriptionStore) *Reconciler {
	return &Reconciler{
		logger:        logger.With("component", "billing"),
		users:         users,
		teams:         teams,
		subscriptions: subscriptions,
		now:           time.Now,
	}
}

// subscriptionEvent pins the fields this service reads from a Stripe
// subscription payload. Decoding into a local struct keeps the wire contract
// explicit instead of tracking the SDK's full object across API versions.
type subscriptionEvent struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	CanceledAt       int64  `json:"canceled_at"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// HandleEvent applies one verified webhook event. Unhandled event types and
// events for customers this service has never seen are acknowledged without
// effect; only storage failures surface as errors.
func (r *Reconciler) HandleEvent(event stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return r.applySubscription(event)
	case "customer.subscription.deleted":
		return r.applyCancellation(event)
	}
	r.logger.Debug("ignoring webhook event", "type", event.Type)
	return nil
}

func (r *Reconciler) applySubscription(event stripe.Event) error {
	var p subscriptionEvent
	if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
		r.logger.Error("malformed subscription payload", "type", event.Type, "error", err)
		return nil
	}

	owner, ok, err := r.resolveOwner(p.Customer)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("webhook for unknown customer", "customer", p.Customer, "type", event.Type)
		return nil
	}

	periodEnd := p.CurrentPeriodEnd
	if periodEnd == 0 && len(p.Items.Data) > 0 {
		periodEnd = p.Items.Data[0].CurrentPeriodEnd
	}

	plan := r.planFromPayload(p)
	status := statusFromStripe(p.Status)
	if err := r.subscriptions.Upsert(owner, p.ID, plan, status, time.Unix(periodEnd, 0).UTC()); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	r.logger.Info("subscription reconciled",
		"customer", p.Customer,
		"plan", plan,
		"status", status,
	)
	return nil
}

func (r *Reconciler) applyCancellation(event stripe.Event) error {
	var p subscriptionEvent
	if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
		r.logger.Error("malformed subscription payload", "type", event.Type, "error", err)
		return nil
	}

	owner, ok, err := r.resolveOwner(p.Customer)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("cancellation for unknown customer", "customer", p.Customer)
		return nil
	}

	canceledAt := r.now().UTC()
	if p.CanceledAt > 0 {
		canceledAt = time.Unix(p.CanceledAt, 0).UTC()
	}
	if err := r.subscriptions.Cancel(owner, canceledAt); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	r.logger.Info("subscription canceled", "customer", p.Customer)
	return nil
}

// resolveOwner maps a Stripe customer ID back to the user or team it was
// created for. Users are checked first; a customer ID is only ever attached
// to one of the two.
func (r *Reconciler) resolveOwner(customerID string) (model.OwnerRef, bool, error) {
	if customerID == "" {
		return model.OwnerRef{}, false, nil
	}
	u, err := r.users.GetByStripeCustomerID(customerID)
	if err != nil {
		return model.OwnerRef{}, false, fmt.Errorf("lookup user by customer: %w", err)
	}
	if u != nil {
		return model.UserOwner(u.ID), true, nil
	}
	t, err := r.teams.GetByStripeCustomerID(customerID)
	if err != nil {
		return model.OwnerRef{}, false, fmt.Errorf("lookup team by customer: %w", err)
	}
	if t != nil {
		return model.TeamOwner(t.ID), true, nil
	}
	return model.OwnerRef{}, false, nil
}

// planFromPayload reads the plan from the price's metadata. Prices without a
// plan tag sell the pro tier.
func (r *Reconciler) planFromPayload(p subscriptionEvent) model.Plan {
	if len(p.Items.Data) > 0 {
		switch p.Items.Data[0].Price.Metadata["plan"] {
		case string(model.PlanTeam):
			return model.PlanTeam
		case string(model.PlanFree):
			return model.PlanFree
		case string(model.PlanPro):
			return model.PlanPro
		}
	}
	return model.PlanPro
}

// statusFromStripe collapses Stripe's status vocabulary onto the three local
// states. Anything unrecognized reads as past_due so an unknown status never
// grants a paid ceiling.
func statusFromStripe(s string) model.SubscriptionStatus {
	switch s {
	case "active", "trialing":
		return model.StatusActive
	case "canceled", "incomplete_expired":
		return model.StatusCanceled
	}
	return model.StatusPastDue
}
