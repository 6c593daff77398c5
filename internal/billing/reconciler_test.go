package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/formsmith/formsmith/internal/database"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/store"
)

type fixture struct {
	reconciler    *Reconciler
	users         *store.UserStore
	teams         *store.TeamStore
	subscriptions *store.SubscriptionStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	teams := store.NewTeamStore(db)
	subs := store.NewSubscriptionStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		reconciler:    NewReconciler(logger, users, teams, subs),
		users:         users,
		teams:         teams,
		subscriptions: subs,
	}
}

func subscriptionEventJSON(subID, customer, status, planTag string, periodEnd, canceledAt int64) json.RawMessage {
	payload := fmt.Sprintf(`{
		"id": %q,
		"customer": %q,
		"status": %q,
		"current_period_end": %d,
		"canceled_at": %d,
		"items": {"data": [{"price": {"metadata": {"plan": %q}}}]}
	}`, subID, customer, status, periodEnd, canceledAt, planTag)
	return json.RawMessage(payload)
}

func event(eventType string, raw json.RawMessage) stripe.Event {
	return stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestReconcileCreatesUserSubscription(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	f.users.UpdateStripeCustomerID(u.ID, "cus_alice")
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	ev := event("customer.subscription.created",
		subscriptionEventJSON("sub_1", "cus_alice", "active", "pro", periodEnd.Unix(), 0))
	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	sub, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))
	if sub == nil {
		t.Fatal("expected subscription row")
	}
	if sub.Plan != model.PlanPro || sub.Status != model.StatusActive {
		t.Errorf("got %s/%s, want pro/active", sub.Plan, sub.Status)
	}
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end = %v, want %v", sub.CurrentPeriodEnd, periodEnd)
	}
}

func TestReconcileTeamPlanFromPriceMetadata(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("owner@example.com", "Owner", "hash", model.RoleUser)
	team, _ := f.teams.Create("Acme", u.ID)
	f.teams.UpdateStripeCustomerID(team.ID, "cus_team")
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	ev := event("customer.subscription.created",
		subscriptionEventJSON("sub_t", "cus_team", "active", "team", periodEnd.Unix(), 0))
	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	sub, _ := f.subscriptions.GetByOwner(model.TeamOwner(team.ID))
	if sub == nil || sub.Plan != model.PlanTeam {
		t.Fatalf("got %+v, want team plan", sub)
	}
}

func TestReconcileDefaultsToProWithoutMetadata(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	f.users.UpdateStripeCustomerID(u.ID, "cus_alice")

	raw := json.RawMessage(`{
		"id": "sub_1",
		"customer": "cus_alice",
		"status": "active",
		"current_period_end": 1790000000,
		"items": {"data": [{"price": {"metadata": {}}}]}
	}`)
	if err := f.reconciler.HandleEvent(event("customer.subscription.updated", raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	sub, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))
	if sub == nil || sub.Plan != model.PlanPro {
		t.Fatalf("got %+v, want pro default", sub)
	}
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	f.users.UpdateStripeCustomerID(u.ID, "cus_alice")
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ev := event("customer.subscription.created",
		subscriptionEventJSON("sub_1", "cus_alice", "active", "pro", periodEnd.Unix(), 0))

	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))
	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	second, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))

	if first.ID != second.ID || first.Plan != second.Plan || first.Status != second.Status {
		t.Errorf("redelivery changed state: %+v vs %+v", first, second)
	}
}

func TestReconcileStaleUpdateIgnored(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	f.users.UpdateStripeCustomerID(u.ID, "cus_alice")
	newer := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	f.reconciler.HandleEvent(event("customer.subscription.updated",
		subscriptionEventJSON("sub_1", "cus_alice", "active", "team", newer.Unix(), 0)))
	// The earlier event arrives late.
	f.reconciler.HandleEvent(event("customer.subscription.updated",
		subscriptionEventJSON("sub_1", "cus_alice", "past_due", "pro", older.Unix(), 0)))

	sub, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))
	if sub.Plan != model.PlanTeam || sub.Status != model.StatusActive {
		t.Errorf("stale event regressed state: %s/%s", sub.Plan, sub.Status)
	}
}

func TestReconcileCancellation(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	f.users.UpdateStripeCustomerID(u.ID, "cus_alice")
	periodEnd := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	canceledAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	f.reconciler.HandleEvent(event("customer.subscription.created",
		subscriptionEventJSON("sub_1", "cus_alice", "active", "pro", periodEnd.Unix(), 0)))
	if err := f.reconciler.HandleEvent(event("customer.subscription.deleted",
		subscriptionEventJSON("sub_1", "cus_alice", "canceled", "pro", periodEnd.Unix(), canceledAt.Unix()))); err != nil {
		t.Fatalf("handle deletion: %v", err)
	}

	sub, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))
	if sub.Status != model.StatusCanceled {
		t.Errorf("status = %s, want canceled", sub.Status)
	}
	if !sub.CurrentPeriodEnd.Equal(canceledAt) {
		t.Errorf("period end = %v, want cancellation time %v", sub.CurrentPeriodEnd, canceledAt)
	}
}

func TestReconcileUnknownCustomerAcked(t *testing.T) {
	f := setup(t)

	ev := event("customer.subscription.created",
		subscriptionEventJSON("sub_x", "cus_nobody", "active", "pro", time.Now().Unix(), 0))
	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("unknown customer must not error: %v", err)
	}
}

func TestReconcileUnhandledEventType(t *testing.T) {
	f := setup(t)

	ev := event("invoice.paid", json.RawMessage(`{}`))
	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("unhandled type must not error: %v", err)
	}
}

func TestReconcilePastDueStatus(t *testing.T) {
	f := setup(t)

	u, _ := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	f.users.UpdateStripeCustomerID(u.ID, "cus_alice")

	ev := event("customer.subscription.updated",
		subscriptionEventJSON("sub_1", "cus_alice", "past_due", "pro", time.Now().Add(720*time.Hour).Unix(), 0))
	if err := f.reconciler.HandleEvent(ev); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	sub, _ := f.subscriptions.GetByOwner(model.UserOwner(u.ID))
	if sub.Status != model.StatusPastDue {
		t.Errorf("status = %s, want past_due", sub.Status)
	}
}
