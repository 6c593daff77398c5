package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/formsmith/formsmith/internal/database"
	"github.com/formsmith/formsmith/internal/model"
)

func setupSubscriptionTestDB(t *testing.T) (*SubscriptionStore, *UserStore, *TeamStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSubscriptionStore(db), NewUserStore(db), NewTeamStore(db)
}

func TestSubscriptionUpsertCreates(t *testing.T) {
	ss, us, _ := setupSubscriptionTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	owner := model.UserOwner(u.ID)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := ss.Upsert(owner, "sub_1", model.PlanPro, model.StatusActive, periodEnd); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sub, err := ss.GetByOwner(owner)
	if err != nil {
		t.Fatalf("get by owner: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription")
	}
	if sub.Plan != model.PlanPro {
		t.Errorf("plan = %q, want pro", sub.Plan)
	}
	if sub.Status != model.StatusActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end = %v, want %v", sub.CurrentPeriodEnd, periodEnd)
	}
}

func TestSubscriptionUpsertIdempotent(t *testing.T) {
	ss, us, _ := setupSubscriptionTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	owner := model.UserOwner(u.ID)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := ss.Upsert(owner, "sub_1", model.PlanPro, model.StatusActive, periodEnd); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, _ := ss.GetByOwner(owner)

	if err := ss.Upsert(owner, "sub_1", model.PlanPro, model.StatusActive, periodEnd); err != nil {
		t.Fatalf("replay upsert: %v", err)
	}
	second, _ := ss.GetByOwner(owner)

	if first.ID != second.ID {
		t.Errorf("replay created a new row: %d vs %d", first.ID, second.ID)
	}
	if !reflect.DeepEqual(first.Plan, second.Plan) || first.Status != second.Status ||
		!first.CurrentPeriodEnd.Equal(*second.CurrentPeriodEnd) {
		t.Errorf("replay changed state: %+v vs %+v", first, second)
	}
}

func TestSubscriptionUpsertMonotonic(t *testing.T) {
	ss, us, _ := setupSubscriptionTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	owner := model.UserOwner(u.ID)
	newer := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := ss.Upsert(owner, "sub_1", model.PlanTeam, model.StatusActive, newer); err != nil {
		t.Fatalf("upsert newer: %v", err)
	}
	// A stale event delivered late must not regress the stored state.
	if err := ss.Upsert(owner, "sub_1", model.PlanPro, model.StatusPastDue, older); err != nil {
		t.Fatalf("upsert older: %v", err)
	}

	sub, _ := ss.GetByOwner(owner)
	if sub.Plan != model.PlanTeam {
		t.Errorf("plan = %q, want team (stale update applied)", sub.Plan)
	}
	if sub.Status != model.StatusActive {
		t.Errorf("status = %q, want active (stale update applied)", sub.Status)
	}
	if !sub.CurrentPeriodEnd.Equal(newer) {
		t.Errorf("period end = %v, want %v", sub.CurrentPeriodEnd, newer)
	}
}

func TestSubscriptionUpsertAdvances(t *testing.T) {
	ss, us, _ := setupSubscriptionTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	owner := model.UserOwner(u.ID)
	older := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	ss.Upsert(owner, "sub_1", model.PlanPro, model.StatusActive, older)
	if err := ss.Upsert(owner, "sub_1", model.PlanTeam, model.StatusActive, newer); err != nil {
		t.Fatalf("upsert newer: %v", err)
	}

	sub, _ := ss.GetByOwner(owner)
	if sub.Plan != model.PlanTeam {
		t.Errorf("plan = %q, want team", sub.Plan)
	}
	if !sub.CurrentPeriodEnd.Equal(newer) {
		t.Errorf("period end = %v, want %v", sub.CurrentPeriodEnd, newer)
	}
}

func TestSubscriptionTeamOwner(t *testing.T) {
	ss, us, ts := setupSubscriptionTestDB(t)

	u, _ := us.Create("owner@example.com", "Owner", "hash", model.RoleUser)
	team, _ := ts.Create("Acme", u.ID)
	owner := model.TeamOwner(team.ID)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := ss.Upsert(owner, "sub_t", model.PlanTeam, model.StatusActive, periodEnd); err != nil {
		t.Fatalf("upsert team subscription: %v", err)
	}

	sub, _ := ss.GetByOwner(owner)
	if sub == nil || sub.Owner.Kind != model.OwnerTeam || sub.Owner.ID != team.ID {
		t.Fatalf("owner = %+v, want team %d", sub, team.ID)
	}

	// The user's personal owner ref must not see the team subscription.
	personal, _ := ss.GetByOwner(model.UserOwner(u.ID))
	if personal != nil {
		t.Error("user owner should have no subscription")
	}
}

func TestSubscriptionCancel(t *testing.T) {
	ss, us, _ := setupSubscriptionTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	owner := model.UserOwner(u.ID)
	periodEnd := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	canceledAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	ss.Upsert(owner, "sub_1", model.PlanPro, model.StatusActive, periodEnd)
	if err := ss.Cancel(owner, canceledAt); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sub, _ := ss.GetByOwner(owner)
	if sub.Status != model.StatusCanceled {
		t.Errorf("status = %q, want canceled", sub.Status)
	}
	if !sub.CurrentPeriodEnd.Equal(canceledAt) {
		t.Errorf("period end = %v, want cancellation time %v", sub.CurrentPeriodEnd, canceledAt)
	}
}

func TestSubscriptionCancelUnknownOwnerIsNoop(t *testing.T) {
	ss, us, _ := setupSubscriptionTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	if err := ss.Cancel(model.UserOwner(u.ID), time.Now().UTC()); err != nil {
		t.Fatalf("cancel without subscription: %v", err)
	}
	sub, _ := ss.GetByOwner(model.UserOwner(u.ID))
	if sub != nil {
		t.Error("cancel must not create a subscription row")
	}
}
