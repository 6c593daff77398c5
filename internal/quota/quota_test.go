package quota

import (
	"testing"
	"time"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/database"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/plan"
	"github.com/formsmith/formsmith/internal/store"
)

type fixture struct {
	enforcer      *Enforcer
	users         *store.UserStore
	forms         *store.FormStore
	subscriptions *store.SubscriptionStore
	submissions   *store.SubmissionStore
}

func setup(t *testing.T, limits plan.Limits) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	forms := store.NewFormStore(db)
	subs := store.NewSubscriptionStore(db)
	submissions := store.NewSubmissionStore(db)
	return &fixture{
		enforcer:      NewEnforcer(plan.NewResolver(forms, subs), submissions, limits),
		users:         store.NewUserStore(db),
		forms:         forms,
		subscriptions: subs,
		submissions:   submissions,
	}
}

func (f *fixture) freeForm(t *testing.T) *model.Form {
	t.Helper()
	u, err := f.users.Create("alice@example.com", "Alice", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	form, err := f.forms.Create(model.UserOwner(u.ID), "Contact", "")
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	return form
}

func TestMonthStart(t *testing.T) {
	in := time.Date(2026, 9, 17, 15, 4, 5, 0, time.FixedZone("UTC+5", 5*3600))
	want := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := MonthStart(in); !got.Equal(want) {
		t.Errorf("MonthStart = %v, want %v", got, want)
	}
}

func TestRecordSubmissionWithinLimit(t *testing.T) {
	f := setup(t, plan.Limits{Free: 2, Pro: 10, Team: 20})
	form := f.freeForm(t)

	for i := 0; i < 2; i++ {
		if _, err := f.enforcer.RecordSubmission(form.ID, "1.2.3.4", "agent", nil); err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}

	_, err := f.enforcer.RecordSubmission(form.ID, "1.2.3.4", "agent", nil)
	if !apperr.HasCode(err, apperr.CodeFreeQuotaExceeded) {
		t.Fatalf("err = %v, want FREE_QUOTA_EXCEEDED", err)
	}
}

func TestRecordSubmissionPaidPlanCode(t *testing.T) {
	f := setup(t, plan.Limits{Free: 1, Pro: 2, Team: 5})
	form := f.freeForm(t)
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	f.subscriptions.Upsert(form.Owner, "sub_1", model.PlanPro, model.StatusActive, periodEnd)

	for i := 0; i < 2; i++ {
		if _, err := f.enforcer.RecordSubmission(form.ID, "", "", nil); err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}

	_, err := f.enforcer.RecordSubmission(form.ID, "", "", nil)
	if !apperr.HasCode(err, apperr.CodePlanQuotaExceeded) {
		t.Fatalf("err = %v, want PLAN_QUOTA_EXCEEDED", err)
	}
}

func TestUpgradeLiftsCeilingMidMonth(t *testing.T) {
	f := setup(t, plan.Limits{Free: 1, Pro: 5, Team: 10})
	form := f.freeForm(t)

	if _, err := f.enforcer.RecordSubmission(form.ID, "", "", nil); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if _, err := f.enforcer.RecordSubmission(form.ID, "", "", nil); !apperr.HasCode(err, apperr.CodeFreeQuotaExceeded) {
		t.Fatalf("err = %v, want FREE_QUOTA_EXCEEDED before upgrade", err)
	}

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	f.subscriptions.Upsert(form.Owner, "sub_1", model.PlanPro, model.StatusActive, periodEnd)

	// Existing submissions keep counting; the ceiling changes immediately.
	if _, err := f.enforcer.RecordSubmission(form.ID, "", "", nil); err != nil {
		t.Fatalf("after upgrade: %v", err)
	}
	u, err := f.enforcer.Usage(form.ID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.Plan != model.PlanPro || u.Used != 2 || u.Limit != 5 {
		t.Errorf("usage = %+v, want pro 2/5", u)
	}
}

func TestAssertWithinQuota(t *testing.T) {
	f := setup(t, plan.Limits{Free: 1, Pro: 5, Team: 10})
	form := f.freeForm(t)

	if err := f.enforcer.AssertWithinQuota(form.ID); err != nil {
		t.Fatalf("empty month: %v", err)
	}

	if _, err := f.enforcer.RecordSubmission(form.ID, "", "", nil); err != nil {
		t.Fatalf("submission: %v", err)
	}
	err := f.enforcer.AssertWithinQuota(form.ID)
	if !apperr.HasCode(err, apperr.CodeFreeQuotaExceeded) {
		t.Fatalf("err = %v, want FREE_QUOTA_EXCEEDED", err)
	}
}

func TestQuotaResetsNextMonth(t *testing.T) {
	f := setup(t, plan.Limits{Free: 1, Pro: 5, Team: 10})
	form := f.freeForm(t)

	if _, err := f.enforcer.RecordSubmission(form.ID, "", "", nil); err != nil {
		t.Fatalf("submission: %v", err)
	}
	if err := f.enforcer.AssertWithinQuota(form.ID); err == nil {
		t.Fatal("expected quota exhaustion")
	}

	// Advance the enforcer's clock into the next month; last month's
	// submissions fall outside the counting window.
	f.enforcer.now = func() time.Time {
		return MonthStart(time.Now()).AddDate(0, 1, 1)
	}
	if err := f.enforcer.AssertWithinQuota(form.ID); err != nil {
		t.Fatalf("next month: %v", err)
	}
}

func TestQuotaMissingForm(t *testing.T) {
	f := setup(t, plan.DefaultLimits())

	err := f.enforcer.AssertWithinQuota(9999)
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}
