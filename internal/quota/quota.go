// Package quota enforces the monthly submission ceiling per form. The
// counting window is the current calendar month in UTC and resets implicitly
// when the month rolls over.
package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/plan"
	"github.com/formsmith/formsmith/internal/store"
)

type Enforcer struct {
	plans       *plan.Resolver
	submissions *store.SubmissionStore
	limits      plan.Limits

	now func() time.Time
}

func NewEnforcer(plans *plan.Resolver, submissions *store.SubmissionStore, limits plan.Limits) *Enforcer {
	return &Enforcer{
		plans:       plans,
		submissions: submissions,
		limits:      limits,
		now:         time.Now,
	}
}

// MonthStart returns the UTC start of the month containing t.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Usage describes where a form stands against its ceiling.
type Usage struct {
	Plan  model.Plan `json:"plan"`
	Used  int        `json:"used"`
	Limit int        `json:"limit"`
}

// Usage reports the form's current plan, month-to-date count, and ceiling.
func (e *Enforcer) Usage(formID int64) (*Usage, error) {
	p, err := e.plans.EffectivePlan(formID)
	if err != nil {
		return nil, err
	}
	used, err := e.submissions.CountSince(formID, MonthStart(e.now()))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("count submissions: %w", err))
	}
	return &Usage{Plan: p, Used: used, Limit: e.limits.For(p)}, nil
}

// AssertWithinQuota is the read-only gate: it fails once the month's count
// has reached the ceiling. It is advisory only; RecordSubmission holds the
// authoritative check.
func (e *Enforcer) AssertWithinQuota(formID int64) error {
	u, err := e.Usage(formID)
	if err != nil {
		return err
	}
	if u.Used >= u.Limit {
		return apperr.New(overCapCode(u.Plan))
	}
	return nil
}

// RecordSubmission admits the submission only if the month's count is still
// below the ceiling, atomically with the insert itself. Two racing callers
// at limit-1 cannot both land.
func (e *Enforcer) RecordSubmission(formID int64, ip, userAgent string, answers []store.AnswerInput) (*model.Submission, error) {
	p, err := e.plans.EffectivePlan(formID)
	if err != nil {
		return nil, err
	}
	sub, err := e.submissions.InsertWithinCap(formID, MonthStart(e.now()), e.limits.For(p), ip, userAgent, answers)
	if errors.Is(err, store.ErrOverCap) {
		return nil, apperr.New(overCapCode(p))
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("record submission: %w", err))
	}
	return sub, nil
}

// overCapCode distinguishes "upgrade to lift this" from "already on a paid
// ceiling" so clients can route the caller accordingly.
func overCapCode(p model.Plan) apperr.Code {
	if p == model.PlanFree {
		return apperr.CodeFreeQuotaExceeded
	}
	return apperr.CodePlanQuotaExceeded
}
