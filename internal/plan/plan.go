// Package plan resolves which subscription plan governs a form. Plans are
// never cached on the form row: the effective plan is derived from the
// owner's subscription at the moment of the check.
package plan

import (
	"fmt"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/store"
)

// Limits holds the monthly submission ceiling per plan. The zero value is
// unusable; start from DefaultLimits and override from configuration.
type Limits struct {
	Free int
	Pro  int
	Team int
}

func DefaultLimits() Limits {
	return Limits{
		Free: 50,
		Pro:  10000,
		Team: 100000,
	}
}

// For returns the monthly ceiling for the given plan. Unknown plan values
// fall back to the free ceiling rather than granting unlimited submissions.
func (l Limits) For(p model.Plan) int {
	switch p {
	case model.PlanPro:
		return l.Pro
	case model.PlanTeam:
		return l.Team
	}
	return l.Free
}

type Resolver struct {
	forms         *store.FormStore
	subscriptions *store.SubscriptionStore
}

func NewResolver(forms *store.FormStore, subscriptions *store.SubscriptionStore) *Resolver {
	return &Resolver{forms: forms, subscriptions: subscriptions}
}

// EffectivePlan returns the plan governing the form: the owner's subscription
// plan while that subscription is ACTIVE, free otherwise. Past-due and
// canceled subscriptions downgrade immediately.
func (r *Resolver) EffectivePlan(formID int64) (model.Plan, error) {
	form, err := r.forms.GetByID(formID)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("load form: %w", err))
	}
	if form == nil {
		return "", apperr.New(apperr.CodeNotFound)
	}
	return r.EffectivePlanForOwner(form.Owner)
}

// EffectivePlanForOwner resolves the plan for an owner directly, without a
// form lookup. An owner with no subscription row is on the free plan.
func (r *Resolver) EffectivePlanForOwner(owner model.OwnerRef) (model.Plan, error) {
	sub, err := r.subscriptions.GetByOwner(owner)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("load subscription: %w", err))
	}
	if sub == nil || sub.Status != model.StatusActive {
		return model.PlanFree, nil
	}
	return sub.Plan, nil
}
