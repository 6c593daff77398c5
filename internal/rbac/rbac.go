// Package rbac decides whether a principal may act on a form or team. Every
// check re-reads ownership and membership from the store, so a role change
// takes effect on the very next call.
package rbac

import (
	"context"
	"fmt"

	"github.com/formsmith/formsmith/internal/apperr"
	"github.com/formsmith/formsmith/internal/auth"
	"github.com/formsmith/formsmith/internal/model"
	"github.com/formsmith/formsmith/internal/store"
)

type Resolver struct {
	forms *store.FormStore
	teams *store.TeamStore
}

func NewResolver(forms *store.FormStore, teams *store.TeamStore) *Resolver {
	return &Resolver{forms: forms, teams: teams}
}

// RequireAuthenticated returns the principal attached to the request context,
// or UNAUTHENTICATED if there is none.
func (r *Resolver) RequireAuthenticated(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return auth.Principal{}, apperr.New(apperr.CodeUnauthenticated)
	}
	return p, nil
}

// RequireFormAccess loads the form and checks the caller may read it: the
// owning user directly, or any member of the owning team. NOT_FOUND is
// reserved for forms that truly do not exist; an existing form the caller
// cannot touch is FORBIDDEN.
func (r *Resolver) RequireFormAccess(ctx context.Context, formID int64) (*model.Form, error) {
	p, err := r.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	form, err := r.forms.GetByID(formID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load form: %w", err))
	}
	if form == nil {
		return nil, apperr.New(apperr.CodeNotFound)
	}

	switch form.Owner.Kind {
	case model.OwnerUser:
		if form.Owner.ID == p.UserID {
			return form, nil
		}
	case model.OwnerTeam:
		member, err := r.teams.GetMember(form.Owner.ID, p.UserID)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("load membership: %w", err))
		}
		if member != nil {
			return form, nil
		}
	}
	return nil, apperr.New(apperr.CodeForbidden)
}

// RequireTeamRole checks the caller holds at least the given role on the
// team. A missing membership and an insufficient role both read as FORBIDDEN.
func (r *Resolver) RequireTeamRole(ctx context.Context, teamID int64, minimum model.TeamRole) error {
	p, err := r.RequireAuthenticated(ctx)
	if err != nil {
		return err
	}

	team, err := r.teams.GetByID(teamID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("load team: %w", err))
	}
	if team == nil {
		return apperr.New(apperr.CodeNotFound)
	}

	member, err := r.teams.GetMember(teamID, p.UserID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("load membership: %w", err))
	}
	if member == nil || member.Role.Rank() < minimum.Rank() {
		return apperr.New(apperr.CodeForbidden)
	}
	return nil
}

// CanEdit is the boolean counterpart used where a gate, not an abort, is
// wanted: true for the direct owner, a team owner or editor, or a platform
// admin. It returns an error only for internal failures, never to express a
// denial.
func (r *Resolver) CanEdit(ctx context.Context, formID int64) (bool, error) {
	p, ok := auth.FromContext(ctx)
	if !ok || p.UserID == 0 {
		return false, nil
	}
	if p.Role == model.RoleAdmin {
		return true, nil
	}

	form, err := r.forms.GetByID(formID)
	if err != nil {
		return false, apperr.Internal(fmt.Errorf("load form: %w", err))
	}
	if form == nil {
		return false, nil
	}

	switch form.Owner.Kind {
	case model.OwnerUser:
		return form.Owner.ID == p.UserID, nil
	case model.OwnerTeam:
		member, err := r.teams.GetMember(form.Owner.ID, p.UserID)
		if err != nil {
			return false, apperr.Internal(fmt.Errorf("load membership: %w", err))
		}
		if member == nil {
			return false, nil
		}
		return member.Role == model.TeamRoleOwner || member.Role == model.TeamRoleEditor, nil
	}
	return false, nil
}
