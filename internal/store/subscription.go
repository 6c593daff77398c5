package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/formsmith/formsmith/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var ownerUser, ownerTeam sql.NullInt64
	var stripeSubID sql.NullString
	var periodEnd sql.NullTime
	err := scanner.Scan(
		&sub.ID, &ownerUser, &ownerTeam, &stripeSubID, &sub.Plan, &sub.Status,
		&periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	switch {
	case ownerUser.Valid:
		sub.Owner = model.UserOwner(ownerUser.Int64)
	case ownerTeam.Valid:
		sub.Owner = model.TeamOwner(ownerTeam.Int64)
	}
	if stripeSubID.Valid {
		sub.StripeSubscriptionID = &stripeSubID.String
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.CurrentPeriodEnd = &t
	}
	return &sub, nil
}

const subscriptionCols = `id, owner_user_id, owner_team_id, stripe_subscription_id, plan, status, current_period_end, created_at, updated_at`

func (s *SubscriptionStore) GetByOwner(owner model.OwnerRef) (*model.Subscription, error) {
	ownerUser, ownerTeam := ownerIDs(owner)
	var row *sql.Row
	if ownerUser.Valid {
		row = s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE owner_user_id = ?`, ownerUser.Int64)
	} else {
		row = s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE owner_team_id = ?`, ownerTeam.Int64)
	}
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by owner: %w", err)
	}
	return sub, nil
}

// Upsert creates or updates the owner's subscription row. The update arm is
// guarded: a row whose stored current_period_end is newer than the incoming
// one is left untouched, so out-of-order billing events cannot regress state.
// Replaying an identical event is a no-op either way.
func (s *SubscriptionStore) Upsert(owner model.OwnerRef, stripeSubID string, plan model.Plan, status model.SubscriptionStatus, periodEnd time.Time) error {
	ownerUser, ownerTeam := ownerIDs(owner)

	var conflictTarget string
	if ownerUser.Valid {
		conflictTarget = `(owner_user_id) WHERE owner_user_id IS NOT NULL`
	} else {
		conflictTarget = `(owner_team_id) WHERE owner_team_id IS NOT NULL`
	}

	_, err := s.db.Exec(
		`INSERT INTO subscriptions (owner_user_id, owner_team_id, stripe_subscription_id, plan, status, current_period_end)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT `+conflictTarget+` DO UPDATE SET
		   stripe_subscription_id = excluded.stripe_subscription_id,
		   plan = excluded.plan,
		   status = excluded.status,
		   current_period_end = excluded.current_period_end,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE subscriptions.current_period_end IS NULL
		    OR excluded.current_period_end >= subscriptions.current_period_end`,
		ownerUser, ownerTeam, stripeSubID, plan, status, periodEnd.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Cancel marks the owner's subscription CANCELED with the provider's
// cancellation time. Cancellation is terminal and applies regardless of the
// stored period end. No-op when the owner has no subscription row.
func (s *SubscriptionStore) Cancel(owner model.OwnerRef, canceledAt time.Time) error {
	ownerUser, ownerTeam := ownerIDs(owner)
	var err error
	if ownerUser.Valid {
		_, err = s.db.Exec(
			`UPDATE subscriptions SET status = ?, current_period_end = ?, updated_at = CURRENT_TIMESTAMP WHERE owner_user_id = ?`,
			model.StatusCanceled, canceledAt.UTC(), ownerUser.Int64,
		)
	} else {
		_, err = s.db.Exec(
			`UPDATE subscriptions SET status = ?, current_period_end = ?, updated_at = CURRENT_TIMESTAMP WHERE owner_team_id = ?`,
			model.StatusCanceled, canceledAt.UTC(), ownerTeam.Int64,
		)
	}
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
