package model

import "time"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
	PlanTeam Plan = "team"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the billing record for one owner (user or team). At most
// one row exists per owner; it is written only by the billing reconciler.
type Subscription struct {
	ID                   int64              `json:"id"`
	Owner                OwnerRef           `json:"owner"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id,omitempty"`
	Plan                 Plan               `json:"plan"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}
