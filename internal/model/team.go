package model

import "time"

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleEditor TeamRole = "editor"
	TeamRoleViewer TeamRole = "viewer"
)

// Rank orders team roles for minimum-role checks: owner > editor > viewer.
// Unknown roles rank zero and satisfy nothing.
func (r TeamRole) Rank() int {
	switch r {
	case TeamRoleOwner:
		return 3
	case TeamRoleEditor:
		return 2
	case TeamRoleViewer:
		return 1
	}
	return 0
}

type Team struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	OwnerUserID      int64     `json:"owner_user_id"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type TeamMember struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	UserID    int64     `json:"user_id"`
	Role      TeamRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
