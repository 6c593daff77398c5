package model

import "time"

// OwnerKind tags who owns a form: a single user or a team, never both.
type OwnerKind string

const (
	OwnerUser OwnerKind = "user"
	OwnerTeam OwnerKind = "team"
)

// OwnerRef identifies the owning entity of a form or subscription.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

func UserOwner(userID int64) OwnerRef {
	return OwnerRef{Kind: OwnerUser, ID: userID}
}

func TeamOwner(teamID int64) OwnerRef {
	return OwnerRef{Kind: OwnerTeam, ID: teamID}
}

type Form struct {
	ID             int64     `json:"id"`
	PublicID       string    `json:"public_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	IsPublished    bool      `json:"is_published"`
	NotifyOnSubmit bool      `json:"notify_on_submit"`
	Owner          OwnerRef  `json:"owner"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
)

type FormField struct {
	ID        int64     `json:"id"`
	FormID    int64     `json:"form_id"`
	Type      FieldType `json:"type"`
	Label     string    `json:"label"`
	Required  bool      `json:"required"`
	Options   string    `json:"options,omitempty"`
	SortOrder int       `json:"sort_order"`
}
