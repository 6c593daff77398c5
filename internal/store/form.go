package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/formsmith/formsmith/internal/model"
)

type FormStore struct {
	db *sql.DB
}

func NewFormStore(db *sql.DB) *FormStore {
	return &FormStore{db: db}
}

func scanForm(scanner interface{ Scan(...any) error }) (*model.Form, error) {
	var f model.Form
	var isPublished, notify int
	var ownerUser, ownerTeam sql.NullInt64
	err := scanner.Scan(
		&f.ID, &f.PublicID, &f.Title, &f.Description, &isPublished, &notify,
		&ownerUser, &ownerTeam, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.IsPublished = isPublished != 0
	f.NotifyOnSubmit = notify != 0
	switch {
	case ownerUser.Valid:
		f.Owner = model.UserOwner(ownerUser.Int64)
	case ownerTeam.Valid:
		f.Owner = model.TeamOwner(ownerTeam.Int64)
	}
	return &f, nil
}

func scanFormField(scanner interface{ Scan(...any) error }) (*model.FormField, error) {
	var ff model.FormField
	var required int
	err := scanner.Scan(&ff.ID, &ff.FormID, &ff.Type, &ff.Label, &required, &ff.Options, &ff.SortOrder)
	if err != nil {
		return nil, err
	}
	ff.Required = required != 0
	return &ff, nil
}

const formCols = `id, public_id, title, description, is_published, notify_on_submit, owner_user_id, owner_team_id, created_at, updated_at`
const formFieldCols = `id, form_id, type, label, required, options, sort_order`

// ownerIDs splits an OwnerRef into the two nullable owner columns.
func ownerIDs(owner model.OwnerRef) (userID, teamID sql.NullInt64) {
	switch owner.Kind {
	case model.OwnerUser:
		userID = sql.NullInt64{Int64: owner.ID, Valid: true}
	case model.OwnerTeam:
		teamID = sql.NullInt64{Int64: owner.ID, Valid: true}
	}
	return userID, teamID
}

func (s *FormStore) Create(owner model.OwnerRef, title, description string) (*model.Form, error) {
	ownerUser, ownerTeam := ownerIDs(owner)
	publicID := uuid.NewString()
	result, err := s.db.Exec(
		`INSERT INTO forms (public_id, title, description, owner_user_id, owner_team_id) VALUES (?, ?, ?, ?, ?)`,
		publicID, title, description, ownerUser, ownerTeam,
	)
	if err != nil {
		return nil, fmt.Errorf("insert form: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *FormStore) GetByID(id int64) (*model.Form, error) {
	row := s.db.QueryRow(`SELECT `+formCols+` FROM forms WHERE id = ?`, id)
	f, err := scanForm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get form: %w", err)
	}
	return f, nil
}

func (s *FormStore) GetByPublicID(publicID string) (*model.Form, error) {
	row := s.db.QueryRow(`SELECT `+formCols+` FROM forms WHERE public_id = ?`, publicID)
	f, err := scanForm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get form by public id: %w", err)
	}
	return f, nil
}

func (s *FormStore) ListByOwner(owner model.OwnerRef) ([]model.Form, error) {
	ownerUser, ownerTeam := ownerIDs(owner)
	var rows *sql.Rows
	var err error
	if ownerUser.Valid {
		rows, err = s.db.Query(`SELECT `+formCols+` FROM forms WHERE owner_user_id = ? ORDER BY created_at DESC`, ownerUser.Int64)
	} else {
		rows, err = s.db.Query(`SELECT `+formCols+` FROM forms WHERE owner_team_id = ? ORDER BY created_at DESC`, ownerTeam.Int64)
	}
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var forms []model.Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		forms = append(forms, *f)
	}
	return forms, rows.Err()
}

// FormSummary is a form with its lifetime submission count, for dashboards.
type FormSummary struct {
	model.Form
	SubmissionCount int `json:"submission_count"`
}

// ListByOwnerWithCounts returns an owner's forms, newest first, each with its
// total submission count.
func (s *FormStore) ListByOwnerWithCounts(owner model.OwnerRef) ([]FormSummary, error) {
	forms, err := s.ListByOwner(owner)
	if err != nil {
		return nil, err
	}
	summaries := make([]FormSummary, 0, len(forms))
	for _, f := range forms {
		var n int
		if err := s.db.QueryRow(
			`SELECT COUNT(*) FROM submissions WHERE form_id = ?`, f.ID,
		).Scan(&n); err != nil {
			return nil, fmt.Errorf("count submissions for form %d: %w", f.ID, err)
		}
		summaries = append(summaries, FormSummary{Form: f, SubmissionCount: n})
	}
	return summaries, nil
}

// FormUpdate carries the optional fields of a partial update; nil means leave
// the column untouched.
type FormUpdate struct {
	Title          *string
	Description    *string
	IsPublished    *bool
	NotifyOnSubmit *bool
}

func (s *FormStore) Update(id int64, u FormUpdate) (*model.Form, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if u.Title != nil {
		if _, err := tx.Exec(`UPDATE forms SET title = ? WHERE id = ?`, *u.Title, id); err != nil {
			return nil, fmt.Errorf("update title: %w", err)
		}
	}
	if u.Description != nil {
		if _, err := tx.Exec(`UPDATE forms SET description = ? WHERE id = ?`, *u.Description, id); err != nil {
			return nil, fmt.Errorf("update description: %w", err)
		}
	}
	if u.IsPublished != nil {
		v := 0
		if *u.IsPublished {
			v = 1
		}
		if _, err := tx.Exec(`UPDATE forms SET is_published = ? WHERE id = ?`, v, id); err != nil {
			return nil, fmt.Errorf("update is_published: %w", err)
		}
	}
	if u.NotifyOnSubmit != nil {
		v := 0
		if *u.NotifyOnSubmit {
			v = 1
		}
		if _, err := tx.Exec(`UPDATE forms SET notify_on_submit = ? WHERE id = ?`, v, id); err != nil {
			return nil, fmt.Errorf("update notify_on_submit: %w", err)
		}
	}
	if _, err := tx.Exec(`UPDATE forms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("touch updated_at: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *FormStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return nil
}

// FieldInput describes one field when replacing a form's field set.
type FieldInput struct {
	Type     model.FieldType
	Label    string
	Required bool
	Options  string
}

// ReplaceFields swaps the ordered field set of a form in one transaction.
func (s *FormStore) ReplaceFields(formID int64, fields []FieldInput) ([]model.FormField, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM form_fields WHERE form_id = ?`, formID); err != nil {
		return nil, fmt.Errorf("clear fields: %w", err)
	}
	for i, f := range fields {
		required := 0
		if f.Required {
			required = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO form_fields (form_id, type, label, required, options, sort_order) VALUES (?, ?, ?, ?, ?, ?)`,
			formID, f.Type, f.Label, required, f.Options, i,
		); err != nil {
			return nil, fmt.Errorf("insert field %q: %w", f.Label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.ListFields(formID)
}

func (s *FormStore) ListFields(formID int64) ([]model.FormField, error) {
	rows, err := s.db.Query(
		`SELECT `+formFieldCols+` FROM form_fields WHERE form_id = ? ORDER BY sort_order ASC`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var fields []model.FormField
	for rows.Next() {
		f, err := scanFormField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}
