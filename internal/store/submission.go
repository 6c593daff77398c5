package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formsmith/formsmith/internal/model"
)

// ErrOverCap is returned by InsertWithinCap when the conditional insert finds
// the monthly ceiling already reached. Callers translate it into the plan-
// specific quota error.
var ErrOverCap = errors.New("submission cap reached")

type SubmissionStore struct {
	db *sql.DB
}

func NewSubmissionStore(db *sql.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func scanSubmission(scanner interface{ Scan(...any) error }) (*model.Submission, error) {
	var sub model.Submission
	err := scanner.Scan(&sub.ID, &sub.FormID, &sub.IPAddress, &sub.UserAgent, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const submissionCols = `id, form_id, ip_address, user_agent, created_at`

// AnswerInput pairs a field with the submitted value.
type AnswerInput struct {
	FieldID int64
	Value   string
}

// InsertWithinCap records a submission and its answers only while the form
// has fewer than cap submissions since the given instant. The count and the
// insert happen in one conditional INSERT statement, so SQLite's write lock
// makes the pair atomic across concurrent requests and across processes
// sharing the database file: this is a hard cap, not a best-effort one.
func (s *SubmissionStore) InsertWithinCap(formID int64, since time.Time, cap int, ip, userAgent string, answers []AnswerInput) (*model.Submission, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO submissions (form_id, ip_address, user_agent, created_at)
		 SELECT ?, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM submissions WHERE form_id = ? AND created_at >= ?) < ?`,
		formID, ip, userAgent, time.Now().UTC(), formID, since.UTC(), cap,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrOverCap
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, a := range answers {
		if _, err := tx.Exec(
			`INSERT INTO submission_answers (submission_id, field_id, value) VALUES (?, ?, ?)`,
			id, a.FieldID, a.Value,
		); err != nil {
			return nil, fmt.Errorf("insert answer: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+submissionCols+` FROM submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

// CountSince counts a form's submissions created at or after the given instant.
func (s *SubmissionStore) CountSince(formID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM submissions WHERE form_id = ? AND created_at >= ?`,
		formID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions since: %w", err)
	}
	return n, nil
}

func (s *SubmissionStore) CountByForm(formID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE form_id = ?`, formID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// Detail is a submission with its answers attached.
type Detail struct {
	model.Submission
	Answers []model.SubmissionAnswer `json:"answers"`
}

// ListByForm returns a form's submissions, newest first, with answers.
func (s *SubmissionStore) ListByForm(formID int64) ([]Detail, error) {
	rows, err := s.db.Query(
		`SELECT `+submissionCols+` FROM submissions WHERE form_id = ? ORDER BY created_at DESC, id DESC`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var details []Detail
	index := make(map[int64]int)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		index[sub.ID] = len(details)
		details = append(details, Detail{Submission: *sub})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, nil
	}

	answerRows, err := s.db.Query(
		`SELECT a.id, a.submission_id, a.field_id, a.value
		 FROM submission_answers a
		 JOIN submissions sub ON sub.id = a.submission_id
		 WHERE sub.form_id = ?
		 ORDER BY a.id ASC`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var a model.SubmissionAnswer
		if err := answerRows.Scan(&a.ID, &a.SubmissionID, &a.FieldID, &a.Value); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[a.SubmissionID]; ok {
			details[i].Answers = append(details[i].Answers, a)
		}
	}
	return details, answerRows.Err()
}

// FieldFillCounts returns, per field, how many submissions answered it with a
// non-empty value. Used for fill-rate analytics.
func (s *SubmissionStore) FieldFillCounts(formID int64) (map[int64]int, error) {
	rows, err := s.db.Query(
		`SELECT a.field_id, COUNT(*)
		 FROM submission_answers a
		 JOIN submissions sub ON sub.id = a.submission_id
		 WHERE sub.form_id = ? AND a.value != ''
		 GROUP BY a.field_id`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("field fill counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var fieldID int64
		var n int
		if err := rows.Scan(&fieldID, &n); err != nil {
			return nil, fmt.Errorf("scan fill count: %w", err)
		}
		counts[fieldID] = n
	}
	return counts, rows.Err()
}
