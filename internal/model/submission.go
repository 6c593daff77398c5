package model

import "time"

type Submission struct {
	ID        int64     `json:"id"`
	FormID    int64     `json:"form_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SubmissionAnswer struct {
	ID           int64  `json:"id"`
	SubmissionID int64  `json:"submission_id"`
	FieldID      int64  `json:"field_id"`
	Value        string `json:"value"`
}
