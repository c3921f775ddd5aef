package models

import "time"

type Account struct {
	ID              int64     `json:"id"`
	SourceRecordKey string    `json:"source_record_key"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	MiddleName      string    `json:"middle_name,omitempty"`
	LastName        string    `json:"last_name"`
	Institution     string    `json:"affiliation,omitempty"`
	Salutation      string    `json:"salutation,omitempty"`
	Biography       string    `json:"biography,omitempty"`
	Signature       string    `json:"signature,omitempty"`
	Interests       []string  `json:"interests,omitempty"`
	IsStaff         bool      `json:"is_staff"`
	PasswordHash    string    `json:"-"`
	TokenVersion    int       `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}
