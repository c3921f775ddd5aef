package models

import "time"

type Article struct {
	ID              int64      `json:"id"`
	SourceRecordKey string     `json:"source_record_key"`
	JournalID       int64      `json:"journal_id"`
	IssueID         int64      `json:"issue_id"`
	SectionID       *int64     `json:"section_id,omitempty"`
	ExternalKey     string     `json:"external_key"`
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract,omitempty"`
	Language        string     `json:"language,omitempty"`
	Stage           string     `json:"stage"`
	DateStarted     *time.Time `json:"date_started,omitempty"`
	DateAccepted    *time.Time `json:"date_accepted,omitempty"`
	DateDeclined    *time.Time `json:"date_declined,omitempty"`
	DateSubmitted   *time.Time `json:"date_submitted,omitempty"`
	DatePublished   *time.Time `json:"date_published,omitempty"`
	DateUpdated     *time.Time `json:"date_updated,omitempty"`
}

// Author is a snapshot of an article author at import time.
type Author struct {
	ID          int64  `json:"id"`
	ArticleID   int64  `json:"article_id"`
	Sequence    int    `json:"sequence"`
	FirstName   string `json:"first_name,omitempty"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
}
