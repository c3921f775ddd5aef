package models

import "time"

type Issue struct {
	ID              int64      `json:"id"`
	SourceRecordKey string     `json:"source_record_key"`
	JournalID       int64      `json:"journal_id"`
	ExternalKey     string     `json:"external_key"`
	IssueTypeID     int64      `json:"issue_type_id"`
	IssueType       string     `json:"issue_type"`
	Title           string     `json:"title,omitempty"`
	Volume          int        `json:"volume"`
	Number          string     `json:"number"`
	DatePublished   *time.Time `json:"date_published,omitempty"`
	Description     string     `json:"description,omitempty"`
	Sequence        int        `json:"sequence"`
}
