package models

import (
	"fmt"
	"time"
)

// Journal is the top-level record pushed by the transporter.
// Code is the stable external identifier (the payload's "path").
type Journal struct {
	ID              int64     `json:"id"`
	SourceRecordKey string    `json:"source_record_key"`
	Code            string    `json:"path"`
	Name            string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	ISSN            string    `json:"online_issn,omitempty"`
	PrintISSN       string    `json:"print_issn,omitempty"`
	Domain          string    `json:"domain"`
	CopyrightNotice string    `json:"copyright_notice,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type IssueType struct {
	ID         int64  `json:"id"`
	JournalID  int64  `json:"journal_id"`
	Code       string `json:"code"`
	PrettyName string `json:"pretty_name"`
}

type Section struct {
	ID              int64  `json:"id"`
	SourceRecordKey string `json:"source_record_key"`
	JournalID       int64  `json:"journal_id"`
	ExternalKey     string `json:"external_key"`
	Name            string `json:"title"`
	Sequence        int    `json:"sequence"`
}

// SourceRecordKey builds the "<Model>:<id>" key handed back to the transporter.
func SourceRecordKey(model string, id int64) string {
	return fmt.Sprintf("%s:%d", model, id)
}
