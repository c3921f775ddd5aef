package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JournalPayload is the transporter's description of a journal and everything under it.
type JournalPayload struct {
	SourceRecordKey string           `json:"source_record_key,omitempty" yaml:"source_record_key,omitempty"`
	Path            string           `json:"path" yaml:"path" validate:"required,max=200,urlslug"`
	Title           string           `json:"title" yaml:"title" validate:"required,notblank,max=300"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	OnlineISSN      string           `json:"online_issn,omitempty" yaml:"online_issn,omitempty" validate:"omitempty,max=9"`
	PrintISSN       string           `json:"print_issn,omitempty" yaml:"print_issn,omitempty" validate:"omitempty,max=9"`
	Domain          string           `json:"domain,omitempty" yaml:"domain,omitempty" validate:"omitempty,url"`
	CopyrightNotice string           `json:"copyright_notice,omitempty" yaml:"copyright_notice,omitempty"`
	Sections        []SectionPayload `json:"sections,omitempty" yaml:"sections,omitempty" validate:"dive"`
	Issues          []IssuePayload   `json:"issues,omitempty" yaml:"issues,omitempty" validate:"dive"`
}

type SectionPayload struct {
	SourceRecordKey string `json:"source_record_key,omitempty" yaml:"source_record_key,omitempty"`
	Title           string `json:"title" yaml:"title" validate:"required,notblank,max=200"`
	Sequence        *int   `json:"sequence,omitempty" yaml:"sequence,omitempty" validate:"omitempty,gte=0"`
}

type IssuePayload struct {
	SourceRecordKey string           `json:"source_record_key,omitempty" yaml:"source_record_key,omitempty"`
	Title           string           `json:"title,omitempty" yaml:"title,omitempty" validate:"max=300"`
	Volume          *int             `json:"volume,omitempty" yaml:"volume,omitempty" validate:"omitempty,gte=0"`
	Number          string           `json:"number,omitempty" yaml:"number,omitempty" validate:"max=50"`
	DatePublished   string           `json:"date_published,omitempty" yaml:"date_published,omitempty" validate:"omitempty,datestamp"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	Sequence        *int             `json:"sequence,omitempty" yaml:"sequence,omitempty" validate:"omitempty,gte=0"`
	IssueType       string           `json:"issue_type,omitempty" yaml:"issue_type,omitempty" validate:"omitempty,urlslug"`
	Articles        []ArticlePayload `json:"articles,omitempty" yaml:"articles,omitempty" validate:"dive"`
}

type ArticlePayload struct {
	SourceRecordKey string          `json:"source_record_key,omitempty" yaml:"source_record_key,omitempty"`
	Title           string          `json:"title" yaml:"title" validate:"required,notblank,max=999"`
	Abstract        string          `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Language        string          `json:"language,omitempty" yaml:"language,omitempty" validate:"max=200"`
	Section         string          `json:"section,omitempty" yaml:"section,omitempty" validate:"max=200"`
	Stage           string          `json:"stage,omitempty" yaml:"stage,omitempty" validate:"omitempty,stage"`
	DateStarted     string          `json:"date_started,omitempty" yaml:"date_started,omitempty" validate:"omitempty,datestamp"`
	DateAccepted    string          `json:"date_accepted,omitempty" yaml:"date_accepted,omitempty" validate:"omitempty,datestamp"`
	DateDeclined    string          `json:"date_declined,omitempty" yaml:"date_declined,omitempty" validate:"omitempty,datestamp"`
	DateSubmitted   string          `json:"date_submitted,omitempty" yaml:"date_submitted,omitempty" validate:"omitempty,datestamp"`
	DatePublished   string          `json:"date_published,omitempty" yaml:"date_published,omitempty" validate:"omitempty,datestamp"`
	DateUpdated     string          `json:"date_updated,omitempty" yaml:"date_updated,omitempty" validate:"omitempty,datestamp"`
	Authors         []AuthorPayload `json:"authors,omitempty" yaml:"authors,omitempty" validate:"dive"`
}

type AuthorPayload struct {
	FirstName   string `json:"first_name,omitempty" yaml:"first_name,omitempty" validate:"max=300"`
	MiddleName  string `json:"middle_name,omitempty" yaml:"middle_name,omitempty" validate:"max=300"`
	LastName    string `json:"last_name" yaml:"last_name" validate:"required,notblank,max=300"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Affiliation string `json:"affiliation,omitempty" yaml:"affiliation,omitempty" validate:"max=1000"`
	Sequence    *int   `json:"sequence,omitempty" yaml:"sequence,omitempty" validate:"omitempty,gte=0"`
}

// AccountPayload mirrors a user record pushed by the transporter. Accounts are matched by email.
type AccountPayload struct {
	SourceRecordKey string `json:"source_record_key,omitempty" yaml:"source_record_key,omitempty"`
	Email           string `json:"email" yaml:"email" validate:"required,email"`
	FirstName       string `json:"first_name" yaml:"first_name" validate:"required,notblank,max=300"`
	LastName        string `json:"last_name" yaml:"last_name" validate:"required,notblank,max=300"`
	MiddleName      string `json:"middle_name,omitempty" yaml:"middle_name,omitempty" validate:"max=300"`
	Affiliation     string `json:"affiliation,omitempty" yaml:"affiliation,omitempty" validate:"max=1000"`
	Salutation      string `json:"salutation,omitempty" yaml:"salutation,omitempty" validate:"max=10"`
	Biography       string `json:"biography,omitempty" yaml:"biography,omitempty"`
	Signature       string `json:"signature,omitempty" yaml:"signature,omitempty"`
	// Interests is a comma separated list, e.g. "Cats, Dogs".
	Interests string `json:"interests,omitempty" yaml:"interests,omitempty"`
}

// InterestNames splits the interests list, dropping blanks and repeats.
func (p *AccountPayload) InterestNames() []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(p.Interests, ",") {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

// Decode parses a single JSON journal object. Malformed input is reported as a *ValidationError.
func Decode(r io.Reader) (*JournalPayload, error) {
	var p JournalPayload
	if err := DecodeJSON(r, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func DecodeAccount(r io.Reader) (*AccountPayload, error) {
	var p AccountPayload
	if err := DecodeJSON(r, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeFile reads a journal payload from disk; .yaml and .yml files are parsed as YAML.
func DecodeFile(path string) (*JournalPayload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var p JournalPayload
		if err := yaml.Unmarshal(b, &p); err != nil {
			return nil, malformed("invalid yaml: " + err.Error())
		}
		return &p, nil
	default:
		return Decode(bytes.NewReader(b))
	}
}

// DecodeJSON decodes one JSON value into v. Malformed input is a *ValidationError;
// failures reading r are returned wrapped.
func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	err := dec.Decode(v)
	if err == nil {
		return trailing(dec)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return malformed("empty payload")
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return malformed("invalid json: " + err.Error())
	default:
		return fmt.Errorf("read payload: %w", err)
	}
}

// trailing rejects anything but whitespace after the decoded value.
func trailing(dec *json.Decoder) error {
	var extra json.RawMessage
	err := dec.Decode(&extra)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), isSyntaxError(err):
		return malformed("invalid json: trailing data after the payload")
	default:
		return fmt.Errorf("read payload: %w", err)
	}
}

func isSyntaxError(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.As(err, &syntaxErr)
}
