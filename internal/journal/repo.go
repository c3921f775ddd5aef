package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"journaltransporter/pkg/database"
	"journaltransporter/pkg/models"
)

const DefaultIssueType = "issue"

// Setting names stored per journal.
const (
	SettingGroupGeneral    = "general"
	SettingCopyrightNotice = "copyright_notice"
)

type Repo struct {
	DB database.DBTX
}

func NewRepo(db database.DBTX) *Repo {
	return &Repo{DB: db}
}

const journalColumns = `id, code, name, description, issn, print_issn, domain, created_at, updated_at,
	(SELECT value FROM journal_settings s
	 WHERE s.journal_id = journals.id AND s.setting_group = 'general' AND s.name = 'copyright_notice')`

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Journal, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+journalColumns+`
		FROM journals
		WHERE id = ?
	`, id)
	return scanOne(row, "get journal by id")
}

func (r *Repo) GetByCode(ctx context.Context, code string) (*models.Journal, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+journalColumns+`
		FROM journals
		WHERE code = ?
	`, code)
	return scanOne(row, "get journal by code")
}

// Upsert writes the journal keyed by code and returns its id.
func (r *Repo) Upsert(ctx context.Context, j models.Journal) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO journals (code, name, description, issn, print_issn, domain)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
		  name = excluded.name,
		  description = excluded.description,
		  issn = excluded.issn,
		  print_issn = excluded.print_issn,
		  domain = excluded.domain,
		  updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`,
		j.Code,
		j.Name,
		database.NullString(j.Description),
		database.NullString(j.ISSN),
		database.NullString(j.PrintISSN),
		j.Domain,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert journal %s: %w", j.Code, err)
	}
	return id, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM journals`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count journals: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, limit, offset int) ([]models.Journal, error) {
	limit, offset = database.Page(limit, offset)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+journalColumns+`
		FROM journals
		ORDER BY code ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list journals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Journal, 0, limit)
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// SetSetting stores a journal setting, replacing any previous value.
func (r *Repo) SetSetting(ctx context.Context, journalID int64, group, name, value string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO journal_settings (journal_id, setting_group, name, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(journal_id, setting_group, name) DO UPDATE SET
		  value = excluded.value
	`, journalID, group, name, value)
	if err != nil {
		return fmt.Errorf("set setting %s.%s: %w", group, name, err)
	}
	return nil
}

// GetSetting returns the stored value and whether it exists.
func (r *Repo) GetSetting(ctx context.Context, journalID int64, group, name string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `
		SELECT value FROM journal_settings
		WHERE journal_id = ? AND setting_group = ? AND name = ?
	`, journalID, group, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s.%s: %w", group, name, err)
	}
	return value, true, nil
}

// EnsureIssueType returns the id of the journal's issue type, creating it if needed.
func (r *Repo) EnsureIssueType(ctx context.Context, journalID int64, code, prettyName string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO issue_types (journal_id, code, pretty_name)
		VALUES (?, ?, ?)
		ON CONFLICT(journal_id, code) DO UPDATE SET
		  pretty_name = issue_types.pretty_name
		RETURNING id
	`, journalID, code, prettyName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure issue type %s: %w", code, err)
	}
	return id, nil
}

func scanOne(row *sql.Row, op string) (*models.Journal, error) {
	j, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

func scan(s database.Scanner) (*models.Journal, error) {
	var (
		j           models.Journal
		description sql.NullString
		issn        sql.NullString
		printISSN   sql.NullString
		copyright   sql.NullString
	)
	if err := s.Scan(
		&j.ID, &j.Code, &j.Name, &description, &issn, &printISSN, &j.Domain, &j.CreatedAt, &j.UpdatedAt, &copyright,
	); err != nil {
		return nil, err
	}
	j.Description = description.String
	j.ISSN = issn.String
	j.PrintISSN = printISSN.String
	j.CopyrightNotice = copyright.String
	j.SourceRecordKey = models.SourceRecordKey("Journal", j.ID)
	return &j, nil
}
