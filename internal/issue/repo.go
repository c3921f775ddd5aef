package issue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"journaltransporter/pkg/database"
	"journaltransporter/pkg/models"
)

type Repo struct {
	DB database.DBTX
}

func NewRepo(db database.DBTX) *Repo {
	return &Repo{DB: db}
}

const selectIssue = `
	SELECT i.id, i.journal_id, i.external_key, i.issue_type_id, t.code, i.title, i.volume, i.number,
	       i.date_published, i.description, i.sequence
	FROM issues i
	JOIN issue_types t ON t.id = i.issue_type_id`

func (r *Repo) Upsert(ctx context.Context, is models.Issue) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO issues (journal_id, external_key, issue_type_id, title, volume, number, date_published, description, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(journal_id, external_key) DO UPDATE SET
		  issue_type_id = excluded.issue_type_id,
		  title = excluded.title,
		  volume = excluded.volume,
		  number = excluded.number,
		  date_published = excluded.date_published,
		  description = excluded.description,
		  sequence = excluded.sequence
		RETURNING id
	`,
		is.JournalID,
		is.ExternalKey,
		is.IssueTypeID,
		database.NullString(is.Title),
		is.Volume,
		is.Number,
		database.NullTime(is.DatePublished),
		database.NullString(is.Description),
		is.Sequence,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert issue %s: %w", is.ExternalKey, err)
	}
	return id, nil
}

func (r *Repo) GetByID(ctx context.Context, journalID, id int64) (*models.Issue, error) {
	row := r.DB.QueryRowContext(ctx, selectIssue+`
		WHERE i.journal_id = ? AND i.id = ?
	`, journalID, id)
	return scanOne(row)
}

func (r *Repo) GetByKey(ctx context.Context, journalID int64, key string) (*models.Issue, error) {
	row := r.DB.QueryRowContext(ctx, selectIssue+`
		WHERE i.journal_id = ? AND i.external_key = ?
	`, journalID, key)
	return scanOne(row)
}

func (r *Repo) CountByJournal(ctx context.Context, journalID int64) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE journal_id = ?`, journalID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return total, nil
}

// ListByJournal returns issues ordered by sequence. A limit <= 0 returns all of them.
func (r *Repo) ListByJournal(ctx context.Context, journalID int64, limit, offset int) ([]models.Issue, error) {
	query := selectIssue + `
		WHERE i.journal_id = ?
		ORDER BY i.sequence ASC, i.id ASC`
	args := []any{journalID}
	if limit > 0 {
		limit, offset = database.Page(limit, offset)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var out []models.Issue
	for rows.Next() {
		is, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue row: %w", err)
		}
		out = append(out, *is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func scanOne(row *sql.Row) (*models.Issue, error) {
	is, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return is, nil
}

func scan(s database.Scanner) (*models.Issue, error) {
	var (
		is          models.Issue
		title       sql.NullString
		published   sql.NullTime
		description sql.NullString
	)
	if err := s.Scan(
		&is.ID, &is.JournalID, &is.ExternalKey, &is.IssueTypeID, &is.IssueType, &title, &is.Volume,
		&is.Number, &published, &description, &is.Sequence,
	); err != nil {
		return nil, err
	}
	is.Title = title.String
	is.DatePublished = database.TimePtr(published)
	is.Description = description.String
	is.SourceRecordKey = models.SourceRecordKey("Issue", is.ID)
	return &is, nil
}
