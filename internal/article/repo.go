package article

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

type ListQuery struct {
	JournalID int64
	IssueID   int64 // 0 means every issue
	Limit     int   // <= 0 means no paging
	Offset    int
}

const selectArticle = `
	SELECT id, journal_id, issue_id, section_id, external_key, title, abstract, language, stage,
	       date_started, date_accepted, date_declined, date_submitted, date_published, date_updated
	FROM articles`

func (r *Repo) Upsert(ctx context.Context, a models.Article) (int64, error) {
	var sectionID sql.NullInt64
	if a.SectionID != nil {
		sectionID = sql.NullInt64{Int64: *a.SectionID, Valid: true}
	}

	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO articles (journal_id, issue_id, section_id, external_key, title, abstract, language, stage,
		                      date_started, date_accepted, date_declined, date_submitted, date_published, date_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(journal_id, external_key) DO UPDATE SET
		  issue_id = excluded.issue_id,
		  section_id = excluded.section_id,
		  title = excluded.title,
		  abstract = excluded.abstract,
		  language = excluded.language,
		  stage = excluded.stage,
		  date_started = excluded.date_started,
		  date_accepted = excluded.date_accepted,
		  date_declined = excluded.date_declined,
		  date_submitted = excluded.date_submitted,
		  date_published = excluded.date_published,
		  date_updated = excluded.date_updated
		RETURNING id
	`,
		a.JournalID,
		a.IssueID,
		sectionID,
		a.ExternalKey,
		a.Title,
		database.NullString(a.Abstract),
		database.NullString(a.Language),
		a.Stage,
		database.NullTime(a.DateStarted),
		database.NullTime(a.DateAccepted),
		database.NullTime(a.DateDeclined),
		database.NullTime(a.DateSubmitted),
		database.NullTime(a.DatePublished),
		database.NullTime(a.DateUpdated),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert article %s: %w", a.ExternalKey, err)
	}
	return id, nil
}

func (r *Repo) GetByID(ctx context.Context, journalID, id int64) (*models.Article, error) {
	row := r.DB.QueryRowContext(ctx, selectArticle+`
		WHERE journal_id = ? AND id = ?
	`, journalID, id)
	return scanOne(row)
}

func (r *Repo) GetByKey(ctx context.Context, journalID int64, key string) (*models.Article, error) {
	row := r.DB.QueryRowContext(ctx, selectArticle+`
		WHERE journal_id = ? AND external_key = ?
	`, journalID, key)
	return scanOne(row)
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	where, args := q.where()
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Article, error) {
	where, args := q.where()
	query := selectArticle + where + ` ORDER BY id ASC`
	if q.Limit > 0 {
		limit, offset := database.Page(q.Limit, q.Offset)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (q ListQuery) where() (string, []any) {
	if q.IssueID != 0 {
		return ` WHERE journal_id = ? AND issue_id = ?`, []any{q.JournalID, q.IssueID}
	}
	return ` WHERE journal_id = ?`, []any{q.JournalID}
}

// UpsertAuthor writes the author at its sequence slot on the article.
func (r *Repo) UpsertAuthor(ctx context.Context, a models.Author) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO authors (article_id, sequence, first_name, middle_name, last_name, email, affiliation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(article_id, sequence) DO UPDATE SET
		  first_name = excluded.first_name,
		  middle_name = excluded.middle_name,
		  last_name = excluded.last_name,
		  email = excluded.email,
		  affiliation = excluded.affiliation
		RETURNING id
	`,
		a.ArticleID,
		a.Sequence,
		database.NullString(a.FirstName),
		database.NullString(a.MiddleName),
		a.LastName,
		database.NullString(a.Email),
		database.NullString(a.Affiliation),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert author %d/%d: %w", a.ArticleID, a.Sequence, err)
	}
	return id, nil
}

func (r *Repo) CountAuthors(ctx context.Context, articleID int64) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM authors WHERE article_id = ?`, articleID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count authors: %w", err)
	}
	return total, nil
}

func (r *Repo) ListAuthors(ctx context.Context, articleID int64) ([]models.Author, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, article_id, sequence, first_name, middle_name, last_name, email, affiliation
		FROM authors
		WHERE article_id = ?
		ORDER BY sequence ASC
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	var out []models.Author
	for rows.Next() {
		var (
			a                                 models.Author
			first, middle, email, affiliation sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ArticleID, &a.Sequence, &first, &middle, &a.LastName, &email, &affiliation); err != nil {
			return nil, fmt.Errorf("scan author row: %w", err)
		}
		a.FirstName = first.String
		a.MiddleName = middle.String
		a.Email = email.String
		a.Affiliation = affiliation.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func scanOne(row *sql.Row) (*models.Article, error) {
	a, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

func scan(s database.Scanner) (*models.Article, error) {
	var (
		a                                                     models.Article
		sectionID                                             sql.NullInt64
		abstract, language                                    sql.NullString
		started, accepted, declined, submitted, published, up sql.NullTime
	)
	if err := s.Scan(
		&a.ID, &a.JournalID, &a.IssueID, &sectionID, &a.ExternalKey, &a.Title, &abstract, &language, &a.Stage,
		&started, &accepted, &declined, &submitted, &published, &up,
	); err != nil {
		return nil, err
	}
	if sectionID.Valid {
		id := sectionID.Int64
		a.SectionID = &id
	}
	a.Abstract = abstract.String
	a.Language = language.String
	a.DateStarted = database.TimePtr(started)
	a.DateAccepted = database.TimePtr(accepted)
	a.DateDeclined = database.TimePtr(declined)
	a.DateSubmitted = database.TimePtr(submitted)
	a.DatePublished = database.TimePtr(published)
	a.DateUpdated = database.TimePtr(up)
	a.SourceRecordKey = models.SourceRecordKey("Article", a.ID)
	return &a, nil
}
