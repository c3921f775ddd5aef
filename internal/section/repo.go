package section

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

func (r *Repo) Upsert(ctx context.Context, s models.Section) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO sections (journal_id, external_key, name, sequence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(journal_id, external_key) DO UPDATE SET
		  name = excluded.name,
		  sequence = excluded.sequence
		RETURNING id
	`, s.JournalID, s.ExternalKey, s.Name, s.Sequence).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert section %s: %w", s.ExternalKey, err)
	}
	return id, nil
}

func (r *Repo) GetByKey(ctx context.Context, journalID int64, key string) (*models.Section, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, journal_id, external_key, name, sequence
		FROM sections
		WHERE journal_id = ? AND external_key = ?
	`, journalID, key)

	s, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get section: %w", err)
	}
	return s, nil
}

// GetByName returns the first section with the given title, whatever its external key.
func (r *Repo) GetByName(ctx context.Context, journalID int64, name string) (*models.Section, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, journal_id, external_key, name, sequence
		FROM sections
		WHERE journal_id = ? AND name = ?
		ORDER BY id ASC
		LIMIT 1
	`, journalID, name)

	s, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get section by name: %w", err)
	}
	return s, nil
}

func (r *Repo) CountByJournal(ctx context.Context, journalID int64) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections WHERE journal_id = ?`, journalID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count sections: %w", err)
	}
	return total, nil
}

// ListByJournal returns sections ordered by sequence. A limit <= 0 returns all of them.
func (r *Repo) ListByJournal(ctx context.Context, journalID int64, limit, offset int) ([]models.Section, error) {
	query := `
		SELECT id, journal_id, external_key, name, sequence
		FROM sections
		WHERE journal_id = ?
		ORDER BY sequence ASC, id ASC`
	args := []any{journalID}
	if limit > 0 {
		limit, offset = database.Page(limit, offset)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []models.Section
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section row: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func scan(s database.Scanner) (*models.Section, error) {
	var sec models.Section
	if err := s.Scan(&sec.ID, &sec.JournalID, &sec.ExternalKey, &sec.Name, &sec.Sequence); err != nil {
		return nil, err
	}
	sec.SourceRecordKey = models.SourceRecordKey("Section", sec.ID)
	return &sec, nil
}
