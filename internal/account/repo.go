package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"journaltransporter/pkg/database"
	"journaltransporter/pkg/models"
)

type Repo struct {
	DB database.DBTX
}

func NewRepo(db database.DBTX) *Repo {
	return &Repo{DB: db}
}

const selectAccount = `
	SELECT id, email, first_name, middle_name, last_name, institution, salutation, biography, signature,
	       password_hash, is_staff, token_version, created_at
	FROM accounts`

// Upsert writes profile fields keyed by email. Credentials and staff flag are left alone.
func (r *Repo) Upsert(ctx context.Context, a models.Account) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO accounts (email, first_name, middle_name, last_name, institution, salutation, biography, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
		  first_name = excluded.first_name,
		  middle_name = excluded.middle_name,
		  last_name = excluded.last_name,
		  institution = excluded.institution,
		  salutation = excluded.salutation,
		  biography = excluded.biography,
		  signature = excluded.signature
		RETURNING id
	`,
		normalizeEmail(a.Email),
		a.FirstName,
		database.NullString(a.MiddleName),
		a.LastName,
		database.NullString(a.Institution),
		database.NullString(a.Salutation),
		database.NullString(a.Biography),
		database.NullString(a.Signature),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert account: %w", err)
	}
	return id, nil
}

// SetStaffCredentials marks the account as staff with the given bcrypt hash and
// invalidates previously issued tokens.
func (r *Repo) SetStaffCredentials(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = ?, is_staff = 1, token_version = token_version + 1
		WHERE id = ?
	`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("set staff credentials: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set staff credentials rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set staff credentials: account not found")
	}
	return nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := r.DB.QueryRowContext(ctx, selectAccount+`
		WHERE email = ?
	`, normalizeEmail(email))
	return scanOne(row, "get by email")
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	row := r.DB.QueryRowContext(ctx, selectAccount+`
		WHERE id = ?
	`, id)
	return scanOne(row, "get by id")
}

func (r *Repo) GetTokenVersion(ctx context.Context, id int64) (int, error) {
	var version int
	err := r.DB.QueryRowContext(ctx, `SELECT token_version FROM accounts WHERE id = ?`, id).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get token version: %w", err)
	}
	return version, nil
}

func (r *Repo) BumpTokenVersion(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE accounts
		SET token_version = token_version + 1
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump token version rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bump token version: account not found")
	}
	return nil
}

// SetInterests replaces the account's interests, creating unknown interest names.
func (r *Repo) SetInterests(ctx context.Context, accountID int64, names []string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM account_interests WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("clear interests: %w", err)
	}
	for _, name := range names {
		var interestID int64
		err := r.DB.QueryRowContext(ctx, `
			INSERT INTO interests (name) VALUES (?)
			ON CONFLICT(name) DO UPDATE SET name = interests.name
			RETURNING id
		`, name).Scan(&interestID)
		if err != nil {
			return fmt.Errorf("upsert interest %s: %w", name, err)
		}
		if _, err := r.DB.ExecContext(ctx, `
			INSERT INTO account_interests (account_id, interest_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, accountID, interestID); err != nil {
			return fmt.Errorf("link interest %s: %w", name, err)
		}
	}
	return nil
}

func (r *Repo) Interests(ctx context.Context, accountID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT i.name
		FROM interests i
		JOIN account_interests ai ON ai.interest_id = i.id
		WHERE ai.account_id = ?
		ORDER BY i.name ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	limit, offset = database.Page(limit, offset)
	rows, err := r.DB.QueryContext(ctx, selectAccount+`
		ORDER BY email ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]models.Account, 0, limit)
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func scanOne(row *sql.Row, op string) (*models.Account, error) {
	a, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func scan(s database.Scanner) (*models.Account, error) {
	var (
		a                                  models.Account
		middle, institution, salutation    sql.NullString
		biography, signature, passwordHash sql.NullString
	)
	if err := s.Scan(
		&a.ID, &a.Email, &a.FirstName, &middle, &a.LastName, &institution, &salutation, &biography, &signature,
		&passwordHash, &a.IsStaff, &a.TokenVersion, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.MiddleName = middle.String
	a.Institution = institution.String
	a.Salutation = salutation.String
	a.Biography = biography.String
	a.Signature = signature.String
	a.PasswordHash = passwordHash.String
	a.SourceRecordKey = models.SourceRecordKey("Account", a.ID)
	return &a, nil
}
