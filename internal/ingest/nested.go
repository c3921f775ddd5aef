package ingest

import (
	"context"
	"fmt"

	"journaltransporter/internal/article"
	"journaltransporter/internal/issue"
	"journaltransporter/internal/journal"
	"journaltransporter/internal/section"
	"journaltransporter/pkg/models"
)

// ImportSection upserts one section into an existing journal.
func (im *Importer) ImportSection(ctx context.Context, journalID int64, p *SectionPayload) (*models.Section, error) {
	if err := validateNested(p); err != nil {
		return nil, err
	}

	err := im.withJournal(ctx, journalID, func(w *writer) error {
		_, err := w.section(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reload(section.NewRepo(im.DB).GetByKey(ctx, journalID, SectionKey(p)))
}

// ImportIssue upserts one issue, and any articles nested in it, into an existing journal.
func (im *Importer) ImportIssue(ctx context.Context, journalID int64, p *IssuePayload) (*models.Issue, error) {
	if err := validateNested(p); err != nil {
		return nil, err
	}

	err := im.withJournal(ctx, journalID, func(w *writer) error {
		return w.issue(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return reload(issue.NewRepo(im.DB).GetByKey(ctx, journalID, IssueKey(p)))
}

// ImportArticle upserts one article under an existing issue of the journal.
func (im *Importer) ImportArticle(ctx context.Context, journalID, issueID int64, p *ArticlePayload) (*models.Article, error) {
	if err := validateNested(p); err != nil {
		return nil, err
	}

	var key string
	err := im.withJournal(ctx, journalID, func(w *writer) error {
		is, err := w.issues.GetByID(ctx, journalID, issueID)
		if err != nil {
			return persistence("lookup issue", err)
		}
		if is == nil {
			return fmt.Errorf("issue %d: %w", issueID, ErrNotFound)
		}
		key = ArticleKey(is.ExternalKey, p, 1)
		return w.article(ctx, issueID, key, p)
	})
	if err != nil {
		return nil, err
	}
	return reload(article.NewRepo(im.DB).GetByKey(ctx, journalID, key))
}

// ImportAuthor upserts one author of an existing article. Without a sequence the
// author is appended after the current ones.
func (im *Importer) ImportAuthor(ctx context.Context, journalID, articleID int64, p *AuthorPayload) (*models.Author, error) {
	if err := validateNested(p); err != nil {
		return nil, err
	}

	var out models.Author
	err := im.withJournal(ctx, journalID, func(w *writer) error {
		a, err := w.articles.GetByID(ctx, journalID, articleID)
		if err != nil {
			return persistence("lookup article", err)
		}
		if a == nil {
			return fmt.Errorf("article %d: %w", articleID, ErrNotFound)
		}

		seq := 0
		if p.Sequence != nil {
			seq = *p.Sequence
		} else if seq, err = w.articles.CountAuthors(ctx, articleID); err != nil {
			return persistence("count authors", err)
		}

		out = models.Author{
			ArticleID:   articleID,
			Sequence:    seq,
			FirstName:   p.FirstName,
			MiddleName:  p.MiddleName,
			LastName:    p.LastName,
			Email:       p.Email,
			Affiliation: p.Affiliation,
		}
		out.ID, err = w.articles.UpsertAuthor(ctx, out)
		if err != nil {
			return persistence("author", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// withJournal runs fn in a transaction with repos bound to an existing journal.
func (im *Importer) withJournal(ctx context.Context, journalID int64, fn func(w *writer) error) error {
	tx, err := im.DB.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin import", err)
	}
	defer tx.Rollback()

	journals := journal.NewRepo(tx)
	j, err := journals.GetByID(ctx, journalID)
	if err != nil {
		return persistence("lookup journal", err)
	}
	if j == nil {
		return fmt.Errorf("journal %d: %w", journalID, ErrNotFound)
	}

	w := &writer{
		journalID: journalID,
		journals:  journals,
		sections:  section.NewRepo(tx),
		issues:    issue.NewRepo(tx),
		articles:  article.NewRepo(tx),
		now:       im.Now,
		res:       &Result{},
	}
	if err := fn(w); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistence("commit import", err)
	}
	return nil
}

func validateNested(p any) error {
	if p == nil {
		return malformed("empty payload")
	}
	return Validate(p)
}

func reload[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, persistence("reload", err)
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}
