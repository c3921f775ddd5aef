package ingest

import (
	"context"
	"fmt"
	"time"

	"journaltransporter/internal/article"
	"journaltransporter/internal/issue"
	"journaltransporter/internal/journal"
	"journaltransporter/internal/section"
	"journaltransporter/pkg/models"
)

// Export reads a journal back into the payload shape accepted by ImportSingle.
func (im *Importer) Export(ctx context.Context, path string) (*JournalPayload, error) {
	j, err := journal.NewRepo(im.DB).GetByCode(ctx, path)
	if err != nil {
		return nil, persistence("lookup journal", err)
	}
	if j == nil {
		return nil, fmt.Errorf("journal %q: %w", path, ErrNotFound)
	}
	return im.ExportJournal(ctx, j)
}

func (im *Importer) ExportJournal(ctx context.Context, j *models.Journal) (*JournalPayload, error) {
	out := &JournalPayload{
		SourceRecordKey: j.SourceRecordKey,
		Path:            j.Code,
		Title:           j.Name,
		Description:     j.Description,
		OnlineISSN:      j.ISSN,
		PrintISSN:       j.PrintISSN,
		Domain:          j.Domain,
		CopyrightNotice: j.CopyrightNotice,
	}

	sections, err := section.NewRepo(im.DB).ListByJournal(ctx, j.ID, 0, 0)
	if err != nil {
		return nil, persistence("export sections", err)
	}
	sectionNames := make(map[int64]string, len(sections))
	for _, s := range sections {
		sectionNames[s.ID] = s.Name
		out.Sections = append(out.Sections, SectionPayload{
			SourceRecordKey: s.ExternalKey,
			Title:           s.Name,
			Sequence:        intPtr(s.Sequence),
		})
	}

	issues, err := issue.NewRepo(im.DB).ListByJournal(ctx, j.ID, 0, 0)
	if err != nil {
		return nil, persistence("export issues", err)
	}

	articles := article.NewRepo(im.DB)
	for _, is := range issues {
		ip := IssuePayload{
			SourceRecordKey: is.ExternalKey,
			Title:           is.Title,
			Volume:          intPtr(is.Volume),
			Number:          is.Number,
			DatePublished:   formatTime(is.DatePublished),
			Description:     is.Description,
			Sequence:        intPtr(is.Sequence),
			IssueType:       is.IssueType,
		}

		list, err := articles.List(ctx, article.ListQuery{JournalID: j.ID, IssueID: is.ID})
		if err != nil {
			return nil, persistence("export articles", err)
		}
		for _, a := range list {
			ap := ArticlePayload{
				SourceRecordKey: a.ExternalKey,
				Title:           a.Title,
				Abstract:        a.Abstract,
				Language:        a.Language,
				Stage:           StageCode(a.Stage),
				DateStarted:     formatTime(a.DateStarted),
				DateAccepted:    formatTime(a.DateAccepted),
				DateDeclined:    formatTime(a.DateDeclined),
				DateSubmitted:   formatTime(a.DateSubmitted),
				DatePublished:   formatTime(a.DatePublished),
				DateUpdated:     formatTime(a.DateUpdated),
			}
			if a.SectionID != nil {
				ap.Section = sectionNames[*a.SectionID]
			}

			authors, err := articles.ListAuthors(ctx, a.ID)
			if err != nil {
				return nil, persistence("export authors", err)
			}
			for _, au := range authors {
				ap.Authors = append(ap.Authors, AuthorPayload{
					FirstName:   au.FirstName,
					MiddleName:  au.MiddleName,
					LastName:    au.LastName,
					Email:       au.Email,
					Affiliation: au.Affiliation,
					Sequence:    intPtr(au.Sequence),
				})
			}
			ip.Articles = append(ip.Articles, ap)
		}
		out.Issues = append(out.Issues, ip)
	}
	return out, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func intPtr(n int) *int { return &n }
