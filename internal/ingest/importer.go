package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"journaltransporter/internal/account"
	"journaltransporter/internal/article"
	"journaltransporter/internal/issue"
	"journaltransporter/internal/journal"
	"journaltransporter/internal/section"
	"journaltransporter/pkg/models"
)

const (
	EventJournalImported = "journal.imported"
	EventAccountImported = "account.imported"
)

// ImportEvent is published to listeners after an import commits.
type ImportEvent struct {
	Type     string        `json:"type"`
	Key      string        `json:"key"` // journal path or account email
	Created  bool          `json:"created"`
	Issues   int           `json:"issues,omitempty"`
	Sections int           `json:"sections,omitempty"`
	Articles int           `json:"articles,omitempty"`
	Authors  int           `json:"authors,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

type Listener interface {
	OnImport(ev ImportEvent)
}

type ListenerFunc func(ev ImportEvent)

func (f ListenerFunc) OnImport(ev ImportEvent) { f(ev) }

// Result summarises one journal import.
type Result struct {
	Journal  *models.Journal `json:"journal"`
	Created  bool            `json:"created"`
	Sections int             `json:"sections"`
	Issues   int             `json:"issues"`
	Articles int             `json:"articles"`
	Authors  int             `json:"authors"`
}

type Importer struct {
	DB        *sql.DB
	Logger    *zap.Logger
	Listeners []Listener
	Now       func() time.Time
}

func NewImporter(db *sql.DB, logger *zap.Logger, listeners ...Listener) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{DB: db, Logger: logger, Listeners: listeners, Now: time.Now}
}

// ImportSingle validates the payload and upserts the journal keyed by its path,
// together with any nested sections, issues, articles and authors, in one transaction.
func (im *Importer) ImportSingle(ctx context.Context, p *JournalPayload) (*Result, error) {
	start := im.Now()
	if p == nil {
		return nil, malformed("empty payload")
	}
	if err := Validate(p); err != nil {
		im.publishFailure(EventJournalImported, p.Path, start, err)
		return nil, err
	}

	res, err := im.importJournal(ctx, p)
	if err != nil {
		im.Logger.Error("journal import failed", zap.String("path", p.Path), zap.Error(err))
		im.publishFailure(EventJournalImported, p.Path, start, err)
		return nil, err
	}

	im.Logger.Info("journal imported",
		zap.String("path", p.Path),
		zap.Bool("created", res.Created),
		zap.Int("issues", res.Issues),
		zap.Int("articles", res.Articles),
	)
	im.publish(ImportEvent{
		Type:     EventJournalImported,
		Key:      p.Path,
		Created:  res.Created,
		Issues:   res.Issues,
		Sections: res.Sections,
		Articles: res.Articles,
		Authors:  res.Authors,
		Duration: im.Now().Sub(start),
		At:       im.Now(),
	})
	return res, nil
}

func (im *Importer) importJournal(ctx context.Context, p *JournalPayload) (*Result, error) {
	tx, err := im.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence("begin import", err)
	}
	defer tx.Rollback()

	journals := journal.NewRepo(tx)
	existing, err := journals.GetByCode(ctx, p.Path)
	if err != nil {
		return nil, persistence("lookup journal", err)
	}

	j := models.Journal{
		Code:        p.Path,
		Name:        p.Title,
		Description: p.Description,
		ISSN:        p.OnlineISSN,
		PrintISSN:   p.PrintISSN,
		Domain:      p.Domain,
	}
	if j.Domain == "" {
		if existing != nil {
			j.Domain = existing.Domain
		} else {
			j.Domain = DefaultDomain(p.Path)
		}
	}

	journalID, err := journals.Upsert(ctx, j)
	if err != nil {
		return nil, persistence("journal", err)
	}
	if _, err := journals.EnsureIssueType(ctx, journalID, journal.DefaultIssueType, "Issue"); err != nil {
		return nil, persistence("issue type", err)
	}
	if p.CopyrightNotice != "" {
		err := journals.SetSetting(ctx, journalID, journal.SettingGroupGeneral, journal.SettingCopyrightNotice, p.CopyrightNotice)
		if err != nil {
			return nil, persistence("copyright notice", err)
		}
	}

	res := &Result{Created: existing == nil}
	w := &writer{
		journalID: journalID,
		journals:  journals,
		sections:  section.NewRepo(tx),
		issues:    issue.NewRepo(tx),
		articles:  article.NewRepo(tx),
		now:       im.Now,
		res:       res,
	}

	for i := range p.Sections {
		if _, err := w.section(ctx, &p.Sections[i]); err != nil {
			return nil, err
		}
	}
	for i := range p.Issues {
		if err := w.issue(ctx, &p.Issues[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, persistence("commit import", err)
	}

	// re-read outside the transaction so timestamps reflect the committed row
	res.Journal, err = journal.NewRepo(im.DB).GetByID(ctx, journalID)
	if err != nil {
		return nil, persistence("reload journal", err)
	}
	return res, nil
}

// writer carries the per-import repos bound to one transaction.
type writer struct {
	journalID int64
	journals  *journal.Repo
	sections  *section.Repo
	issues    *issue.Repo
	articles  *article.Repo
	now       func() time.Time
	res       *Result
}

func (w *writer) section(ctx context.Context, p *SectionPayload) (int64, error) {
	seq := 0
	if p.Sequence != nil {
		seq = *p.Sequence
	}
	id, err := w.sections.Upsert(ctx, models.Section{
		JournalID:   w.journalID,
		ExternalKey: SectionKey(p),
		Name:        p.Title,
		Sequence:    seq,
	})
	if err != nil {
		return 0, persistence("section", err)
	}
	w.res.Sections++
	return id, nil
}

// sectionByTitle resolves an article's section reference, creating the section when unknown.
func (w *writer) sectionByTitle(ctx context.Context, title string) (int64, error) {
	s, err := w.sections.GetByName(ctx, w.journalID, title)
	if err != nil {
		return 0, persistence("lookup section", err)
	}
	if s != nil {
		return s.ID, nil
	}
	return w.section(ctx, &SectionPayload{Title: title})
}

func (w *writer) issue(ctx context.Context, p *IssuePayload) error {
	key := IssueKey(p)
	existing, err := w.issues.GetByKey(ctx, w.journalID, key)
	if err != nil {
		return persistence("lookup issue", err)
	}

	typeCode := p.IssueType
	if typeCode == "" {
		typeCode = journal.DefaultIssueType
	}
	typeID, err := w.journals.EnsureIssueType(ctx, w.journalID, typeCode, typeCode)
	if err != nil {
		return persistence("issue type", err)
	}

	is := models.Issue{
		JournalID:     w.journalID,
		ExternalKey:   key,
		IssueTypeID:   typeID,
		Title:         p.Title,
		Volume:        intOr(p.Volume, 1),
		Number:        p.Number,
		DatePublished: parseOptionalTime(p.DatePublished),
		Description:   p.Description,
	}
	if is.Number == "" {
		is.Number = "1"
	}

	switch {
	case p.Sequence != nil:
		is.Sequence = *p.Sequence
	case existing != nil:
		is.Sequence = existing.Sequence
	default:
		n, err := w.issues.CountByJournal(ctx, w.journalID)
		if err != nil {
			return persistence("count issues", err)
		}
		is.Sequence = n
	}

	if is.DatePublished == nil {
		if existing != nil && existing.DatePublished != nil {
			is.DatePublished = existing.DatePublished
		} else {
			now := w.now().UTC()
			is.DatePublished = &now
		}
	}

	issueID, err := w.issues.Upsert(ctx, is)
	if err != nil {
		return persistence("issue", err)
	}
	w.res.Issues++

	titles := make(map[string]int, len(p.Articles))
	for i := range p.Articles {
		ap := &p.Articles[i]
		if ap.SourceRecordKey == "" {
			titles[ap.Title]++
		}
		if err := w.article(ctx, issueID, ArticleKey(key, ap, titles[ap.Title]), ap); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) article(ctx context.Context, issueID int64, key string, p *ArticlePayload) error {
	a := models.Article{
		JournalID:     w.journalID,
		IssueID:       issueID,
		ExternalKey:   key,
		Title:         p.Title,
		Abstract:      p.Abstract,
		Language:      p.Language,
		Stage:         StageName(p.Stage),
		DateStarted:   parseOptionalTime(p.DateStarted),
		DateAccepted:  parseOptionalTime(p.DateAccepted),
		DateDeclined:  parseOptionalTime(p.DateDeclined),
		DateSubmitted: parseOptionalTime(p.DateSubmitted),
		DatePublished: parseOptionalTime(p.DatePublished),
		DateUpdated:   parseOptionalTime(p.DateUpdated),
	}
	if p.Section != "" {
		sectionID, err := w.sectionByTitle(ctx, p.Section)
		if err != nil {
			return err
		}
		a.SectionID = &sectionID
	}

	articleID, err := w.articles.Upsert(ctx, a)
	if err != nil {
		return persistence("article", err)
	}
	w.res.Articles++

	seqs := authorSequences(p.Authors)
	for i := range p.Authors {
		ap := &p.Authors[i]
		if _, err := w.articles.UpsertAuthor(ctx, models.Author{
			ArticleID:   articleID,
			Sequence:    seqs[i],
			FirstName:   ap.FirstName,
			MiddleName:  ap.MiddleName,
			LastName:    ap.LastName,
			Email:       ap.Email,
			Affiliation: ap.Affiliation,
		}); err != nil {
			return persistence("author", err)
		}
		w.res.Authors++
	}
	return nil
}

// ImportAccount upserts a user account keyed by lower-cased email.
func (im *Importer) ImportAccount(ctx context.Context, p *AccountPayload) (*models.Account, bool, error) {
	start := im.Now()
	if p == nil {
		return nil, false, malformed("empty payload")
	}
	if err := Validate(p); err != nil {
		im.publishFailure(EventAccountImported, p.Email, start, err)
		return nil, false, err
	}

	acc, created, err := im.importAccount(ctx, p)
	if err != nil {
		im.publishFailure(EventAccountImported, p.Email, start, err)
		return nil, false, err
	}

	im.Logger.Info("account imported", zap.Int64("id", acc.ID), zap.Bool("created", created))
	im.publish(ImportEvent{
		Type:     EventAccountImported,
		Key:      acc.Email,
		Created:  created,
		Duration: im.Now().Sub(start),
		At:       im.Now(),
	})
	return acc, created, nil
}

func (im *Importer) importAccount(ctx context.Context, p *AccountPayload) (*models.Account, bool, error) {
	tx, err := im.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, persistence("begin import", err)
	}
	defer tx.Rollback()

	repo := account.NewRepo(tx)
	existing, err := repo.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, false, persistence("lookup account", err)
	}

	id, err := repo.Upsert(ctx, models.Account{
		Email:       p.Email,
		FirstName:   p.FirstName,
		MiddleName:  p.MiddleName,
		LastName:    p.LastName,
		Institution: p.Affiliation,
		Salutation:  p.Salutation,
		Biography:   p.Biography,
		Signature:   p.Signature,
	})
	if err != nil {
		return nil, false, persistence("account", err)
	}
	// an omitted list leaves existing interests alone
	if p.Interests != "" {
		if err := repo.SetInterests(ctx, id, p.InterestNames()); err != nil {
			return nil, false, persistence("interests", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, persistence("commit import", err)
	}

	repo = account.NewRepo(im.DB)
	acc, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, persistence("reload account", err)
	}
	if acc == nil {
		return nil, false, ErrNotFound
	}
	if acc.Interests, err = repo.Interests(ctx, id); err != nil {
		return nil, false, persistence("reload interests", err)
	}
	return acc, existing == nil, nil
}

func (im *Importer) publish(ev ImportEvent) {
	for _, l := range im.Listeners {
		l.OnImport(ev)
	}
}

func (im *Importer) publishFailure(typ, key string, start time.Time, err error) {
	im.publish(ImportEvent{
		Type:     typ,
		Key:      key,
		Duration: im.Now().Sub(start),
		Err:      err.Error(),
		At:       im.Now(),
	})
}

// DefaultDomain is used for journals imported without an explicit domain.
func DefaultDomain(path string) string {
	return "https://www.example.com/" + path
}

// IssueKey identifies an issue within its journal across imports.
func IssueKey(p *IssuePayload) string {
	if p.SourceRecordKey != "" {
		return p.SourceRecordKey
	}
	number := p.Number
	if number == "" {
		number = "1"
	}
	return fmt.Sprintf("issue:%d:%s", intOr(p.Volume, 1), number)
}

func SectionKey(p *SectionPayload) string {
	if p.SourceRecordKey != "" {
		return p.SourceRecordKey
	}
	return "section:" + p.Title
}

// ArticleKey identifies an article within its journal. Without a source record key the
// article is keyed by its issue and title; n counts earlier articles of the same title in
// that issue, so repeated titles stay distinct.
func ArticleKey(issueKey string, p *ArticlePayload, n int) string {
	if p.SourceRecordKey != "" {
		return p.SourceRecordKey
	}
	key := "article:" + issueKey + ":" + p.Title
	if n > 1 {
		key += "#" + strconv.Itoa(n)
	}
	return key
}

// authorSequences keeps explicit sequences and places the rest, in payload order,
// after the highest explicit one.
func authorSequences(authors []AuthorPayload) []int {
	next := 0
	for _, a := range authors {
		if a.Sequence != nil && *a.Sequence >= next {
			next = *a.Sequence + 1
		}
	}
	out := make([]int, len(authors))
	for i, a := range authors {
		if a.Sequence != nil {
			out[i] = *a.Sequence
			continue
		}
		out[i] = next
		next++
	}
	return out
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
