package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journaltransporter/internal/issue"
	"journaltransporter/internal/journal"
	"journaltransporter/internal/testutil"
)

func newTestImporter(t *testing.T, listeners ...Listener) *Importer {
	t.Helper()
	return NewImporter(testutil.NewDB(t), nil, listeners...)
}

func TestImportSingle_CreatesJournal(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	res, err := im.ImportSingle(ctx, &JournalPayload{Path: "example", Title: "Example Journal"})
	require.NoError(t, err)

	assert.True(t, res.Created)
	require.NotNil(t, res.Journal)
	assert.Equal(t, "example", res.Journal.Code)
	assert.Equal(t, "Example Journal", res.Journal.Name)
	assert.Equal(t, "https://www.example.com/example", res.Journal.Domain)
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "journals"))
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "issue_types"))
}

func TestImportSingle_ReimportUpdatesInPlace(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	first, err := im.ImportSingle(ctx, &JournalPayload{Path: "example", Title: "Example Journal"})
	require.NoError(t, err)

	second, err := im.ImportSingle(ctx, &JournalPayload{Path: "example", Title: "Renamed Journal", OnlineISSN: "1234-5678"})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Journal.ID, second.Journal.ID)
	assert.Equal(t, "Renamed Journal", second.Journal.Name)
	assert.Equal(t, "1234-5678", second.Journal.ISSN)
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "journals"))
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "issue_types"))
}

func TestImportSingle_KeepsExistingDomain(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	_, err := im.ImportSingle(ctx, &JournalPayload{Path: "j", Title: "J", Domain: "https://journal.example.org"})
	require.NoError(t, err)

	res, err := im.ImportSingle(ctx, &JournalPayload{Path: "j", Title: "J again"})
	require.NoError(t, err)
	assert.Equal(t, "https://journal.example.org", res.Journal.Domain)
}

func TestImportSingle_ValidationPerformsNoWrite(t *testing.T) {
	cases := []struct {
		name    string
		payload *JournalPayload
		fields  []string
	}{
		{"missing path", &JournalPayload{Title: "T"}, []string{"path"}},
		{"missing title", &JournalPayload{Path: "p"}, []string{"title"}},
		{"missing both", &JournalPayload{}, []string{"path", "title"}},
		{"path not url safe", &JournalPayload{Path: "has space", Title: "T"}, []string{"path"}},
		{"path too long", &JournalPayload{Path: strings.Repeat("a", 201), Title: "T"}, []string{"path"}},
		{
			"nested article without title",
			&JournalPayload{Path: "p", Title: "T", Issues: []IssuePayload{{Articles: []ArticlePayload{{}}}}},
			[]string{"issues[0].articles[0].title"},
		},
		{
			"bad stage and date",
			&JournalPayload{Path: "p", Title: "T", Issues: []IssuePayload{{
				DatePublished: "yesterday",
				Articles:      []ArticlePayload{{Title: "A", Stage: "limbo"}},
			}}},
			[]string{"issues[0].date_published", "issues[0].articles[0].stage"},
		},
		{"blank title", &JournalPayload{Path: "p", Title: "   "}, []string{"title"}},
		{
			"blank nested names",
			&JournalPayload{Path: "p", Title: "T", Sections: []SectionPayload{{Title: "\t"}}, Issues: []IssuePayload{{
				Articles: []ArticlePayload{{Title: " ", Authors: []AuthorPayload{{LastName: "  "}}}},
			}}},
			[]string{"sections[0].title", "issues[0].articles[0].title", "issues[0].articles[0].authors[0].last_name"},
		},
		{
			"duplicate author sequence",
			&JournalPayload{Path: "p", Title: "T", Issues: []IssuePayload{{
				Articles: []ArticlePayload{{Title: "A", Authors: []AuthorPayload{
					{LastName: "First", Sequence: intPtr(1)},
					{LastName: "Second", Sequence: intPtr(1)},
				}}},
			}}},
			[]string{"issues[0].articles[0].authors[1].sequence"},
		},
		{
			"author missing last name",
			&JournalPayload{Path: "p", Title: "T", Issues: []IssuePayload{{
				Articles: []ArticlePayload{{Title: "A", Authors: []AuthorPayload{{FirstName: "Ada"}}}},
			}}},
			[]string{"issues[0].articles[0].authors[0].last_name"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			im := newTestImporter(t)

			_, err := im.ImportSingle(context.Background(), tc.payload)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %T: %v", err, err)
			for _, f := range tc.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Equal(t, 0, testutil.CountRows(t, im.DB, "journals"))
		})
	}
}

func TestImportSingle_NilPayload(t *testing.T) {
	im := newTestImporter(t)

	_, err := im.ImportSingle(context.Background(), nil)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func nestedPayload() *JournalPayload {
	vol := 3
	return &JournalPayload{
		Path:     "nested",
		Title:    "Nested Journal",
		Sections: []SectionPayload{{SourceRecordKey: "Section:1", Title: "Articles"}},
		Issues: []IssuePayload{
			{
				Volume: &vol,
				Number: "2",
				Title:  "Spring",
				Articles: []ArticlePayload{
					{
						SourceRecordKey: "Article:10",
						Title:           "On Transport",
						Section:         "Articles",
						Stage:           "review",
						DateSubmitted:   "2023-01-01",
						Authors: []AuthorPayload{
							{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
							{FirstName: "Alan", LastName: "Turing"},
						},
					},
					{Title: "Untitled Musings", Section: "Reviews"},
				},
			},
			{IssueType: "special", DatePublished: "2022-06-01T10:00:00Z"},
		},
	}
}

func TestImportSingle_Nested(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	res, err := im.ImportSingle(ctx, nestedPayload())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Issues)
	assert.Equal(t, 2, res.Articles)
	assert.Equal(t, 2, res.Authors)
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "sections"), "Reviews section created on demand")
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "issue_types"))

	issues, err := issue.NewRepo(im.DB).ListByJournal(ctx, res.Journal.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, 3, issues[0].Volume)
	assert.Equal(t, "2", issues[0].Number)
	assert.Equal(t, 0, issues[0].Sequence)
	assert.Equal(t, "issue", issues[0].IssueType)
	assert.NotNil(t, issues[0].DatePublished, "defaults to now")

	assert.Equal(t, 1, issues[1].Volume)
	assert.Equal(t, "1", issues[1].Number)
	assert.Equal(t, 1, issues[1].Sequence)
	assert.Equal(t, "special", issues[1].IssueType)
	require.NotNil(t, issues[1].DatePublished)
	assert.True(t, issues[1].DatePublished.Equal(time.Date(2022, 6, 1, 10, 0, 0, 0, time.UTC)))

	var stage string
	require.NoError(t, im.DB.QueryRow(`SELECT stage FROM articles WHERE external_key = 'Article:10'`).Scan(&stage))
	assert.Equal(t, "Peer Review", stage)
	require.NoError(t, im.DB.QueryRow(`SELECT stage FROM articles WHERE external_key = 'article:issue:3:2:Untitled Musings'`).Scan(&stage))
	assert.Equal(t, "Published", stage)
}

func TestImportSingle_NestedReimportDoesNotDuplicate(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	_, err := im.ImportSingle(ctx, nestedPayload())
	require.NoError(t, err)

	again := nestedPayload()
	again.Issues[0].Articles[0].Title = "On Transport, Revised"
	res, err := im.ImportSingle(ctx, again)
	require.NoError(t, err)
	assert.False(t, res.Created)

	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "journals"))
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "issues"))
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "articles"))
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "authors"))
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "sections"))

	var title string
	require.NoError(t, im.DB.QueryRow(`SELECT title FROM articles WHERE external_key = 'Article:10'`).Scan(&title))
	assert.Equal(t, "On Transport, Revised", title)
}

func TestImportSingle_PublishesEvents(t *testing.T) {
	var got []ImportEvent
	im := newTestImporter(t, ListenerFunc(func(ev ImportEvent) { got = append(got, ev) }))
	ctx := context.Background()

	_, err := im.ImportSingle(ctx, &JournalPayload{Path: "ev", Title: "Events"})
	require.NoError(t, err)
	_, err = im.ImportSingle(ctx, &JournalPayload{Path: "ev"})
	require.Error(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, EventJournalImported, got[0].Type)
	assert.Equal(t, "ev", got[0].Key)
	assert.True(t, got[0].Created)
	assert.Empty(t, got[0].Err)
	assert.NotEmpty(t, got[1].Err)
}

func TestImportSingle_StoreRejectsWrite(t *testing.T) {
	t.Run("generic failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM journals`).
			WithArgs("example").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`INSERT INTO journals`).
			WillReturnError(errors.New("disk I/O error"))
		mock.ExpectRollback()

		im := NewImporter(db, nil)
		_, err = im.ImportSingle(context.Background(), &JournalPayload{Path: "example", Title: "Example Journal"})

		var perr *PersistenceError
		require.True(t, errors.As(err, &perr), "got %T: %v", err, err)
		assert.Equal(t, "journal", perr.Op)
		assert.False(t, perr.Constraint())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("constraint violation is reported as such", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM journals`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`INSERT INTO journals`).
			WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint})
		mock.ExpectRollback()

		im := NewImporter(db, nil)
		_, err = im.ImportSingle(context.Background(), &JournalPayload{Path: "example", Title: "Example Journal"})

		var perr *PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.True(t, perr.Constraint())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNestedImports(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	res, err := im.ImportSingle(ctx, &JournalPayload{Path: "n", Title: "N"})
	require.NoError(t, err)
	jid := res.Journal.ID

	t.Run("unknown journal", func(t *testing.T) {
		_, err := im.ImportIssue(ctx, jid+100, &IssuePayload{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("section", func(t *testing.T) {
		s, err := im.ImportSection(ctx, jid, &SectionPayload{Title: "Editorials"})
		require.NoError(t, err)
		assert.Equal(t, "section:Editorials", s.ExternalKey)

		again, err := im.ImportSection(ctx, jid, &SectionPayload{Title: "Editorials"})
		require.NoError(t, err)
		assert.Equal(t, s.ID, again.ID)
	})

	is, err := im.ImportIssue(ctx, jid, &IssuePayload{Title: "First"})
	require.NoError(t, err)
	assert.Equal(t, "issue:1:1", is.ExternalKey)

	t.Run("article under unknown issue", func(t *testing.T) {
		_, err := im.ImportArticle(ctx, jid, is.ID+100, &ArticlePayload{Title: "A"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	a, err := im.ImportArticle(ctx, jid, is.ID, &ArticlePayload{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, is.ID, a.IssueID)

	first, err := im.ImportAuthor(ctx, jid, a.ID, &AuthorPayload{LastName: "One"})
	require.NoError(t, err)
	second, err := im.ImportAuthor(ctx, jid, a.ID, &AuthorPayload{LastName: "Two"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Sequence)
	assert.Equal(t, 1, second.Sequence)

	_, err = im.ImportAuthor(ctx, jid, a.ID, &AuthorPayload{})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestImportAccount(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	acc, created, err := im.ImportAccount(ctx, &AccountPayload{Email: "Ada@Example.com", FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ada@example.com", acc.Email)

	again, created, err := im.ImportAccount(ctx, &AccountPayload{Email: "ada@example.com", FirstName: "Ada", LastName: "King", Affiliation: "Analytical Society"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acc.ID, again.ID)
	assert.Equal(t, "King", again.LastName)
	assert.Equal(t, "Analytical Society", again.Institution)
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "accounts"))

	_, _, err = im.ImportAccount(ctx, &AccountPayload{Email: "not-an-email", FirstName: "x", LastName: "y"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")
}

func TestExportRoundTrip(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	_, err := im.ImportSingle(ctx, nestedPayload())
	require.NoError(t, err)

	out, err := im.Export(ctx, "nested")
	require.NoError(t, err)
	assert.Equal(t, "Nested Journal", out.Title)
	require.Len(t, out.Issues, 2)
	require.Len(t, out.Issues[0].Articles, 2)
	assert.Equal(t, "review", out.Issues[0].Articles[0].Stage)
	assert.Equal(t, "Articles", out.Issues[0].Articles[0].Section)
	assert.Len(t, out.Issues[0].Articles[0].Authors, 2)

	_, err = im.ImportSingle(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "issues"))
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "articles"))
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "sections"))

	_, err = im.Export(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	j, err := journal.NewRepo(im.DB).GetByCode(ctx, "nested")
	require.NoError(t, err)
	assert.Equal(t, "Journal:"+itoa64(j.ID), out.SourceRecordKey)
}

func TestImportSingle_SameTitleArticlesStayDistinct(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	one, two := 1, 2
	payload := func() *JournalPayload {
		return &JournalPayload{Path: "ed", Title: "Editorials", Issues: []IssuePayload{
			{Volume: &one, Number: "1", Articles: []ArticlePayload{{Title: "Editorial"}, {Title: "Editorial"}}},
			{Volume: &one, Number: "2", Articles: []ArticlePayload{{Title: "Editorial"}}},
			{Volume: &two, Number: "1", Articles: []ArticlePayload{{Title: "Editorial", SourceRecordKey: "Article:7"}}},
		}}
	}

	res, err := im.ImportSingle(ctx, payload())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Articles)
	assert.Equal(t, 4, testutil.CountRows(t, im.DB, "articles"))

	issues, err := issue.NewRepo(im.DB).ListByJournal(ctx, res.Journal.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, issues, 3)
	for i, want := range []int{2, 1, 1} {
		var n int
		require.NoError(t, im.DB.QueryRow(`SELECT COUNT(*) FROM articles WHERE issue_id = ?`, issues[i].ID).Scan(&n))
		assert.Equal(t, want, n, "articles in %s", issues[i].ExternalKey)
	}

	_, err = im.ImportSingle(ctx, payload())
	require.NoError(t, err)
	assert.Equal(t, 4, testutil.CountRows(t, im.DB, "articles"), "reimport updates in place")
}

func TestArticleKey(t *testing.T) {
	p := &ArticlePayload{Title: "Editorial"}
	assert.Equal(t, "article:issue:1:1:Editorial", ArticleKey("issue:1:1", p, 1))
	assert.Equal(t, "article:issue:1:1:Editorial#2", ArticleKey("issue:1:1", p, 2))

	p.SourceRecordKey = "Article:3"
	assert.Equal(t, "Article:3", ArticleKey("issue:1:1", p, 2))
}

func TestImportSingle_AuthorSequences(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	res, err := im.ImportSingle(ctx, &JournalPayload{Path: "au", Title: "Authors", Issues: []IssuePayload{{
		Articles: []ArticlePayload{{Title: "Paper", Authors: []AuthorPayload{
			{LastName: "Implicit"},
			{LastName: "First", Sequence: intPtr(1)},
			{LastName: "Second"},
		}}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Authors)
	assert.Equal(t, 3, testutil.CountRows(t, im.DB, "authors"))

	rows, err := im.DB.Query(`SELECT last_name, sequence FROM authors ORDER BY sequence`)
	require.NoError(t, err)
	defer rows.Close()
	got := map[string]int{}
	for rows.Next() {
		var name string
		var seq int
		require.NoError(t, rows.Scan(&name, &seq))
		got[name] = seq
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[string]int{"First": 1, "Implicit": 2, "Second": 3}, got)
}

func TestAuthorSequences(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, authorSequences(make([]AuthorPayload, 3)))
	assert.Equal(t, []int{5, 6, 0},
		authorSequences([]AuthorPayload{{Sequence: intPtr(5)}, {}, {Sequence: intPtr(0)}}))
}

func TestImportSingle_CopyrightNotice(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()
	notice := `<p>I grant the <em>Journal</em> the non-exclusive right &ldquo;to publish&rdquo;.</p>`

	res, err := im.ImportSingle(ctx, &JournalPayload{Path: "testj", Title: "Test Journal", CopyrightNotice: notice})
	require.NoError(t, err)
	assert.Equal(t, notice, res.Journal.CopyrightNotice)

	value, ok, err := journal.NewRepo(im.DB).GetSetting(ctx, res.Journal.ID, journal.SettingGroupGeneral, journal.SettingCopyrightNotice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, notice, value)

	res, err = im.ImportSingle(ctx, &JournalPayload{Path: "testj", Title: "Test Journal"})
	require.NoError(t, err)
	assert.Equal(t, notice, res.Journal.CopyrightNotice, "omitted notice keeps the stored one")
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, "journal_settings"))

	out, err := im.Export(ctx, "testj")
	require.NoError(t, err)
	assert.Equal(t, notice, out.CopyrightNotice)
}

func TestImportAccount_Interests(t *testing.T) {
	im := newTestImporter(t)
	ctx := context.Background()

	acc, _, err := im.ImportAccount(ctx, &AccountPayload{
		Email: "validuser@example.com", FirstName: "Imma", LastName: "Perfect", Interests: "Cats, Dogs, cats,",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats", "Dogs"}, acc.Interests)
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, "interests"))

	acc, _, err = im.ImportAccount(ctx, &AccountPayload{Email: "validuser@example.com", FirstName: "Imma", LastName: "Perfect"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats", "Dogs"}, acc.Interests, "omitted interests are kept")

	other, _, err := im.ImportAccount(ctx, &AccountPayload{
		Email: "other@example.com", FirstName: "O", LastName: "Ther", Interests: "Dogs, Birds",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Birds", "Dogs"}, other.Interests)
	assert.Equal(t, 3, testutil.CountRows(t, im.DB, "interests"))
	assert.Equal(t, 4, testutil.CountRows(t, im.DB, "account_interests"))

	_, _, err = im.ImportAccount(ctx, &AccountPayload{Email: "x@example.com", FirstName: " ", LastName: "y"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "first_name")
}
