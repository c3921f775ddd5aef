package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"journaltransporter/internal/article"
	"journaltransporter/internal/ingest"
)

func (h *Handler) listIssues(c *gin.Context) {
	j, ok := h.journal(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)

	total, err := h.Issues.CountByJournal(c.Request.Context(), j.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.Issues.ListByJournal(c.Request.Context(), j.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, total, items)
}

func (h *Handler) importIssue(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	var p ingest.IssuePayload
	if err := ingest.DecodeJSON(c.Request.Body, &p); err != nil {
		respondError(c, err)
		return
	}

	is, err := h.Importer.ImportIssue(c.Request.Context(), journalID, &p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, is)
}

func (h *Handler) getIssue(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	issueID, ok := idParam(c, "issue_id")
	if !ok {
		return
	}

	is, err := h.Issues.GetByID(c.Request.Context(), journalID, issueID)
	if err != nil {
		respondError(c, err)
		return
	}
	if is == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, is)
}

func (h *Handler) listSections(c *gin.Context) {
	j, ok := h.journal(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)

	total, err := h.Sections.CountByJournal(c.Request.Context(), j.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.Sections.ListByJournal(c.Request.Context(), j.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, total, items)
}

func (h *Handler) importSection(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	var p ingest.SectionPayload
	if err := ingest.DecodeJSON(c.Request.Body, &p); err != nil {
		respondError(c, err)
		return
	}

	s, err := h.Importer.ImportSection(c.Request.Context(), journalID, &p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// listArticles accepts ?issue=<id> to narrow the list to one issue.
func (h *Handler) listArticles(c *gin.Context) {
	j, ok := h.journal(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	q := article.ListQuery{
		JournalID: j.ID,
		IssueID:   int64(parseInt(c.Query("issue"), 0)),
		Limit:     limit,
		Offset:    offset,
	}

	total, err := h.Articles.Count(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.Articles.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, total, items)
}

func (h *Handler) importArticle(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	issueID, ok := idParam(c, "issue_id")
	if !ok {
		return
	}
	var p ingest.ArticlePayload
	if err := ingest.DecodeJSON(c.Request.Body, &p); err != nil {
		respondError(c, err)
		return
	}

	a, err := h.Importer.ImportArticle(c.Request.Context(), journalID, issueID, &p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) getArticle(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	articleID, ok := idParam(c, "article_id")
	if !ok {
		return
	}

	a, err := h.Articles.GetByID(c.Request.Context(), journalID, articleID)
	if err != nil {
		respondError(c, err)
		return
	}
	if a == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) listAuthors(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	articleID, ok := idParam(c, "article_id")
	if !ok {
		return
	}

	a, err := h.Articles.GetByID(c.Request.Context(), journalID, articleID)
	if err != nil {
		respondError(c, err)
		return
	}
	if a == nil {
		notFound(c)
		return
	}

	items, err := h.Articles.ListAuthors(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, len(items), items)
}

func (h *Handler) importAuthor(c *gin.Context) {
	journalID, ok := idParam(c, "journal_id")
	if !ok {
		return
	}
	articleID, ok := idParam(c, "article_id")
	if !ok {
		return
	}
	var p ingest.AuthorPayload
	if err := ingest.DecodeJSON(c.Request.Body, &p); err != nil {
		respondError(c, err)
		return
	}

	au, err := h.Importer.ImportAuthor(c.Request.Context(), journalID, articleID, &p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, au)
}
