package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"journaltransporter/internal/ingest"
	"journaltransporter/pkg/models"
)

func (h *Handler) listJournals(c *gin.Context) {
	limit, offset := pageParams(c)

	total, err := h.Journals.Count(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.Journals.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, total, items)
}

// importJournal is the HTTP form of ImportSingle: 201 when the path is new, 200 when it was updated.
func (h *Handler) importJournal(c *gin.Context) {
	p, err := ingest.Decode(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.Importer.ImportSingle(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res.Journal)
}

func (h *Handler) getJournal(c *gin.Context) {
	j, ok := h.journal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *Handler) exportJournal(c *gin.Context) {
	j, ok := h.journal(c)
	if !ok {
		return
	}
	out, err := h.Importer.ExportJournal(c.Request.Context(), j)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// journal loads the journal named by the path, writing the error response when it cannot.
func (h *Handler) journal(c *gin.Context) (*models.Journal, bool) {
	id, ok := idParam(c, "journal_id")
	if !ok {
		return nil, false
	}
	j, err := h.Journals.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if j == nil {
		notFound(c)
		return nil, false
	}
	return j, true
}
