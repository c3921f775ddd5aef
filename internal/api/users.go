package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"journaltransporter/internal/ingest"
)

func (h *Handler) listUsers(c *gin.Context) {
	limit, offset := pageParams(c)

	total, err := h.Accounts.Count(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.Accounts.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	listResponse(c, total, items)
}

func (h *Handler) importUser(c *gin.Context) {
	p, err := ingest.DecodeAccount(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	acc, created, err := h.Importer.ImportAccount(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, acc)
}
