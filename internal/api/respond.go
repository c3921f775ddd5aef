package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"journaltransporter/internal/ingest"
	"journaltransporter/internal/logger"
)

const defaultLimit = 20

// respondError maps import errors onto HTTP: validation 400 with the field map,
// missing parents 404, constraint violations 409, anything else 500.
func respondError(c *gin.Context, err error) {
	var verr *ingest.ValidationError
	var perr *ingest.PersistenceError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.As(err, &maxErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "Request body too large."})
	case errors.Is(err, ingest.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.As(err, &perr) && perr.Constraint():
		logger.FromGin(c).Warn("import conflict", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"detail": perr.Error()})
	default:
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

// idParam reads a positive integer path parameter; anything else is treated as not found.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		notFound(c)
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (limit, offset int) {
	return parseInt(c.Query("limit"), defaultLimit), parseInt(c.Query("offset"), 0)
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func listResponse[T any](c *gin.Context, count int, results []T) {
	if results == nil {
		results = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "results": results})
}
