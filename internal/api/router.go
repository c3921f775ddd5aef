// Package api serves the Journal Transporter HTTP surface under /plugins/journal-transporter/.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"journaltransporter/internal/account"
	"journaltransporter/internal/article"
	"journaltransporter/internal/auth"
	"journaltransporter/internal/events"
	"journaltransporter/internal/ingest"
	"journaltransporter/internal/issue"
	"journaltransporter/internal/journal"
	"journaltransporter/internal/logger"
	"journaltransporter/internal/metrics"
	"journaltransporter/internal/section"
)

const Prefix = "/plugins/journal-transporter"

type Deps struct {
	DB             *sql.DB
	Importer       *ingest.Importer
	Auth           *auth.Authenticator
	Hub            *events.Hub
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	CookieSecure   bool
	MaxBodyBytes   int64
	TrustedProxies []string
}

type Handler struct {
	Importer *ingest.Importer
	Journals *journal.Repo
	Issues   *issue.Repo
	Sections *section.Repo
	Articles *article.Repo
	Accounts *account.Repo
}

func NewHandler(db *sql.DB, importer *ingest.Importer) *Handler {
	return &Handler{
		Importer: importer,
		Journals: journal.NewRepo(db),
		Issues:   issue.NewRepo(db),
		Sections: section.NewRepo(db),
		Articles: article.NewRepo(db),
		Accounts: account.NewRepo(db),
	}
}

// RegisterRoutes mounts the import resources. Only GET and POST are exposed;
// other methods on a known path get 405.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/journals/", h.listJournals)
	rg.POST("/journals/", h.importJournal)
	rg.GET("/journals/:journal_id/", h.getJournal)
	rg.GET("/journals/:journal_id/export/", h.exportJournal)

	rg.GET("/journals/:journal_id/issues/", h.listIssues)
	rg.POST("/journals/:journal_id/issues/", h.importIssue)
	rg.GET("/journals/:journal_id/issues/:issue_id/", h.getIssue)
	rg.POST("/journals/:journal_id/issues/:issue_id/articles/", h.importArticle)

	rg.GET("/journals/:journal_id/sections/", h.listSections)
	rg.POST("/journals/:journal_id/sections/", h.importSection)

	rg.GET("/journals/:journal_id/articles/", h.listArticles)
	rg.GET("/journals/:journal_id/articles/:article_id/", h.getArticle)
	rg.GET("/journals/:journal_id/articles/:article_id/authors/", h.listAuthors)
	rg.POST("/journals/:journal_id/articles/:article_id/authors/", h.importAuthor)

	rg.GET("/users/", h.listUsers)
	rg.POST("/users/", h.importUser)
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	_ = router.SetTrustedProxies(d.TrustedProxies)

	router.Use(logger.GinMiddleware(log), logger.Recovery(log))
	if d.Metrics != nil {
		router.Use(d.Metrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.MaxBodyBytes > 0 {
		router.Use(limitBody(d.MaxBodyBytes))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": `Method "` + c.Request.Method + `" not allowed.`})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{}
		if d.Hub != nil {
			stats := d.Hub.Stats()
			body["tcp_clients"] = stats.TCPClients
			body["ws_clients"] = stats.WSClients
		}
		if err := d.DB.PingContext(ctx); err != nil {
			body["status"] = "not_ready"
			body["db_error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		body["db"] = "ok"
		c.JSON(http.StatusOK, body)
	})

	plugin := router.Group(Prefix)
	auth.NewHandler(d.Auth, d.CookieSecure).RegisterRoutes(plugin.Group("/auth"))

	protected := plugin.Group("")
	protected.Use(d.Auth.Middleware())
	NewHandler(d.DB, d.Importer).RegisterRoutes(protected)
	if d.Hub != nil {
		protected.GET("/events/", events.WSHandler(d.Hub))
		protected.GET("/events/stats/", events.StatsHandler(d.Hub))
	}

	return router
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
