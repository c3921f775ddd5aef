package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journaltransporter/internal/ingest"
)

func TestOnImport(t *testing.T) {
	m := New()

	m.OnImport(ingest.ImportEvent{
		Type:     ingest.EventJournalImported,
		Issues:   2,
		Articles: 3,
		Authors:  4,
		Duration: 15 * time.Millisecond,
	})
	m.OnImport(ingest.ImportEvent{Type: ingest.EventJournalImported, Articles: 9, Err: "validation failed"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.importsTotal.WithLabelValues(ingest.EventJournalImported, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importsTotal.WithLabelValues(ingest.EventJournalImported, "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("article")), "failed imports add no records")
	assert.Equal(t, 1, testutil.CollectAndCount(m.importDuration))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/journals/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journals/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/journals/:id", "200")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `transporter_http_requests_total{method="GET",route="/journals/:id",status="200"} 2`)
}
