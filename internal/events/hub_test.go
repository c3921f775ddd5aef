package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journaltransporter/internal/auth"
	"journaltransporter/internal/ingest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func readWS(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := ws.ReadMessage()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestHubHistoryIsBounded(t *testing.T) {
	h := NewHub(2, nil)
	for _, key := range []string{"a", "b", "c"} {
		h.OnImport(ingest.ImportEvent{Type: ingest.EventJournalImported, Key: key})
	}

	hist := h.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "b", hist[0].Key)
	assert.Equal(t, "c", hist[1].Key)
	assert.Equal(t, 3, h.Stats().Published)
	assert.False(t, hist[0].At.IsZero())
}

func TestWebSocketFeed(t *testing.T) {
	h := NewHub(10, nil)
	h.Publish(ingest.ImportEvent{Type: ingest.EventJournalImported, Key: "before"})

	r := gin.New()
	r.GET("/events", WSHandler(h))
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, "welcome", readWS(t, ws)["type"])
	assert.Equal(t, "before", readWS(t, ws)["key"], "history is replayed")

	h.Publish(ingest.ImportEvent{Type: ingest.EventJournalImported, Key: "example", Created: true})
	ev := readWS(t, ws)
	assert.Equal(t, "journal.imported", ev["type"])
	assert.Equal(t, "example", ev["key"])
	assert.Equal(t, true, ev["created"])
	assert.Equal(t, 1, h.Stats().WSClients)
}

func TestTCPFeed(t *testing.T) {
	h := NewHub(10, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer("", h, nil).Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	rd := bufio.NewReader(conn)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"transport":"tcp"`)

	h.Publish(ingest.ImportEvent{Type: ingest.EventAccountImported, Key: "ada@example.com"})
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"key":"ada@example.com"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestPublishDoesNotWaitForStalledSubscriber(t *testing.T) {
	h := NewHub(5, nil)

	// nobody reads the far end, so every write to stalled blocks
	stalled, stalledPeer := net.Pipe()
	defer stalledPeer.Close()
	h.Add(stalled)

	live, livePeer := net.Pipe()
	defer livePeer.Close()
	h.Add(live)
	rd := bufio.NewReader(livePeer)
	readLine := func() string {
		require.NoError(t, livePeer.SetReadDeadline(time.Now().Add(2*time.Second)))
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		return line
	}
	assert.Contains(t, readLine(), `"type":"welcome"`)

	start := time.Now()
	for i := 0; i < sendQueueSize+20; i++ {
		h.Publish(ingest.ImportEvent{Type: ingest.EventJournalImported, Key: "k" + strconv.Itoa(i)})
		assert.Contains(t, readLine(), `"key":"k`+strconv.Itoa(i)+`"`)
	}
	assert.Less(t, time.Since(start), time.Second)

	st := h.Stats()
	assert.Equal(t, 1, st.TCPClients, "the stalled subscriber is disconnected")
	assert.Equal(t, 1, st.Dropped)
}

func TestWebSocketOriginCheck(t *testing.T) {
	h := NewHub(10, nil)

	withScheme := func(scheme string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(auth.CtxSchemeKey, scheme)
			c.Next()
		}
	}
	r := gin.New()
	r.GET("/cookie", withScheme(auth.SchemeCookie), WSHandler(h))
	r.GET("/basic", withScheme(auth.SchemeBasic), WSHandler(h))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	dial := func(path, origin string) (*websocket.Conn, *http.Response, error) {
		hdr := http.Header{}
		hdr.Set("Origin", origin)
		return websocket.DefaultDialer.Dial(base+path, hdr)
	}

	t.Run("cookie session from another origin is refused", func(t *testing.T) {
		_, resp, err := dial("/cookie", "https://elsewhere.example")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("cookie session from the same origin", func(t *testing.T) {
		ws, _, err := dial("/cookie", srv.URL)
		require.NoError(t, err)
		defer ws.Close()
		assert.Equal(t, "welcome", readWS(t, ws)["type"])
	})

	t.Run("explicit credentials from any origin", func(t *testing.T) {
		ws, _, err := dial("/basic", "https://elsewhere.example")
		require.NoError(t, err)
		defer ws.Close()
		assert.Equal(t, "welcome", readWS(t, ws)["type"])
	})
}
