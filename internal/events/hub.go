package events

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"journaltransporter/internal/ingest"
)

const (
	defaultHistorySize = 50
	writeTimeout       = 2 * time.Second
	sendQueueSize      = 64
)

// subscriber owns one connection. Its queue is drained by a single writer goroutine,
// so a slow client never holds up Publish.
type subscriber struct {
	transport string
	send      chan []byte
	write     func([]byte) error
	close     func() error
}

// Hub fans import events out to WebSocket and raw TCP subscribers and keeps
// the most recent ones for clients that connect later.
type Hub struct {
	mu          sync.Mutex
	subs        map[any]*subscriber
	history     []ingest.ImportEvent
	historySize int
	published   int
	dropped     int
	log         *zap.Logger
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
	Published  int `json:"published"`
	Dropped    int `json:"dropped"`
}

type welcome struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	Clients   int    `json:"clients"`
}

func NewHub(historySize int, log *zap.Logger) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:        make(map[any]*subscriber),
		historySize: historySize,
		log:         log,
	}
}

// OnImport lets the hub be registered as an importer listener.
func (h *Hub) OnImport(ev ingest.ImportEvent) {
	h.Publish(ev)
}

// Publish queues ev for every subscriber. A subscriber whose queue is full is disconnected.
func (h *Hub) Publish(ev ingest.ImportEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("marshal import event", zap.Error(err))
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	h.published++
	h.history = append(h.history, ev)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}

	for key, s := range h.subs {
		select {
		case s.send <- b:
		default:
			h.log.Warn("event subscriber too slow, disconnecting", zap.String("transport", s.transport))
			h.dropped++
			h.removeLocked(key)
		}
	}
}

// AddWS greets the client, replays recent events and subscribes it.
func (h *Hub) AddWS(ws *websocket.Conn) {
	h.subscribe(ws, &subscriber{
		transport: "websocket",
		write: func(b []byte) error {
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			return ws.WriteMessage(websocket.TextMessage, b)
		},
		close: ws.Close,
	})
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.remove(ws)
	_ = ws.Close()
}

// Add subscribes a raw TCP connection.
func (h *Hub) Add(conn net.Conn) {
	h.subscribe(conn, &subscriber{
		transport: "tcp",
		write: func(b []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_, err := conn.Write(b)
			return err
		},
		close: conn.Close,
	})
}

func (h *Hub) Remove(conn net.Conn) {
	h.remove(conn)
	_ = conn.Close()
}

func (h *Hub) History() []ingest.ImportEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ingest.ImportEvent(nil), h.history...)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{Published: h.published, Dropped: h.dropped}
	for _, s := range h.subs {
		if s.transport == "tcp" {
			st.TCPClients++
		} else {
			st.WSClients++
		}
	}
	return st
}

func (h *Hub) subscribe(key any, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// room for the greeting and a full history replay on top of the live queue
	s.send = make(chan []byte, sendQueueSize+h.historySize+1)

	b, _ := json.Marshal(welcome{
		Type:      "welcome",
		Transport: s.transport,
		Clients:   len(h.subs) + 1,
	})
	s.send <- append(b, '\n')
	for _, ev := range h.history {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		s.send <- append(b, '\n')
	}

	h.subs[key] = s
	go h.writeLoop(key, s)
}

func (h *Hub) writeLoop(key any, s *subscriber) {
	failed := false
	for b := range s.send {
		if failed {
			continue
		}
		if err := s.write(b); err != nil {
			h.log.Debug("event write failed", zap.String("transport", s.transport), zap.Error(err))
			failed = true
			h.remove(key)
		}
	}
	_ = s.close()
}

func (h *Hub) remove(key any) {
	h.mu.Lock()
	h.removeLocked(key)
	h.mu.Unlock()
}

// removeLocked unsubscribes key and closes its queue; the writer then closes the connection.
func (h *Hub) removeLocked(key any) {
	s, ok := h.subs[key]
	if !ok {
		return
	}
	delete(h.subs, key)
	close(s.send)
}
