// Package websocket pushes live order events to connected back-office clients.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	maxClients = 200
	sendBuffer = 16
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var ErrHubStopped = errors.New("hub stopped")

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn  *websocket.Conn
	errCh chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	conn *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	data []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-cw.sendCh:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

// --- Hub ---

// Hub owns the set of live-feed connections. All state lives in the run
// goroutine and is changed only through commands.
type Hub struct {
	cmdCh      chan hubCmd
	stopped    chan struct{}
	clients    map[*websocket.Conn]*clientWriter
	maxClients int
	newWriter  func(*websocket.Conn) *clientWriter
	metrics    *metrics.WebSocketMetrics
	log        *slog.Logger
}

// NewHub starts the hub goroutine. m may be nil.
func NewHub(m *metrics.WebSocketMetrics) *Hub {
	return newHub(m, maxClients, newClientWriter)
}

func newHub(m *metrics.WebSocketMetrics, limit int, newWriter func(*websocket.Conn) *clientWriter) *Hub {
	hub := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		stopped:    make(chan struct{}),
		clients:    make(map[*websocket.Conn]*clientWriter),
		maxClients: limit,
		newWriter:  newWriter,
		metrics:    m,
		log:        slog.With("component", "order_feed_hub"),
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.conn)
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			close(h.stopped)
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if len(h.clients) >= h.maxClients {
		h.log.Warn("Rejecting live feed client: max clients reached", "max", h.maxClients)
		if h.metrics != nil {
			h.metrics.ConnectionsRejected.Inc()
		}
		c.errCh <- fmt.Errorf("max clients (%d) reached", h.maxClients)
		return
	}

	h.clients[c.conn] = h.newWriter(c.conn)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	h.log.Debug("Live feed client registered", "total_clients", len(h.clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, exists := h.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, conn)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	h.log.Debug("Live feed client unregistered", "remaining_clients", len(h.clients))
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	var slow []*websocket.Conn
	for conn, cw := range h.clients {
		select {
		case cw.sendCh <- c.data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		h.log.Info("Disconnecting slow live feed client")
		if h.metrics != nil {
			h.metrics.SlowClientsEvicted.Inc()
		}
		h.handleUnregister(conn)
	}

	if h.metrics != nil && len(h.clients) > 0 {
		h.metrics.MessagesPublished.Inc()
	}
}

func (h *Hub) handleStop() {
	for conn, cw := range h.clients {
		cw.stop()
		delete(h.clients, conn)
	}
	if h.metrics != nil {
		h.metrics.ActiveConnections.Set(0)
	}
}

// send delivers cmd unless the hub has stopped.
func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.stopped:
		return false
	}
}

// --- Public API ---

// Register adds conn to the feed. The caller closes conn when it fails.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !h.send(cmdRegister{conn: conn, errCh: errCh}) {
		return ErrHubStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.send(cmdUnregister{conn: conn})
}

// BroadcastOrderEvent pushes e to every connected client.
func (h *Hub) BroadcastOrderEvent(e domain.OrderEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Error("Failed to marshal order event", "error", err)
		return
	}
	h.send(cmdBroadcast{data: data})
}

func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if !h.send(cmdClientCount{replyCh: replyCh}) {
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.stopped:
		return 0
	}
}

// Stop closes every connection and ends the hub goroutine. It is safe to
// call more than once.
func (h *Hub) Stop() {
	if h.send(cmdStop{}) {
		<-h.stopped
	}
}
