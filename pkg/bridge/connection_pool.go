package bridge

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultSendBuffer   = 32
	defaultWriteTimeout = 5 * time.Second
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type poolClient struct {
	conn wsConn
	send chan []byte
}

// ConnectionPool fans event payloads out to the attached websocket clients.
// Each client has its own writer goroutine and bounded buffer; a client whose
// buffer is full or whose write fails is dropped.
type ConnectionPool struct {
	mu           sync.Mutex
	clients      map[wsConn]*poolClient
	sendBuffer   int
	writeTimeout time.Duration
	logger       zerolog.Logger
}

func NewConnectionPool(logger zerolog.Logger) *ConnectionPool {
	return &ConnectionPool{
		clients:      map[wsConn]*poolClient{},
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

func (cp *ConnectionPool) Add(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	c := &poolClient{conn: conn, send: make(chan []byte, cp.sendBuffer)}
	cp.mu.Lock()
	if _, ok := cp.clients[conn]; ok {
		cp.mu.Unlock()
		return
	}
	cp.clients[conn] = c
	cp.mu.Unlock()
	go cp.writeLoop(c)
}

func (cp *ConnectionPool) writeLoop(c *poolClient) {
	for data := range c.send {
		if cp.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			cp.logger.Warn().Err(err).Msg("ws write failed, dropping connection")
			cp.Remove(c.conn)
			return
		}
	}
}

// Remove detaches conn and closes it.
func (cp *ConnectionPool) Remove(conn wsConn) {
	if conn == nil {
		return
	}
	if cp != nil {
		cp.mu.Lock()
		cp.removeLocked(conn)
		cp.mu.Unlock()
	}
	_ = conn.Close()
}

func (cp *ConnectionPool) removeLocked(conn wsConn) {
	if c, ok := cp.clients[conn]; ok {
		delete(cp.clients, conn)
		close(c.send)
	}
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	var dropped []wsConn
	cp.mu.Lock()
	for conn, c := range cp.clients {
		select {
		case c.send <- data:
		default:
			cp.removeLocked(conn)
			dropped = append(dropped, conn)
		}
	}
	cp.mu.Unlock()
	for _, conn := range dropped {
		cp.logger.Warn().Msg("ws client too slow, dropping connection")
		_ = conn.Close()
	}
}

// SendToOne queues data for a single attached client.
func (cp *ConnectionPool) SendToOne(conn wsConn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	c, ok := cp.clients[conn]
	if !ok {
		cp.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
		cp.mu.Unlock()
	default:
		cp.removeLocked(conn)
		cp.mu.Unlock()
		_ = conn.Close()
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.clients)
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	conns := make([]wsConn, 0, len(cp.clients))
	for conn := range cp.clients {
		cp.removeLocked(conn)
		conns = append(conns, conn)
	}
	cp.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}
