package wire

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Session wraps one client websocket connection. Writes are serialized
// through writeMu since gorilla/websocket forbids concurrent writers on the
// same connection; reads happen on a single goroutine per session so no
// read-side lock is needed.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	nonce     string
	authed    bool
	agentID   string
	agentName string

	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewSession wraps conn and starts its background write pump.
func NewSession(conn *websocket.Conn) *Session {
	s := &Session{
		conn:   conn,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.writePump()
	return s
}

// IsAuthed reports whether the session completed the challenge/auth
// handshake.
func (s *Session) IsAuthed() bool {
	return s.authed
}

// AgentID returns the bound agent id, empty until authed.
func (s *Session) AgentID() string {
	return s.agentID
}

// BindIdentity marks the session authenticated and binds it to agentID /
// agentName. Called once, after a successful auth handshake.
func (s *Session) BindIdentity(agentID, agentName string) {
	s.authed = true
	s.agentID = agentID
	s.agentName = agentName
}

// ReadJSON blocks for the next inbound frame.
func (s *Session) ReadJSON(v interface{}) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	return s.conn.ReadJSON(v)
}

// Send enqueues an outbound message; it never blocks the caller for long —
// a session whose send buffer is full is considered dead and closed.
func (s *Session) Send(msgType string, body interface{}) {
	frame := map[string]interface{}{"v": ProtocolVersion, "type": msgType}
	raw, err := json.Marshal(body)
	if err == nil {
		var fields map[string]interface{}
		if json.Unmarshal(raw, &fields) == nil {
			for k, val := range fields {
				frame[k] = val
			}
		}
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("⚠️  wire: failed to marshal %s frame: %v", msgType, err)
		return
	}

	select {
	case s.send <- payload:
	default:
		log.Printf("⚠️  wire: send buffer full for agent %s, dropping connection", s.agentID)
		s.Close()
	}
}

// Close closes the session exactly once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.send:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.TextMessage, payload)
			s.writeMu.Unlock()
			if err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.Close()
				return
			}
		}
	}
}
