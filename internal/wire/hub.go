// Hub tracks every live agent session and the single live observer stream,
// generalized from the teacher's channel-registration pattern (formerly
// internal/websocket/dag_streamer.go's hub of DAG-execution subscribers,
// here narrowed to one hub of authenticated agents plus one fan-out of tape
// events to observers).
package wire

import (
	"log"
	"sync"

	"github.com/cjy919100-del/synapse-proto/internal/ledgertape"
)

// Hub owns the set of authenticated agent sessions. One agent id may have at
// most one live session; a newer connection evicts an older one.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session // agentId -> session
}

// NewHub creates an empty agent hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// Register binds sess to agentID, evicting any previous session for the
// same agent (spec.md §4.1: one live session per identity).
func (h *Hub) Register(agentID string, sess *Session) {
	h.mu.Lock()
	old, had := h.sessions[agentID]
	h.sessions[agentID] = sess
	h.mu.Unlock()

	sess.agentID = agentID

	if had && old != sess {
		log.Printf("🔌 wire: evicting stale session for agent %s", agentID)
		old.Close()
	}
}

// Unregister removes sess from the hub if it is still the current session
// for its agent id (a stale Unregister from an already-evicted session must
// not remove the newer one).
func (h *Hub) Unregister(sess *Session) {
	if sess.AgentID() == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.sessions[sess.AgentID()]; ok && current == sess {
		delete(h.sessions, sess.AgentID())
	}
}

// SendTo delivers msgType/body to agentID's live session, if any. Returns
// false if the agent has no live session.
func (h *Hub) SendTo(agentID, msgType string, body interface{}) bool {
	h.mu.RLock()
	sess, ok := h.sessions[agentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	sess.Send(msgType, body)
	return true
}

// Broadcast delivers msgType/body to every currently authenticated session.
func (h *Hub) Broadcast(msgType string, body interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sess := range h.sessions {
		sess.Send(msgType, body)
	}
}

// Count returns the number of live authenticated sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ObserverHub fans out tape events to every connected /observer client. It
// subscribes to a ledgertape.Bus once and republishes to N websocket
// sessions, decoupling the tape bus's internal buffering from client
// backpressure.
type ObserverHub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	bus      *ledgertape.Bus
	busCh    chan ledgertape.TapeEvent
	stop     chan struct{}
}

// NewObserverHub subscribes to bus and starts the fan-out goroutine.
func NewObserverHub(bus *ledgertape.Bus) *ObserverHub {
	oh := &ObserverHub{
		sessions: make(map[*Session]struct{}),
		bus:      bus,
		busCh:    bus.Subscribe(),
		stop:     make(chan struct{}),
	}
	go oh.pump()
	return oh
}

// Register adds sess to the observer fan-out set.
func (oh *ObserverHub) Register(sess *Session) {
	oh.mu.Lock()
	defer oh.mu.Unlock()
	oh.sessions[sess] = struct{}{}
}

// Unregister removes sess from the observer fan-out set.
func (oh *ObserverHub) Unregister(sess *Session) {
	oh.mu.Lock()
	defer oh.mu.Unlock()
	delete(oh.sessions, sess)
}

// Count returns the number of live observer sessions.
func (oh *ObserverHub) Count() int {
	oh.mu.RLock()
	defer oh.mu.RUnlock()
	return len(oh.sessions)
}

// Close stops the fan-out goroutine and unsubscribes from the bus.
func (oh *ObserverHub) Close() {
	close(oh.stop)
	oh.bus.Unsubscribe(oh.busCh)
}

func (oh *ObserverHub) pump() {
	for {
		select {
		case <-oh.stop:
			return
		case ev := <-oh.busCh:
			oh.mu.RLock()
			for sess := range oh.sessions {
				sess.Send("event", map[string]interface{}{"data": ev})
			}
			oh.mu.RUnlock()
		}
	}
}
