// Upgrade handlers: the HTTP entry points that turn an inbound connection
// into a Session and hand it to either the Router (agent exchange
// connections) or the ObserverHub (read-only tape spectators). Grounded on
// internal/websocket/dag_streamer.go's HandleWebSocket (upgrade, then a
// read loop purely to detect disconnect), generalized to two distinct
// upgrade handlers instead of one.
package wire

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Listener exposes the two websocket endpoints spec.md §6 names: the
// authenticated agent exchange connection and the read-only /observer tape
// stream.
type Listener struct {
	router      *Router
	observerHub *ObserverHub
	snapshot    func() core.Snapshot
	logger      *log.Logger
}

// NewListener builds a Listener. snapshot supplies the initial payload sent
// to a freshly connected observer (spec.md §6's "snapshot" message).
func NewListener(router *Router, observerHub *ObserverHub, snapshot func() core.Snapshot) *Listener {
	return &Listener{
		router:      router,
		observerHub: observerHub,
		snapshot:    snapshot,
		logger:      log.New(log.Writer(), "[WIRE] ", log.LstdFlags),
	}
}

// HandleAgent upgrades r to a websocket and runs it through the Router's
// full auth + dispatch lifecycle.
func (l *Listener) HandleAgent(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Printf("⚠️ agent upgrade failed: %v", err)
		return
	}
	sess := NewSession(conn)
	l.router.ServeSession(sess)
}

// HandleObserver upgrades r to a websocket, registers it on the observer
// fan-out, sends the current snapshot, and blocks until the connection
// drops (observers send nothing — the read loop exists only to notice
// close/error).
func (l *Listener) HandleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Printf("⚠️ observer upgrade failed: %v", err)
		return
	}
	sess := NewSession(conn)
	l.observerHub.Register(sess)
	defer func() {
		l.observerHub.Unregister(sess)
		sess.Close()
	}()

	sess.Send("snapshot", map[string]interface{}{"data": l.snapshot()})

	for {
		var discard interface{}
		if err := sess.ReadJSON(&discard); err != nil {
			return
		}
	}
}
