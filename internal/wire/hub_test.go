package wire

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// dialSession spins up a one-shot echo-free websocket server and returns a
// Session wrapping the server side of the connection, plus the client
// connection for reading what the hub sends.
func dialSession(t *testing.T) (*Session, *websocket.Conn, func()) {
	t.Helper()

	serverConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	serverConn := <-serverConnCh
	sess := NewSession(serverConn)

	cleanup := func() {
		sess.Close()
		_ = clientConn.Close()
		srv.Close()
	}
	return sess, clientConn, cleanup
}

func TestHubSendToDeliversToRegisteredAgent(t *testing.T) {
	sess, client, cleanup := dialSession(t)
	defer cleanup()

	h := NewHub()
	h.Register("agent_1", sess)
	require.Equal(t, 1, h.Count())

	ok := h.SendTo("agent_1", "authed", AuthedOut{AgentID: "agent_1", Credits: 100})
	require.True(t, ok)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]interface{}
	require.NoError(t, client.ReadJSON(&got))
	require.Equal(t, "authed", got["type"])
	require.Equal(t, "agent_1", got["agentId"])
}

func TestHubSendToUnknownAgentReturnsFalse(t *testing.T) {
	h := NewHub()
	ok := h.SendTo("agent_missing", "authed", AuthedOut{})
	require.False(t, ok)
}

func TestHubUnregisterIgnoresStaleSession(t *testing.T) {
	sessA, _, cleanupA := dialSession(t)
	defer cleanupA()
	sessB, _, cleanupB := dialSession(t)
	defer cleanupB()

	h := NewHub()
	h.Register("agent_1", sessA)
	h.Register("agent_1", sessB) // evicts sessA

	h.Unregister(sessA) // stale; must not remove sessB's registration
	require.Equal(t, 1, h.Count())
}
