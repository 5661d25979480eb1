package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xfreki/edgescan/internal/edge"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast([]edge.Opportunity{{MarketID: "m1", Recommend: edge.BuyYes}})

	msg := readMessage(t, conn)
	assert.Equal(t, "scan", msg.Type)
	require.Len(t, msg.Opportunities, 1)
	assert.Equal(t, "m1", msg.Opportunities[0].MarketID)
}

func TestLateSubscriberGetsLatestScan(t *testing.T) {
	hub := NewHub()
	hub.Broadcast([]edge.Opportunity{{MarketID: "m2"}})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	require.Len(t, msg.Opportunities, 1)
	assert.Equal(t, "m2", msg.Opportunities[0].MarketID)
}

func TestClientRemovedOnDisconnect(t *testing.T) {
	hub := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}
