package realtime

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
)

func TestBroadcastTargetsUser(t *testing.T) {
	hub := NewHub()
	alice := NewClient(1)
	bob := NewClient(2)
	hub.Register(alice)
	hub.Register(bob)

	hub.Broadcast(1, map[string]any{"type": EventDreamAnalysis, "dream_id": 9})

	select {
	case raw := <-alice.Send:
		var event map[string]any
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, EventDreamAnalysis, event["type"])
		assert.Equal(t, float64(9), event["dream_id"])
	default:
		t.Fatal("expected event for user 1")
	}
	assert.Empty(t, bob.Send)
}

func TestUnregisterTwice(t *testing.T) {
	hub := NewHub()
	client := NewClient(4)
	hub.Register(client)
	assert.Equal(t, 1, hub.Connections(4))

	hub.Unregister(client)
	hub.Unregister(client)
	assert.Equal(t, 0, hub.Connections(4))
	_, open := <-client.Send
	assert.False(t, open)
}

func TestServeWSDeliversEvents(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, 7)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections(7) == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast(7, map[string]any{"type": EventDreamAnalysis})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), EventDreamAnalysis)
}
