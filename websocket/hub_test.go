package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rescuedispatch/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, r.URL.Query().Get("user"))
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type inbound struct {
	Type   string            `json:"type"`
	UserID string            `json:"userId"`
	Data   models.AlertEvent `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg inbound
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubDeliversEventsToRecipientsOnly(t *testing.T) {
	hub, server := startHub(t)

	sender := dial(t, server, "sender")
	bystander := dial(t, server, "bystander")
	assert.Equal(t, models.WSTypeConnected, readMessage(t, sender).Type)
	assert.Equal(t, models.WSTypeConnected, readMessage(t, bystander).Type)

	require.Eventually(t, func() bool {
		return hub.IsUserOnline("sender") && hub.IsUserOnline("bystander")
	}, time.Second, 5*time.Millisecond)

	hub.DispatchEvent(models.AlertEvent{
		Type:       models.AlertEventAccepted,
		AlertID:    "a1",
		Status:     models.AlertStatusAccepted,
		Recipients: []string{"sender", "offline-responder"},
	})

	msg := readMessage(t, sender)
	assert.Equal(t, models.WSTypeAlertEvent, msg.Type)
	assert.Equal(t, "sender", msg.UserID)
	assert.Equal(t, "a1", msg.Data.AlertID)
	assert.Equal(t, models.AlertStatusAccepted, msg.Data.Status)

	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bystander.ReadMessage()
	assert.Error(t, err)

	stats := hub.GetStats()
	assert.Equal(t, int64(2), stats.TotalConnections)
	assert.Equal(t, int64(1), stats.EventsReceived)
}

func TestClientAnswersPing(t *testing.T) {
	_, server := startHub(t)
	conn := dial(t, server, "u1")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: models.WSTypePing}))
	assert.Equal(t, models.WSTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: "subscribe"}))
	assert.Equal(t, models.WSTypeError, readMessage(t, conn).Type)
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "u1")
	readMessage(t, conn)
	require.True(t, hub.IsUserOnline("u1"))

	conn.Close()
	require.Eventually(t, func() bool { return !hub.IsUserOnline("u1") }, 2*time.Second, 10*time.Millisecond)
}

func TestSendMessageAfterCloseIsRejected(t *testing.T) {
	client := NewClient(NewHub(), nil, "u1")
	assert.True(t, client.SendMessage(models.WSMessage{Type: models.WSTypePong}))
	client.close()
	assert.False(t, client.SendMessage(models.WSMessage{Type: models.WSTypePong}))
}
