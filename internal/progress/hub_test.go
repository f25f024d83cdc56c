package progress

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/notify"
	"github.com/mimic-ai/interview/internal/turn"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestTurnEventsReachClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(Router(hub, hub.logger))
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, time.Millisecond)

	hub.TurnChanged(turn.Event{Turn: 1, From: turn.Idle, To: turn.Recording, At: time.Now()})
	msg := readEvent(t, conn)
	assert.Equal(t, EventState, msg.Event)
	var p statePayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "recording", p.State)
	assert.Equal(t, 1, p.Turn)

	hub.TurnChanged(turn.Event{Turn: 1, From: turn.Uploading, To: turn.Failed, Err: apperr.Authentication("upload ticket")})
	msg = readEvent(t, conn)
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "failed", p.State)
	assert.Equal(t, apperr.MsgAuthentication, p.Error)
}

func TestLateJoinerGetsReplay(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(EventQuestion, map[string]string{"data": "自己紹介をしてください"})
	hub.Notify(notify.FromError(errors.New("boom")))

	srv := httptest.NewServer(Router(hub, hub.logger))
	defer srv.Close()
	conn := dial(t, srv)

	first := readEvent(t, conn)
	assert.Equal(t, EventQuestion, first.Event)
	assert.JSONEq(t, `{"data":"自己紹介をしてください"}`, string(first.Data))
	second := readEvent(t, conn)
	assert.Equal(t, EventNotice, second.Event)
}

func TestCommandsAreForwarded(t *testing.T) {
	hub := NewHub(nil)
	got := make(chan string, 4)
	hub.SetCommandHandler(func(cmd string) { got <- cmd })
	srv := httptest.NewServer(Router(hub, hub.logger))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(WSMessage{Event: "chat"}))
	require.NoError(t, conn.WriteJSON(WSMessage{Event: CommandStart}))
	select {
	case cmd := <-got:
		assert.Equal(t, CommandStart, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("command not forwarded")
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(EventElapsed, map[string]any{"seconds": 5, "label": "00:05"})
	srv := httptest.NewServer(Router(hub, hub.logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Success bool                       `json:"success"`
		Data    map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.JSONEq(t, `{"seconds":5,"label":"00:05"}`, string(body.Data[EventElapsed]))
}
