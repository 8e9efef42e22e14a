package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, addr, query string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws"+query, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func subscribeWS(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatal(err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func relayServer(t *testing.T) (*mockSubscriber, string) {
	t.Helper()
	sub := newMockSubscriber()
	deps := testDeps(newMockDevices(), "")
	deps.MQTT = sub
	_, addr := testServerWithListener(t, deps)
	return sub, addr
}

func TestWebSocket_Ping(t *testing.T) {
	_, addr := relayServer(t)
	ws := dialWS(t, addr, "")

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	msg := readWS(t, ws)
	if msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("got %+v, want pong p1", msg)
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	_, addr := relayServer(t)
	ws := dialWS(t, addr, "")

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeError {
		t.Errorf("invalid JSON: got %+v", msg)
	}

	if err := ws.WriteJSON(WSMessage{Type: "dance", ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeError || msg.ID != "x" {
		t.Errorf("unknown type: got %+v", msg)
	}
}

func TestWebSocket_RelaysState(t *testing.T) {
	sub, addr := relayServer(t)
	ws := dialWS(t, addr, "")
	subscribeWS(t, ws, ChannelDeviceState)

	payload, err := json.Marshal(map[string]any{
		"device_id": "1afe34e750b8",
		"state":     map[string]any{"relays": []any{map[string]any{"relay": 0, "state": 1}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sub.deliver(t, "graylogic/state/+/+", "graylogic/state/blebox/1afe34e750b8", payload)

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelDeviceState {
		t.Fatalf("got %+v", msg)
	}
	body, ok := msg.Payload.(map[string]any)
	if !ok || body["device_id"] != "1afe34e750b8" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_RelaysRemovalAndHealth(t *testing.T) {
	sub, addr := relayServer(t)
	ws := dialWS(t, addr, "")
	subscribeWS(t, ws, ChannelDeviceRemoved, ChannelBridgeHealth)

	sub.deliver(t, "graylogic/state/+/+", "graylogic/state/blebox/abc", nil)
	msg := readWS(t, ws)
	if msg.EventType != ChannelDeviceRemoved {
		t.Fatalf("got %+v", msg)
	}
	if body, _ := msg.Payload.(map[string]any); body["device_id"] != "abc" {
		t.Errorf("payload = %v", msg.Payload)
	}

	sub.deliver(t, "graylogic/health/+", "graylogic/health/blebox", []byte(`{"bridge":"blebox","status":"healthy"}`))
	msg = readWS(t, ws)
	if msg.EventType != ChannelBridgeHealth {
		t.Fatalf("got %+v", msg)
	}
}

func TestWebSocket_UnsubscribedReceivesNothing(t *testing.T) {
	sub, addr := relayServer(t)
	ws := dialWS(t, addr, "")
	subscribeWS(t, ws, ChannelBridgeHealth)

	sub.deliver(t, "graylogic/state/+/+", "graylogic/state/blebox/abc", []byte(`{"device_id":"abc"}`))

	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err == nil {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestWebSocket_MalformedRelayIgnored(t *testing.T) {
	sub, addr := relayServer(t)
	ws := dialWS(t, addr, "")
	subscribeWS(t, ws, ChannelDeviceState)

	sub.deliver(t, "graylogic/state/+/+", "graylogic/state/blebox/abc", []byte("{broken"))
	sub.deliver(t, "graylogic/state/+/+", "graylogic/state/blebox/abc", []byte(`{"device_id":"abc"}`))

	msg := readWS(t, ws)
	if body, _ := msg.Payload.(map[string]any); body["device_id"] != "abc" {
		t.Errorf("got %+v, want the well-formed state", msg)
	}
}

func TestWebSocket_TicketRequiredWithAuth(t *testing.T) {
	_, addr := testServerWithListener(t, testDeps(newMockDevices(), testSecret))

	for _, query := range []string{"", "?ticket=invalid-ticket"} {
		_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws"+query, nil)
		if err == nil {
			t.Fatalf("dial %q should fail", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %q: resp = %v, want 401", query, resp)
		}
	}
}

func TestWebSocket_TicketFlow(t *testing.T) {
	_, addr := testServerWithListener(t, testDeps(newMockDevices(), testSecret))

	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/api/v1/auth/ws-ticket", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header = bearer(t, testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}

	ws := dialWS(t, addr, "?ticket="+result.Ticket)
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong {
		t.Errorf("got %+v", msg)
	}

	// Tickets are single-use.
	if _, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?ticket="+result.Ticket, nil); err == nil {
		t.Error("reused ticket accepted")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reuse status = %d, want 401", resp.StatusCode)
	}
}

func TestHub_ClientCount(t *testing.T) {
	_, addr := relayServer(t)
	srvWS := dialWS(t, addr, "")
	subscribeWS(t, srvWS, ChannelDeviceState)

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["websocket_clients"] != float64(1) {
		t.Errorf("websocket_clients = %v, want 1", body["websocket_clients"])
	}
}

func TestWSTimings_Defaults(t *testing.T) {
	srv := testServer(t, newMockDevices(), "")
	srv.wsCfg.PingInterval = 0
	srv.wsCfg.PongTimeout = 0

	ping, pong := wsTimings(srv.wsCfg)
	if ping != 30*time.Second || pong != 10*time.Second {
		t.Errorf("wsTimings() = %v, %v", ping, pong)
	}
}
