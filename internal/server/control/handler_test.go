package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/famdesk/famdesk/internal/server/access"
	"github.com/famdesk/famdesk/internal/server/broker"
	"github.com/famdesk/famdesk/internal/server/ratelimit"
	"github.com/famdesk/famdesk/internal/server/registry"
	"github.com/famdesk/famdesk/internal/server/relay"
	"github.com/famdesk/famdesk/internal/server/session"
	"github.com/famdesk/famdesk/pkg/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	clk := clock.New()
	conns := registry.NewRegistry()
	codes := access.NewRegistry(clk, 10*time.Minute, func(hostID, code string) {
		conns.Send(hostID, protocol.NewMessage(protocol.MsgTypeCodeExpired, &protocol.CodeExpired{Code: code}))
	})
	limiter := ratelimit.NewLimiter(clk, 3, 30*time.Minute)
	sessions := session.NewManager(clk, time.Hour, conns, nil)
	handshake := broker.NewBroker(codes, limiter, conns, sessions)
	router := relay.NewRouter(sessions, conns)
	handler := NewHandler(conns, codes, handshake, sessions, router)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(protocol.NewMessage(msgType, payload)); err != nil {
		t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// expect reads the next message and asserts its type.
func expect(t *testing.T, conn *websocket.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("waiting for %s: %v", want, err)
	}
	if msg.Type != want {
		t.Fatalf("expected %s, got %s (payload %s)", want, msg.Type, msg.Payload)
	}
	return &msg
}

func decode(t *testing.T, msg *protocol.Message, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		t.Fatalf("bad %s payload: %v", msg.Type, err)
	}
}

func establish(t *testing.T, server *httptest.Server) (host, client *websocket.Conn, sessionID string) {
	t.Helper()
	host = dial(t, server)
	client = dial(t, server)

	send(t, host, protocol.MsgTypeGenerateCode, nil)
	var issued protocol.AccessCodeIssued
	decode(t, expect(t, host, protocol.MsgTypeAccessCode), &issued)

	send(t, client, protocol.MsgTypeConnectToScreen, &protocol.ConnectRequest{Code: issued.Code})
	var req protocol.ConnectionRequest
	decode(t, expect(t, host, protocol.MsgTypeConnectionRequest), &req)

	send(t, host, protocol.MsgTypeAcceptConnection, &protocol.ConnectionDecision{ClientID: req.ClientID})

	var hostEst, clientEst protocol.ConnectionEstablished
	decode(t, expect(t, host, protocol.MsgTypeConnectionEstablished), &hostEst)
	decode(t, expect(t, client, protocol.MsgTypeConnectionEstablished), &clientEst)
	if hostEst.SessionID != clientEst.SessionID {
		t.Fatalf("session identifiers differ: %s vs %s", hostEst.SessionID, clientEst.SessionID)
	}
	if hostEst.Role != protocol.RoleHost || clientEst.Role != protocol.RoleClient {
		t.Fatalf("unexpected roles: %s / %s", hostEst.Role, clientEst.Role)
	}
	return host, client, hostEst.SessionID
}

// expectSilence asserts no message arrives within the grace period.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("expected no message, got %s (payload %s)", msg.Type, msg.Payload)
	}
	conn.SetReadDeadline(time.Time{})
}

func TestHandshakeAndRelayEndToEnd(t *testing.T) {
	server := newTestServer(t)
	host, client, sessionID := establish(t, server)

	send(t, client, protocol.MsgTypeControlEvent, map[string]interface{}{"kind": "mousemove", "x": 10})
	event := expect(t, host, protocol.MsgTypeControlEvent)
	var control struct {
		Kind string `json:"kind"`
	}
	decode(t, event, &control)
	if control.Kind != "mousemove" {
		t.Fatalf("unexpected control event: %s", event.Payload)
	}

	send(t, host, protocol.MsgTypeScreenData, map[string]interface{}{"frame": "aGVsbG8="})
	expect(t, client, protocol.MsgTypeScreenData)

	send(t, client, protocol.MsgTypeEndSession, nil)
	var hostEnded, clientEnded protocol.SessionEnded
	decode(t, expect(t, host, protocol.MsgTypeSessionEnded), &hostEnded)
	decode(t, expect(t, client, protocol.MsgTypeSessionEnded), &clientEnded)
	if hostEnded.SessionID != sessionID || clientEnded.SessionID != sessionID {
		t.Fatalf("teardown for a different session: %+v / %+v", hostEnded, clientEnded)
	}
	if hostEnded.Reason != session.ReasonEnded {
		t.Fatalf("unexpected end reason: %s", hostEnded.Reason)
	}
}

func TestInvalidCodeOverWire(t *testing.T) {
	server := newTestServer(t)
	client := dial(t, server)

	send(t, client, protocol.MsgTypeConnectToScreen, &protocol.ConnectRequest{Code: "000000"})
	var errPayload protocol.ErrorPayload
	decode(t, expect(t, client, protocol.MsgTypeConnectionError), &errPayload)
	if errPayload.Code != protocol.ErrCodeInvalidOrExpired {
		t.Fatalf("unexpected error code: %s", errPayload.Code)
	}
}

func TestHostDisconnectEndsSession(t *testing.T) {
	server := newTestServer(t)
	host, client, sessionID := establish(t, server)

	host.Close()

	var ended protocol.SessionEnded
	decode(t, expect(t, client, protocol.MsgTypeSessionEnded), &ended)
	if ended.SessionID != sessionID || ended.Reason != session.ReasonDisconnected {
		t.Fatalf("unexpected teardown: %+v", ended)
	}
}

func TestPairedHostCannotStartSecondSession(t *testing.T) {
	server := newTestServer(t)
	host, client, _ := establish(t, server)

	// The host issues a fresh code without leaving its session; a second
	// client presents it and the host approves.
	send(t, host, protocol.MsgTypeGenerateCode, nil)
	var issued protocol.AccessCodeIssued
	decode(t, expect(t, host, protocol.MsgTypeAccessCode), &issued)

	intruder := dial(t, server)
	send(t, intruder, protocol.MsgTypeConnectToScreen, &protocol.ConnectRequest{Code: issued.Code})
	var req protocol.ConnectionRequest
	decode(t, expect(t, host, protocol.MsgTypeConnectionRequest), &req)
	send(t, host, protocol.MsgTypeAcceptConnection, &protocol.ConnectionDecision{ClientID: req.ClientID})

	// The acceptance is refused while the host is paired. Relay after the
	// refused accept still reaches the original client, and only it.
	send(t, host, protocol.MsgTypeScreenData, map[string]interface{}{"frame": "aGVsbG8="})
	expect(t, client, protocol.MsgTypeScreenData)
	expectSilence(t, intruder)
}

func TestHostRejectNotifiesClient(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server)
	client := dial(t, server)

	send(t, host, protocol.MsgTypeGenerateCode, nil)
	var issued protocol.AccessCodeIssued
	decode(t, expect(t, host, protocol.MsgTypeAccessCode), &issued)

	send(t, client, protocol.MsgTypeConnectToScreen, &protocol.ConnectRequest{Code: issued.Code})
	var req protocol.ConnectionRequest
	decode(t, expect(t, host, protocol.MsgTypeConnectionRequest), &req)

	send(t, host, protocol.MsgTypeRejectConnection, &protocol.ConnectionDecision{ClientID: req.ClientID})
	expect(t, client, protocol.MsgTypeConnectionRejected)

	// The code survives a rejection: a second attempt reaches the host.
	send(t, client, protocol.MsgTypeConnectToScreen, &protocol.ConnectRequest{Code: issued.Code})
	expect(t, host, protocol.MsgTypeConnectionRequest)
}
