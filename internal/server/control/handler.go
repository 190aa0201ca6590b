// Package control is the transport boundary of the FamDesk broker.
//
// It upgrades HTTP requests to WebSocket connections, assigns each
// connection an opaque identifier, and dispatches inbound messages to the
// handshake broker and the relay router. Disconnect is the dominant
// cancellation signal: the read loop's exit synchronously removes the
// connection from every table it participates in before returning.
package control

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/famdesk/famdesk/internal/server/access"
	"github.com/famdesk/famdesk/internal/server/broker"
	"github.com/famdesk/famdesk/internal/server/registry"
	"github.com/famdesk/famdesk/internal/server/relay"
	"github.com/famdesk/famdesk/internal/server/session"
	"github.com/famdesk/famdesk/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves participant WebSocket connections.
type Handler struct {
	conns    *registry.Registry
	codes    *access.Registry
	broker   *broker.Broker
	sessions *session.Manager
	relay    *relay.Router

	// newID generates connection identifiers; replaced in tests.
	newID func() string
}

// NewHandler creates the WebSocket handler over the broker components.
func NewHandler(conns *registry.Registry, codes *access.Registry, b *broker.Broker, sessions *session.Manager, r *relay.Router) *Handler {
	return &Handler{
		conns:    conns,
		codes:    codes,
		broker:   b,
		sessions: sessions,
		relay:    r,
		newID:    uuid.NewString,
	}
}

// HandleWebSocket upgrades the request and runs the connection's read loop
// until it disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer ws.Close()

	conn := registry.NewConn(h.newID(), originFromRequest(r), r.UserAgent(), ws)
	h.conns.Register(conn)
	log.Printf("Participant %s connected from %s", conn.ID, conn.Origin)

	defer h.cleanup(conn)
	h.readLoop(ws, conn)
}

func (h *Handler) readLoop(ws *websocket.Conn, conn *registry.Conn) {
	for {
		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			log.Printf("Participant %s disconnected: %v", conn.ID, err)
			return
		}

		switch msg.Type {
		case protocol.MsgTypeGenerateCode:
			h.handleGenerateCode(conn)
		case protocol.MsgTypeConnectToScreen:
			var req protocol.ConnectRequest
			decodePayload(msg.Payload, &req)
			h.broker.RequestConnection(conn.ID, req.Code, conn.Origin, conn.UserAgent)
		case protocol.MsgTypeAcceptConnection:
			var decision protocol.ConnectionDecision
			decodePayload(msg.Payload, &decision)
			h.broker.Accept(conn.ID, decision.ClientID)
		case protocol.MsgTypeRejectConnection:
			var decision protocol.ConnectionDecision
			decodePayload(msg.Payload, &decision)
			h.broker.Reject(conn.ID, decision.ClientID)
		case protocol.MsgTypeScreenData:
			h.relay.ScreenData(conn.ID, msg.Payload)
		case protocol.MsgTypeControlEvent:
			h.relay.ControlEvent(conn.ID, msg.Payload)
		case protocol.MsgTypeFileTransferInit:
			h.relay.FileTransferInit(conn.ID, msg.Payload)
		case protocol.MsgTypeFileChunk:
			h.relay.FileChunk(conn.ID, msg.Payload)
		case protocol.MsgTypeFileTransferComplete:
			h.relay.FileTransferComplete(conn.ID, msg.Payload)
		case protocol.MsgTypeEndSession:
			if info, exists := h.sessions.FindByParticipant(conn.ID); exists {
				h.sessions.End(info.ID, session.ReasonEnded)
			}
		default:
			log.Printf("Unknown message type from %s: %s", conn.ID, msg.Type)
		}
	}
}

func (h *Handler) handleGenerateCode(conn *registry.Conn) {
	code, expiresAt, err := h.codes.Issue(conn.ID, conn.UserAgent)
	if err != nil {
		log.Printf("Code issue failed for %s: %v", conn.ID, err)
		conn.Send(protocol.NewErrorMessage(protocol.ErrCodeInternal, "Could not generate an access code"))
		return
	}
	conn.Send(protocol.NewMessage(protocol.MsgTypeAccessCode, &protocol.AccessCodeIssued{
		Code:      code,
		ExpiresAt: expiresAt.Unix(),
	}))
}

// cleanup removes the connection from every table it participates in:
// code ownership, pending request, session participancy, and finally the
// connection registry itself.
func (h *Handler) cleanup(conn *registry.Conn) {
	h.conns.Unregister(conn.ID)
	h.codes.CancelAllForHost(conn.ID)
	h.broker.DropPending(conn.ID)
	if info, exists := h.sessions.FindByParticipant(conn.ID); exists {
		h.sessions.End(info.ID, session.ReasonDisconnected)
	}
}

// decodePayload tolerates missing or malformed payloads: the zero value of
// the target then drives the normal error path (e.g. an empty code).
func decodePayload(payload json.RawMessage, v interface{}) {
	if len(payload) == 0 {
		return
	}
	if err := json.Unmarshal(payload, v); err != nil {
		log.Printf("Malformed payload: %v", err)
	}
}

// originFromRequest extracts the participant's network origin, preferring
// the address set by a fronting proxy.
func originFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// The first entry is the original client when chained.
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
