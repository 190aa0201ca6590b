// Package relay forwards opaque payloads between the two participants of
// an established session.
//
// Every operation resolves the sender's session first and is a silent
// no-op if none exists, which covers the race where a session ended just
// before the message arrived. Relay operations never produce
// participant-visible errors.
package relay

import (
	"encoding/json"
	"log"

	"github.com/famdesk/famdesk/internal/server/registry"
	"github.com/famdesk/famdesk/internal/server/session"
	"github.com/famdesk/famdesk/pkg/protocol"
)

// Router forwards session traffic between paired participants.
type Router struct {
	sessions *session.Manager
	conns    *registry.Registry
}

// NewRouter creates a relay router over the session manager and
// connection registry.
func NewRouter(sessions *session.Manager, conns *registry.Registry) *Router {
	return &Router{
		sessions: sessions,
		conns:    conns,
	}
}

// peer returns the other participant of the sender's session.
func peer(info session.Info, senderID string) string {
	if info.HostID == senderID {
		return info.ClientID
	}
	return info.HostID
}

// ScreenData forwards a screen frame to the other participant, in either
// direction, and refreshes the session's inactivity clock on delivery.
// Screen traffic is the session's liveness signal.
func (r *Router) ScreenData(senderID string, payload json.RawMessage) {
	info, exists := r.sessions.FindByParticipant(senderID)
	if !exists {
		return
	}
	if r.conns.Send(peer(info, senderID), protocol.NewRelayMessage(protocol.MsgTypeScreenData, payload)) {
		r.sessions.Touch(info.ID)
	}
}

// ControlEvent forwards an input event to the host. Only the session's
// client may send control events; a host-originated event is dropped.
func (r *Router) ControlEvent(senderID string, payload json.RawMessage) {
	info, exists := r.sessions.FindByParticipant(senderID)
	if !exists || info.ClientID != senderID {
		return
	}
	r.conns.Send(info.HostID, protocol.NewRelayMessage(protocol.MsgTypeControlEvent, payload))
}

// FileTransferInit forwards a transfer announcement to the other
// participant.
func (r *Router) FileTransferInit(senderID string, payload json.RawMessage) {
	r.forward(senderID, protocol.MsgTypeFileTransferInit, payload)
}

// FileChunk forwards one file chunk verbatim. Chunks are relayed as
// received, in the order received; the broker performs no reassembly or
// acknowledgement.
func (r *Router) FileChunk(senderID string, payload json.RawMessage) {
	r.forward(senderID, protocol.MsgTypeFileChunk, payload)
}

// FileTransferComplete forwards the completion notice and appends a record
// to the session's transfer history.
func (r *Router) FileTransferComplete(senderID string, payload json.RawMessage) {
	info, exists := r.sessions.FindByParticipant(senderID)
	if !exists {
		return
	}

	var complete protocol.FileTransferComplete
	if err := json.Unmarshal(payload, &complete); err != nil {
		log.Printf("Unreadable transfer completion from %s: %v", senderID, err)
	} else {
		r.sessions.RecordTransfer(info.ID, complete.FileName, complete.FileSize, senderID)
	}

	r.conns.Send(peer(info, senderID), protocol.NewRelayMessage(protocol.MsgTypeFileTransferComplete, payload))
}

func (r *Router) forward(senderID string, msgType protocol.MessageType, payload json.RawMessage) {
	info, exists := r.sessions.FindByParticipant(senderID)
	if !exists {
		return
	}
	r.conns.Send(peer(info, senderID), protocol.NewRelayMessage(msgType, payload))
}
