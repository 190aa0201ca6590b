// Package protocol defines the communication protocol between the FamDesk
// broker and its participants.
//
// Every message is a JSON envelope over a WebSocket connection. The payload
// is kept as raw JSON: the broker decodes only the handshake payloads it
// acts on, and forwards relayed payloads (screen frames, input events, file
// chunks) verbatim without re-encoding them.
//
// Message Types:
//   - generate-code / access-code / code-expired: access code lifecycle
//   - connect-to-screen / connection-request: pairing handshake
//   - accept-connection / reject-connection: host decision
//   - connection-established / connection-rejected / connection-blocked /
//     connection-error: handshake outcomes
//   - screen-data / control-event / file-transfer-init / file-chunk /
//     file-transfer-complete: relayed session traffic
//   - end-session / session-ended: session teardown
//
// Usage:
//
//	msg := NewMessage(MsgTypeConnectToScreen, &ConnectRequest{Code: "482913"})
//	conn.WriteJSON(msg)
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of a protocol message.
type MessageType string

const (
	// MsgTypeGenerateCode asks the broker to issue an access code for the
	// sending connection.
	MsgTypeGenerateCode MessageType = "generate-code"
	// MsgTypeAccessCode carries a freshly issued access code to the host.
	MsgTypeAccessCode MessageType = "access-code"
	// MsgTypeCodeExpired tells the host an unconsumed code reached its TTL.
	MsgTypeCodeExpired MessageType = "code-expired"
	// MsgTypeConnectToScreen presents an access code to start a handshake.
	MsgTypeConnectToScreen MessageType = "connect-to-screen"
	// MsgTypeConnectionRequest asks the host to approve a pending client.
	MsgTypeConnectionRequest MessageType = "connection-request"
	// MsgTypeAcceptConnection is the host approving a pending client.
	MsgTypeAcceptConnection MessageType = "accept-connection"
	// MsgTypeRejectConnection is the host refusing a pending client.
	MsgTypeRejectConnection MessageType = "reject-connection"
	// MsgTypeConnectionEstablished carries the new session to both parties.
	MsgTypeConnectionEstablished MessageType = "connection-established"
	MsgTypeConnectionRejected    MessageType = "connection-rejected"
	MsgTypeConnectionBlocked     MessageType = "connection-blocked"
	MsgTypeConnectionError       MessageType = "connection-error"
	// MsgTypeScreenData is a relayed screen frame (opaque to the broker).
	MsgTypeScreenData MessageType = "screen-data"
	// MsgTypeControlEvent is a relayed input event, client to host only.
	MsgTypeControlEvent         MessageType = "control-event"
	MsgTypeFileTransferInit     MessageType = "file-transfer-init"
	MsgTypeFileChunk            MessageType = "file-chunk"
	MsgTypeFileTransferComplete MessageType = "file-transfer-complete"
	MsgTypeEndSession           MessageType = "end-session"
	MsgTypeSessionEnded         MessageType = "session-ended"
)

// Participant roles within an established session.
const (
	RoleHost   = "host"
	RoleClient = "client"
)

// Error codes carried by connection-error messages.
const (
	ErrCodeInvalid          = "INVALID_CODE"
	ErrCodeInvalidOrExpired = "INVALID_OR_EXPIRED_CODE"
	ErrCodeHostGone         = "HOST_GONE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Message is the envelope for every protocol message.
type Message struct {
	Type      MessageType     `json:"type"`                // Message type (generate-code, screen-data, etc.)
	Payload   json.RawMessage `json:"payload,omitempty"`   // Raw payload, forwarded verbatim when relayed
	Timestamp int64           `json:"timestamp,omitempty"` // Unix timestamp set by the sender
}

// ConnectRequest presents an access code to the broker.
type ConnectRequest struct {
	Code string `json:"code"` // 6-digit access code, leading zeros preserved
}

// AccessCodeIssued is sent to the host after code generation.
type AccessCodeIssued struct {
	Code      string `json:"code"`       // The issued 6-digit code
	ExpiresAt int64  `json:"expires_at"` // Unix timestamp of code expiry
}

// CodeExpired notifies the host that an outstanding code lapsed unused.
type CodeExpired struct {
	Code string `json:"code"`
}

// PeerInfo describes a connecting participant to the host.
type PeerInfo struct {
	IP        string `json:"ip"`         // Network origin of the participant
	UserAgent string `json:"user_agent"` // Free-form client descriptor
}

// ConnectionRequest asks a host to approve or refuse a client.
type ConnectionRequest struct {
	ClientID   string   `json:"client_id"`   // Connection identifier of the requester
	ClientInfo PeerInfo `json:"client_info"` // Requester origin and descriptor
}

// ConnectionDecision identifies the pending client a host acts on. It is the
// payload of both accept-connection and reject-connection.
type ConnectionDecision struct {
	ClientID string `json:"client_id"`
}

// ConnectionEstablished announces the new session to a participant.
type ConnectionEstablished struct {
	SessionID string `json:"session_id"` // Shared session identifier
	Role      string `json:"role"`       // RoleHost or RoleClient
}

// ConnectionBlocked tells an origin it exceeded the failed-attempt limit.
type ConnectionBlocked struct {
	Message string `json:"message"`
}

// ErrorPayload is the payload of connection-error messages.
type ErrorPayload struct {
	Code    string `json:"code"`    // Error code
	Message string `json:"message"` // Human-readable error message
}

// SessionEnded notifies a participant that its session was torn down.
type SessionEnded struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"` // e.g. "ended-by-participant", "inactivity-timeout"
}

// FileTransferInit announces an incoming file to the receiving participant.
type FileTransferInit struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// FileChunk carries one piece of a file in flight. The broker never decodes
// the chunk content.
type FileChunk struct {
	FileID     string `json:"file_id"`
	Chunk      string `json:"chunk"`
	ChunkIndex int    `json:"chunk_index"`
	IsLast     bool   `json:"is_last"`
}

// FileTransferComplete closes out a transfer and is recorded in the
// session's history.
type FileTransferComplete struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// NewMessage creates a Message with the given type and payload. The payload
// is marshalled immediately; a nil payload produces an empty envelope.
func NewMessage(msgType MessageType, payload interface{}) *Message {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			msg.Payload = data
		}
	}
	return msg
}

// NewRelayMessage wraps an already-encoded payload for verbatim forwarding.
func NewRelayMessage(msgType MessageType, payload json.RawMessage) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorMessage creates a connection-error message with the specified
// error code and message.
func NewErrorMessage(code, message string) *Message {
	return NewMessage(MsgTypeConnectionError, &ErrorPayload{
		Code:    code,
		Message: message,
	})
}
