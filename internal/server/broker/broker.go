// Package broker drives the pairing handshake between a client presenting
// an access code and the host that issued it.
//
// Per client attempt the state machine is
// Idle -> AwaitingHostDecision -> {Established | Rejected | TimedOut}.
// Handshake errors are reported to the requesting participant only and
// never affect other participants or codes. Stale accept/reject actions
// (the request or connection vanished first) are silently ignored: they
// result from benign races with disconnect.
package broker

import (
	"log"
	"regexp"
	"sync"

	"github.com/famdesk/famdesk/internal/server/access"
	"github.com/famdesk/famdesk/internal/server/ratelimit"
	"github.com/famdesk/famdesk/internal/server/registry"
	"github.com/famdesk/famdesk/internal/server/session"
	"github.com/famdesk/famdesk/pkg/protocol"
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// pendingRequest is a client's in-flight request against a code, before
// the host decides. At most one exists per requesting connection.
type pendingRequest struct {
	code      string
	origin    string
	userAgent string
}

// Broker composes the code registry, rate limiter, connection registry,
// and session manager into the handshake flow.
type Broker struct {
	codes    *access.Registry
	limiter  *ratelimit.Limiter
	conns    *registry.Registry
	sessions *session.Manager

	// mu guards pending and serializes accept so a code is never consumed
	// twice and a session never created twice for the same handshake.
	mu      sync.Mutex
	pending map[string]*pendingRequest // keyed by client connection ID
}

// NewBroker creates a handshake broker over the given components.
func NewBroker(codes *access.Registry, limiter *ratelimit.Limiter, conns *registry.Registry, sessions *session.Manager) *Broker {
	return &Broker{
		codes:    codes,
		limiter:  limiter,
		conns:    conns,
		sessions: sessions,
		pending:  make(map[string]*pendingRequest),
	}
}

// RequestConnection handles a client presenting an access code. Outcomes
// are delivered to the requesting connection as connection-error,
// connection-blocked, or a connection-request forwarded to the host.
func (b *Broker) RequestConnection(clientID, code, origin, userAgent string) {
	if !codePattern.MatchString(code) {
		b.conns.Send(clientID, protocol.NewErrorMessage(
			protocol.ErrCodeInvalid, "Invalid access code"))
		return
	}

	// A blocked origin is refused outright until its window clears, even
	// if the code it presents is valid.
	if b.limiter.IsBlocked(origin) {
		b.sendBlocked(clientID)
		return
	}

	hostID, err := b.codes.Validate(code)
	if err != nil {
		b.conns.Send(clientID, protocol.NewErrorMessage(
			protocol.ErrCodeInvalidOrExpired, "Invalid or expired access code"))
		if b.limiter.RecordFailure(origin) {
			b.sendBlocked(clientID)
		}
		return
	}

	hostConn, exists := b.conns.Get(hostID)
	if !exists {
		b.codes.Consume(code)
		b.conns.Send(clientID, protocol.NewErrorMessage(
			protocol.ErrCodeHostGone, "The host is no longer connected"))
		return
	}

	b.mu.Lock()
	b.pending[clientID] = &pendingRequest{
		code:      code,
		origin:    origin,
		userAgent: userAgent,
	}
	b.mu.Unlock()

	// The request carries the client's origin and descriptor, never the code.
	hostConn.Send(protocol.NewMessage(protocol.MsgTypeConnectionRequest, &protocol.ConnectionRequest{
		ClientID: clientID,
		ClientInfo: protocol.PeerInfo{
			IP:        origin,
			UserAgent: userAgent,
		},
	}))
}

// Accept handles the host approving a pending client: it atomically
// consumes the code, removes the pending request, and creates the session.
// A no-op if any precondition fails (stale UI action after a disconnect).
func (b *Broker) Accept(hostID, clientID string) {
	b.mu.Lock()

	p, exists := b.pending[clientID]
	if !exists {
		b.mu.Unlock()
		return
	}
	owner, err := b.codes.Validate(p.code)
	if err != nil || owner != hostID {
		b.mu.Unlock()
		return
	}
	if _, exists := b.conns.Get(clientID); !exists {
		b.mu.Unlock()
		return
	}
	// A connection participates in at most one live session: a host that
	// re-issued a code mid-session, or a client already paired elsewhere,
	// cannot be paired again until its current session ends.
	if _, exists := b.sessions.FindByParticipant(hostID); exists {
		b.mu.Unlock()
		return
	}
	if _, exists := b.sessions.FindByParticipant(clientID); exists {
		b.mu.Unlock()
		return
	}

	b.codes.Consume(p.code)
	delete(b.pending, clientID)
	info := b.sessions.Create(hostID, clientID, p.code)
	b.mu.Unlock()

	b.conns.Send(hostID, protocol.NewMessage(protocol.MsgTypeConnectionEstablished, &protocol.ConnectionEstablished{
		SessionID: info.ID,
		Role:      protocol.RoleHost,
	}))
	b.conns.Send(clientID, protocol.NewMessage(protocol.MsgTypeConnectionEstablished, &protocol.ConnectionEstablished{
		SessionID: info.ID,
		Role:      protocol.RoleClient,
	}))

	log.Printf("Session %s established: host %s, client %s", info.ID, hostID, clientID)
}

// Reject handles the host refusing a pending client. Only the host that
// owns the presented code may reject, mirroring Accept. The access code is
// untouched: it stays valid for other clients until its own expiry.
func (b *Broker) Reject(hostID, clientID string) {
	b.mu.Lock()
	p, exists := b.pending[clientID]
	if !exists {
		b.mu.Unlock()
		return
	}
	owner, err := b.codes.Validate(p.code)
	if err != nil || owner != hostID {
		b.mu.Unlock()
		return
	}
	delete(b.pending, clientID)
	b.mu.Unlock()

	b.conns.Send(clientID, protocol.NewMessage(protocol.MsgTypeConnectionRejected, nil))
}

// DropPending removes the connection's in-flight request, if any. Invoked
// on requester disconnect.
func (b *Broker) DropPending(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, connID)
}

func (b *Broker) sendBlocked(clientID string) {
	b.conns.Send(clientID, protocol.NewMessage(protocol.MsgTypeConnectionBlocked, &protocol.ConnectionBlocked{
		Message: "Too many failed attempts. Please try again later.",
	}))
}
