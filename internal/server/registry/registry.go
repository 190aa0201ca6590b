// Package registry provides the in-memory connection registry for FamDesk.
//
// This package tracks every live participant connection by its opaque
// identifier and resolves identifiers to a sendable handle. Every other
// broker component looks up peers here; removal on disconnect is the
// cascade trigger for code cancellation, pending-request cleanup, and
// session teardown.
//
// Usage:
//
//	reg := NewRegistry()
//
//	// Register a connection
//	reg.Register(NewConn(id, origin, userAgent, ws))
//
//	// Deliver a message to a peer
//	reg.Send(id, protocol.NewMessage(protocol.MsgTypeSessionEnded, payload))
package registry

import (
	"sync"

	"github.com/famdesk/famdesk/pkg/protocol"
)

// JSONWriter is the subset of *websocket.Conn the registry writes through.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

// Conn is one live participant connection.
type Conn struct {
	ID        string // Opaque connection identifier
	Origin    string // Network origin, used for rate limiting
	UserAgent string // Free-form client descriptor

	socket  JSONWriter
	writeMu sync.Mutex // gorilla/websocket allows one concurrent writer
}

// NewConn creates a connection handle around a transport socket.
func NewConn(id, origin, userAgent string, socket JSONWriter) *Conn {
	return &Conn{
		ID:        id,
		Origin:    origin,
		UserAgent: userAgent,
		socket:    socket,
	}
}

// Send writes a message to the connection. Writes are serialized so that
// concurrent relay and notification paths never interleave frames.
func (c *Conn) Send(msg *protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.socket.WriteJSON(msg)
}

// Registry manages live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Register adds a connection to the registry.
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
}

// Unregister removes a connection by identifier. Removing is safe for
// identifiers that were never registered.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Get retrieves a connection by its identifier.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.conns[id]
	return conn, exists
}

// Send delivers a message to a connection if it is still registered.
// Reports whether the connection existed; a failed write on a live
// connection still counts as delivered (best-effort relay).
func (r *Registry) Send(id string, msg *protocol.Message) bool {
	conn, exists := r.Get(id)
	if !exists {
		return false
	}
	conn.Send(msg)
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
