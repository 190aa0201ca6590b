// Package session owns the set of active paired sessions.
//
// A session binds exactly one host connection and one client connection
// from the moment the host accepts a pairing request until an explicit end,
// an inactivity timeout, or either participant's disconnect. A connection
// participates in at most one live session at a time.
package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/famdesk/famdesk/pkg/protocol"
)

// End reasons reported on session-ended notifications and audit rows.
const (
	ReasonEnded        = "ended-by-participant"
	ReasonInactivity   = "inactivity-timeout"
	ReasonDisconnected = "participant-disconnected"
)

// Transfer is one completed file transfer in a session's history.
type Transfer struct {
	Name      string
	Size      int64
	Timestamp time.Time
	Sender    string // Connection identifier of the sending participant
}

type session struct {
	id         string
	hostID     string
	clientID   string
	startedAt  time.Time
	accessCode string
	transfers  []Transfer

	// timerGen invalidates stale inactivity timers: every rearm bumps the
	// generation, and a firing timer with an old generation is a no-op.
	timerGen int
	timer    *clock.Timer
}

// Info is the read-only view of a session handed to callers.
type Info struct {
	ID       string
	HostID   string
	ClientID string
}

func (s *session) info() Info {
	return Info{ID: s.id, HostID: s.hostID, ClientID: s.clientID}
}

// Sender delivers messages to live connections. Satisfied by the
// connection registry.
type Sender interface {
	Send(connID string, msg *protocol.Message) bool
}

// Recorder receives audit events for established sessions. Implementations
// must not call back into the Manager.
type Recorder interface {
	SessionStarted(sessionID, accessCode, hostID, clientID string, startedAt time.Time)
	SessionEnded(sessionID, reason string, endedAt time.Time)
	FileTransferred(sessionID, fileName string, fileSize int64, senderRole string, at time.Time)
}

// Manager tracks active sessions and their inactivity timers.
type Manager struct {
	mu          sync.Mutex
	clock       clock.Clock
	idleTimeout time.Duration
	sender      Sender
	recorder    Recorder
	sessions    map[string]*session
	byConn      map[string]string // connection ID -> session ID

	// newID generates session identifiers; replaced in tests.
	newID func() string
}

// NewManager creates a session manager. recorder may be nil.
func NewManager(clk clock.Clock, idleTimeout time.Duration, sender Sender, recorder Recorder) *Manager {
	return &Manager{
		clock:       clk,
		idleTimeout: idleTimeout,
		sender:      sender,
		recorder:    recorder,
		sessions:    make(map[string]*session),
		byConn:      make(map[string]string),
		newID:       uuid.NewString,
	}
}

// Create stores a new session for the given pair and arms its inactivity
// timer. The caller must first check FindByParticipant for both connections:
// Create does not reject a participant that is already in a session, and a
// duplicate would orphan the earlier session's byConn mapping.
func (m *Manager) Create(hostID, clientID, accessCode string) Info {
	m.mu.Lock()

	s := &session{
		id:         m.newID(),
		hostID:     hostID,
		clientID:   clientID,
		startedAt:  m.clock.Now(),
		accessCode: accessCode,
	}
	m.sessions[s.id] = s
	m.byConn[hostID] = s.id
	m.byConn[clientID] = s.id
	m.armLocked(s)

	info := s.info()
	startedAt := s.startedAt
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.SessionStarted(info.ID, accessCode, hostID, clientID, startedAt)
	}
	return info
}

// armLocked cancels any running inactivity timer and starts a fresh one.
// Callers must hold m.mu.
func (m *Manager) armLocked(s *session) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	id := s.id
	s.timer = m.clock.AfterFunc(m.idleTimeout, func() {
		m.expire(id, gen)
	})
}

func (m *Manager) expire(sessionID string, gen int) {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists || s.timerGen != gen {
		m.mu.Unlock()
		return
	}
	m.endLocked(s, ReasonInactivity)
}

// Touch resets the session's inactivity timer. A no-op for unknown IDs.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[sessionID]; exists {
		m.armLocked(s)
	}
}

// FindByParticipant resolves the session a connection belongs to.
func (m *Manager) FindByParticipant(connID string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, exists := m.byConn[connID]
	if !exists {
		return Info{}, false
	}
	return m.sessions[sessionID].info(), true
}

// RecordTransfer appends a completed file transfer to the session history
// and forwards it to the audit recorder.
func (m *Manager) RecordTransfer(sessionID, fileName string, fileSize int64, senderID string) {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	s.transfers = append(s.transfers, Transfer{
		Name:      fileName,
		Size:      fileSize,
		Timestamp: now,
		Sender:    senderID,
	})
	role := protocol.RoleClient
	if senderID == s.hostID {
		role = protocol.RoleHost
	}
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.FileTransferred(sessionID, fileName, fileSize, role, now)
	}
}

// End tears a session down and notifies both still-connected participants.
// Idempotent: a second call for an already-removed identifier is a no-op.
func (m *Manager) End(sessionID, reason string) bool {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return false
	}
	m.endLocked(s, reason)
	return true
}

// endLocked removes the session and releases m.mu before delivering the
// teardown notifications.
func (m *Manager) endLocked(s *session, reason string) {
	s.timer.Stop()
	s.timerGen++
	delete(m.sessions, s.id)
	delete(m.byConn, s.hostID)
	delete(m.byConn, s.clientID)
	info := s.info()
	m.mu.Unlock()

	msg := protocol.NewMessage(protocol.MsgTypeSessionEnded, &protocol.SessionEnded{
		SessionID: info.ID,
		Reason:    reason,
	})
	m.sender.Send(info.HostID, msg)
	m.sender.Send(info.ClientID, msg)

	if m.recorder != nil {
		m.recorder.SessionEnded(info.ID, reason, m.clock.Now())
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
