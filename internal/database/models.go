// Package database provides the audit log for the FamDesk broker.
//
// This package records established sessions and completed file transfers
// to SQLite. Rows are an operator-facing audit trail only: the broker
// never reads them back to make decisions, so broker state remains fully
// in-memory.
//
// Models:
//   - SessionLog: One row per established session
//   - TransferLog: One row per completed file transfer
//
// Usage:
//
//	repo, err := NewRepository("famdesk.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	recent, err := repo.RecentSessions(20)
package database

import (
	"time"
)

// SessionLog is the audit row for one established session.
type SessionLog struct {
	ID         string     `db:"id"`          // Session identifier
	AccessCode string     `db:"access_code"` // Code the session was created from
	HostID     string     `db:"host_id"`     // Host connection identifier
	ClientID   string     `db:"client_id"`   // Client connection identifier
	StartedAt  time.Time  `db:"started_at"`  // Establishment timestamp
	EndedAt    *time.Time `db:"ended_at"`    // Teardown timestamp, nil while live
	EndReason  string     `db:"end_reason"`  // Teardown reason
}

// TransferLog is the audit row for one completed file transfer.
type TransferLog struct {
	ID         int64     `db:"id"`          // Unique log entry identifier
	SessionID  string    `db:"session_id"`  // Owning session
	FileName   string    `db:"file_name"`   // Transferred file name
	FileSize   int64     `db:"file_size"`   // Transferred file size in bytes
	SenderRole string    `db:"sender_role"` // host or client
	CreatedAt  time.Time `db:"created_at"`  // Completion timestamp
}
