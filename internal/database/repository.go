package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Repository provides database operations for the FamDesk audit log.
type Repository struct {
	db *sql.DB // SQLite database connection
}

// NewRepository creates a new Repository instance with the specified
// database path.
//
// It opens the database, verifies connectivity, and runs migrations if
// needed.
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_logs (
		id TEXT PRIMARY KEY,
		access_code TEXT NOT NULL,
		host_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		end_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_session_logs_started_at ON session_logs(started_at);

	CREATE TABLE IF NOT EXISTS transfer_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		sender_role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES session_logs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transfer_logs_session_id ON transfer_logs(session_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// RecordSessionStart inserts the audit row for a newly established session.
func (r *Repository) RecordSessionStart(id, accessCode, hostID, clientID string, startedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO session_logs (id, access_code, host_id, client_id, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, accessCode, hostID, clientID, startedAt)
	return err
}

// RecordSessionEnd closes out a session's audit row.
func (r *Repository) RecordSessionEnd(id, reason string, endedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE session_logs SET ended_at = ?, end_reason = ? WHERE id = ?
	`, endedAt, reason, id)
	return err
}

// RecordTransfer inserts the audit row for a completed file transfer.
func (r *Repository) RecordTransfer(sessionID, fileName string, fileSize int64, senderRole string, at time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO transfer_logs (session_id, file_name, file_size, sender_role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, fileName, fileSize, senderRole, at)
	return err
}

// RecentSessions returns the most recently started sessions, newest first.
func (r *Repository) RecentSessions(limit int) ([]*SessionLog, error) {
	rows, err := r.db.Query(`
		SELECT id, access_code, host_id, client_id, started_at, ended_at, end_reason
		FROM session_logs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionLog
	for rows.Next() {
		var s SessionLog
		var endedAt sql.NullTime
		var endReason sql.NullString
		if err := rows.Scan(
			&s.ID, &s.AccessCode, &s.HostID, &s.ClientID,
			&s.StartedAt, &endedAt, &endReason,
		); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			s.EndedAt = &endedAt.Time
		}
		if endReason.Valid {
			s.EndReason = endReason.String
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// TransfersForSession returns a session's completed transfers in
// completion order.
func (r *Repository) TransfersForSession(sessionID string) ([]*TransferLog, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, file_name, file_size, sender_role, created_at
		FROM transfer_logs WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*TransferLog
	for rows.Next() {
		var t TransferLog
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.FileName, &t.FileSize,
			&t.SenderRole, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		transfers = append(transfers, &t)
	}
	return transfers, rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Auditor adapts the Repository to the session manager's audit interface.
// Write failures are logged and swallowed: the audit trail must never
// affect broker behaviour.
type Auditor struct {
	repo *Repository
}

// NewAuditor wraps a repository for use as a session audit sink.
func NewAuditor(repo *Repository) *Auditor {
	return &Auditor{repo: repo}
}

func (a *Auditor) SessionStarted(sessionID, accessCode, hostID, clientID string, startedAt time.Time) {
	if err := a.repo.RecordSessionStart(sessionID, accessCode, hostID, clientID, startedAt); err != nil {
		log.Printf("Failed to record session start %s: %v", sessionID, err)
	}
}

func (a *Auditor) SessionEnded(sessionID, reason string, endedAt time.Time) {
	if err := a.repo.RecordSessionEnd(sessionID, reason, endedAt); err != nil {
		log.Printf("Failed to record session end %s: %v", sessionID, err)
	}
}

func (a *Auditor) FileTransferred(sessionID, fileName string, fileSize int64, senderRole string, at time.Time) {
	if err := a.repo.RecordTransfer(sessionID, fileName, fileSize, senderRole, at); err != nil {
		log.Printf("Failed to record transfer in session %s: %v", sessionID, err)
	}
}
