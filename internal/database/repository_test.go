package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSessionAuditRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	started := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.RecordSessionStart("s-1", "482913", "host-1", "client-1", started); err != nil {
		t.Fatalf("record start failed: %v", err)
	}
	if err := repo.RecordSessionStart("s-2", "115590", "host-2", "client-2", started.Add(time.Minute)); err != nil {
		t.Fatalf("record start failed: %v", err)
	}
	if err := repo.RecordSessionEnd("s-1", "ended-by-participant", started.Add(time.Hour)); err != nil {
		t.Fatalf("record end failed: %v", err)
	}

	recent, err := repo.RecentSessions(10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected two sessions, got %d", len(recent))
	}
	if recent[0].ID != "s-2" {
		t.Fatalf("expected newest first, got %s", recent[0].ID)
	}

	ended := recent[1]
	if ended.ID != "s-1" || ended.AccessCode != "482913" || ended.HostID != "host-1" {
		t.Fatalf("unexpected session row: %+v", ended)
	}
	if ended.EndedAt == nil || ended.EndReason != "ended-by-participant" {
		t.Fatalf("expected closed session row: %+v", ended)
	}
	if recent[0].EndedAt != nil {
		t.Fatalf("live session should have no end timestamp: %+v", recent[0])
	}
}

func TestTransferAudit(t *testing.T) {
	repo := newTestRepo(t)
	started := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.RecordSessionStart("s-1", "482913", "host-1", "client-1", started); err != nil {
		t.Fatalf("record start failed: %v", err)
	}
	if err := repo.RecordTransfer("s-1", "report.pdf", 2048, "client", started.Add(time.Minute)); err != nil {
		t.Fatalf("record transfer failed: %v", err)
	}
	if err := repo.RecordTransfer("s-1", "reply.txt", 64, "host", started.Add(2*time.Minute)); err != nil {
		t.Fatalf("record transfer failed: %v", err)
	}

	transfers, err := repo.TransfersForSession("s-1")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected two transfers, got %d", len(transfers))
	}
	if transfers[0].FileName != "report.pdf" || transfers[0].SenderRole != "client" {
		t.Fatalf("unexpected first transfer: %+v", transfers[0])
	}
	if transfers[1].FileSize != 64 || transfers[1].SenderRole != "host" {
		t.Fatalf("unexpected second transfer: %+v", transfers[1])
	}

	if other, err := repo.TransfersForSession("s-2"); err != nil || len(other) != 0 {
		t.Fatalf("expected no transfers for other session: %v %+v", err, other)
	}
}
