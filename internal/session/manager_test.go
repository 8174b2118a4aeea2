package session

import (
	"context"
	"os"
	"testing"

	"github.com/opensource-identity/harrier/internal/domain"
	"github.com/opensource-identity/harrier/internal/repository"
)

func newTestManager(t *testing.T) (*Manager, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "harrier-session-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewManager(repo), repo
}

func TestManagerCreate(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "incoming/signals.csv", "idp-001", "analyst")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if session.ID == 0 {
		t.Error("expected assigned session id")
	}
	if session.PassedValidation {
		t.Error("new session must start unvalidated")
	}
	if session.SourceFileName != "incoming/signals.csv" {
		t.Errorf("unexpected file name %s", session.SourceFileName)
	}
}

func TestManagerCreateRejectsBlankIDP(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.Create(context.Background(), "incoming/signals.csv", "", "analyst"); err == nil {
		t.Error("expected error for blank idp entity id")
	}
}

func TestManagerMarkValidated(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "incoming/signals.csv", "idp-001", "analyst")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := mgr.MarkValidated(ctx, session); err != nil {
		t.Fatalf("MarkValidated failed: %v", err)
	}
	if !session.PassedValidation {
		t.Error("expected in-memory session to be flagged validated")
	}

	stored, err := repo.GetUploadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetUploadSession failed: %v", err)
	}
	if !stored.PassedValidation {
		t.Error("expected stored session to be flagged validated")
	}
}

func TestManagerRecordRowFailure(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.Create(ctx, "incoming/signals.csv", "idp-001", "analyst")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	message := "Failed to store IDP fraud event: unparsable timestamp \"xx\" (line 3)"
	if err := mgr.RecordRowFailure(ctx, session, 3, "timestamp", message); err != nil {
		t.Fatalf("RecordRowFailure failed: %v", err)
	}

	failures, err := repo.ListRowFailures(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListRowFailures failed: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].Row != 3 || failures[0].Field != "timestamp" || failures[0].Message != message {
		t.Errorf("unexpected failure record: %+v", failures[0])
	}
}
