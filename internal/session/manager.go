// Package session owns the lifecycle of one upload attempt.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-identity/harrier/internal/domain"
)

// Manager creates import sessions, marks them validated and appends their
// row-failure audit trail.
type Manager struct {
	repo domain.Repository
}

// NewManager creates a session manager.
func NewManager(repo domain.Repository) *Manager {
	return &Manager{repo: repo}
}

// Create inserts a new session with passed_validation=false and returns it
// with its assigned id. Data-integrity violations are surfaced to the caller.
func (m *Manager) Create(ctx context.Context, filename, idpEntityID, uploadedBy string) (*domain.UploadSession, error) {
	session := &domain.UploadSession{
		SourceFileName: filename,
		IDPEntityID:    idpEntityID,
		UploadedBy:     uploadedBy,
	}

	if err := m.repo.CreateUploadSession(ctx, session); err != nil {
		return nil, err
	}

	slog.Info("created import session",
		"session_id", session.ID,
		"file", filename,
		"idp_entity_id", idpEntityID,
	)

	return session, nil
}

// MarkValidated flips the session's passed_validation flag. Only called
// once, after a batch with zero row failures.
func (m *Manager) MarkValidated(ctx context.Context, session *domain.UploadSession) error {
	if err := m.repo.MarkSessionValidated(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to mark session %d validated: %w", session.ID, err)
	}
	session.PassedValidation = true
	return nil
}

// RecordRowFailure appends one failure entry for the session. An error here
// is fatal to the whole import: losing the audit trail of why a batch failed
// is worse than aborting.
func (m *Manager) RecordRowFailure(ctx context.Context, session *domain.UploadSession, row int, field, message string) error {
	failure := &domain.RowFailure{
		UploadSessionID: session.ID,
		Row:             row,
		Field:           field,
		Message:         message,
	}

	if err := m.repo.RecordRowFailure(ctx, failure); err != nil {
		return fmt.Errorf("failed to record row failure for session %d: %w", session.ID, err)
	}

	slog.Warn("recorded row failure",
		"session_id", session.ID,
		"row", row,
		"field", field,
		"message", message,
	)

	return nil
}
