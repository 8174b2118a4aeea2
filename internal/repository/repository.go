// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-identity/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CreateUploadSession inserts a new session with passed_validation=false and
// assigns its id. Constraint violations are surfaced to the caller.
func (r *SQLRepository) CreateUploadSession(ctx context.Context, session *domain.UploadSession) error {
	if session.SourceFileName == "" || session.IDPEntityID == "" {
		return fmt.Errorf("%w: source file name and idp entity id are required", ErrInvalidInput)
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO upload_sessions (time_stamp, source_file_name, idp_entity_id, userid, passed_validation)
		VALUES (?, ?, ?, ?, 0)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, r.rebind(query),
		session.CreatedAt, session.SourceFileName, session.IDPEntityID, session.UploadedBy,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to store upload session for file %s, idp %s: %w",
			session.SourceFileName, session.IDPEntityID, err)
	}

	session.PassedValidation = false
	return nil
}

// MarkSessionValidated flips passed_validation to true. Once set it is never
// reverted; callers only invoke this after a batch with zero row failures.
func (r *SQLRepository) MarkSessionValidated(ctx context.Context, sessionID int64) error {
	query := `
		UPDATE upload_sessions
		   SET passed_validation = 1
		 WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), sessionID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetUploadSession retrieves a session by id.
func (r *SQLRepository) GetUploadSession(ctx context.Context, sessionID int64) (*domain.UploadSession, error) {
	query := `
		SELECT id, time_stamp, source_file_name, idp_entity_id, userid, passed_validation
		FROM upload_sessions
		WHERE id = ?
	`

	var s domain.UploadSession
	var validated int

	err := r.db.QueryRowContext(ctx, r.rebind(query), sessionID).Scan(
		&s.ID, &s.CreatedAt, &s.SourceFileName, &s.IDPEntityID, &s.UploadedBy, &validated,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.PassedValidation = validated == 1
	return &s, nil
}

// RecordRowFailure appends one row-level failure entry.
func (r *SQLRepository) RecordRowFailure(ctx context.Context, failure *domain.RowFailure) error {
	if failure.UploadSessionID == 0 {
		return fmt.Errorf("%w: upload session id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO upload_session_validation_failures (upload_session_id, "row", field, message)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		failure.UploadSessionID, failure.Row, failure.Field, failure.Message,
	)
	return err
}

// ListRowFailures returns a session's failure entries in insertion order.
func (r *SQLRepository) ListRowFailures(ctx context.Context, sessionID int64) ([]*domain.RowFailure, error) {
	query := `
		SELECT upload_session_id, "row", field, message
		FROM upload_session_validation_failures
		WHERE upload_session_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []*domain.RowFailure
	for rows.Next() {
		var f domain.RowFailure
		if err := rows.Scan(&f.UploadSessionID, &f.Row, &f.Field, &f.Message); err != nil {
			return nil, err
		}
		failures = append(failures, &f)
	}

	return failures, rows.Err()
}

// SaveFraudSignal writes one aggregated record inside a single transaction:
// the base fields upsert by natural key (the existing row id is reused on
// re-upload), then each contra-indicator count is merged with an atomic
// insert-or-increment. Any failure rolls back the whole record.
func (r *SQLRepository) SaveFraudSignal(ctx context.Context, signal *domain.FraudSignal) (int64, error) {
	if signal.IDPEntityID == "" || signal.IDPEventID == "" {
		return 0, fmt.Errorf("%w: idp entity id and idp event id are required", ErrInvalidInput)
	}
	if signal.UploadSessionID == 0 {
		return 0, fmt.Errorf("%w: upload session id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO idp_fraud_events
		(idp_entity_id, idp_event_id, time_stamp, fid_code, request_id, pid, client_ip_address, contra_score, upload_session_id, fraud_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idp_entity_id, idp_event_id) DO UPDATE SET
			time_stamp = excluded.time_stamp,
			fid_code = excluded.fid_code,
			request_id = excluded.request_id,
			pid = excluded.pid,
			client_ip_address = excluded.client_ip_address,
			contra_score = excluded.contra_score,
			upload_session_id = excluded.upload_session_id,
			fraud_event_id = COALESCE(idp_fraud_events.fraud_event_id, excluded.fraud_event_id)
		RETURNING id
	`

	var id int64
	err = tx.QueryRowContext(ctx, r.rebind(upsert),
		signal.IDPEntityID, signal.IDPEventID, signal.OccurredAt, signal.FIDCode,
		signal.RequestID, signal.PID, signal.ClientIPAddress, signal.ContraScore,
		signal.UploadSessionID, signal.FraudEventID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to store IDP fraud event %s: %w", signal.IDPEventID, err)
	}

	merge := `
		INSERT INTO idp_fraud_event_contraindicators (idp_fraud_events_id, contraindicator_code, count)
		VALUES (?, ?, ?)
		ON CONFLICT (idp_fraud_events_id, contraindicator_code) DO UPDATE SET
			count = idp_fraud_event_contraindicators.count + excluded.count
	`

	for _, code := range sortedCodes(signal.ContraIndicators) {
		if _, err := tx.ExecContext(ctx, r.rebind(merge), id, code, signal.ContraIndicators[code]); err != nil {
			return 0, fmt.Errorf("failed to store contra-indicator %s for event %s: %w",
				code, signal.IDPEventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit IDP fraud event %s: %w", signal.IDPEventID, err)
	}

	signal.ID = id
	return id, nil
}

// GetFraudSignal retrieves a persisted signal and its contra-indicator counts.
func (r *SQLRepository) GetFraudSignal(ctx context.Context, id int64) (*domain.FraudSignal, error) {
	query := `
		SELECT id, idp_entity_id, idp_event_id, time_stamp, fid_code,
		       request_id, pid, client_ip_address, contra_score, upload_session_id, fraud_event_id
		FROM idp_fraud_events
		WHERE id = ?
	`

	s := domain.FraudSignal{ContraIndicators: make(map[string]int)}
	var fraudEventID sql.NullInt64

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&s.ID, &s.IDPEntityID, &s.IDPEventID, &s.OccurredAt, &s.FIDCode,
		&s.RequestID, &s.PID, &s.ClientIPAddress, &s.ContraScore, &s.UploadSessionID, &fraudEventID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if fraudEventID.Valid {
		s.FraudEventID = &fraudEventID.Int64
	}

	counts := `
		SELECT contraindicator_code, count
		FROM idp_fraud_event_contraindicators
		WHERE idp_fraud_events_id = ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(counts), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, err
		}
		s.ContraIndicators[code] = count
	}

	return &s, rows.Err()
}

// FindFraudEvent looks up a recorded fraud event by natural key.
// Returns ErrNotFound when no event matches.
func (r *SQLRepository) FindFraudEvent(ctx context.Context, idpEntityID, idpEventID string) (int64, error) {
	if idpEntityID == "" || idpEventID == "" {
		return 0, fmt.Errorf("%w: idp entity id and idp event id are required", ErrInvalidInput)
	}

	query := `
		SELECT id
		FROM fraud_events
		WHERE entity_id = ? AND fraud_event_id = ?
	`

	var id int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), idpEntityID, idpEventID).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	return id, nil
}

// SaveFraudEvent records a fraud event in the audit trail. An event already
// recorded under the same natural key is skipped with a warning; there is no
// need to retry that message.
func (r *SQLRepository) SaveFraudEvent(ctx context.Context, event *domain.FraudEvent) error {
	if event.EntityID == "" || event.FraudEventID == "" {
		return fmt.Errorf("%w: entity id and fraud event id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO fraud_events
		(event_id, time_stamp, session_id, hashed_persistent_id, request_id, entity_id, fraud_event_id, fraud_indicator, transaction_entity_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, fraud_event_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		event.EventID, event.Timestamp, event.SessionID, event.HashedPID,
		event.RequestID, event.EntityID, event.FraudEventID, event.GPG45Status, event.TransactionID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("fraud event already recorded",
			"entity_id", event.EntityID,
			"fraud_event_id", event.FraudEventID,
		)
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func sortedCodes(counts map[string]int) []string {
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
