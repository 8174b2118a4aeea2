package repository

import "fmt"

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL; the generated-id column type
// is the only driver-specific piece.

const schemaUploadSessions = `
CREATE TABLE IF NOT EXISTS upload_sessions (
    id %s,
    time_stamp TIMESTAMP NOT NULL,
    source_file_name TEXT NOT NULL,
    idp_entity_id TEXT NOT NULL,
    userid TEXT NOT NULL,
    passed_validation INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_idp ON upload_sessions(idp_entity_id);
`

const schemaValidationFailures = `
CREATE TABLE IF NOT EXISTS upload_session_validation_failures (
    id %s,
    upload_session_id BIGINT NOT NULL REFERENCES upload_sessions(id),
    "row" INTEGER NOT NULL,
    field TEXT NOT NULL,
    message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_failures_session ON upload_session_validation_failures(upload_session_id);
`

const schemaIDPFraudEvents = `
CREATE TABLE IF NOT EXISTS idp_fraud_events (
    id %s,
    idp_entity_id TEXT NOT NULL,
    idp_event_id TEXT NOT NULL,
    time_stamp TIMESTAMP NOT NULL,
    fid_code TEXT NOT NULL,
    request_id TEXT NOT NULL,
    pid TEXT NOT NULL,
    client_ip_address TEXT NOT NULL,
    contra_score INTEGER NOT NULL DEFAULT 0,
    upload_session_id BIGINT NOT NULL REFERENCES upload_sessions(id),
    fraud_event_id BIGINT,
    UNIQUE (idp_entity_id, idp_event_id)
);

CREATE INDEX IF NOT EXISTS idx_idp_fraud_events_session ON idp_fraud_events(upload_session_id);
`

// Contra-indicator counts are insert-or-increment only; the count for a
// (signal, code) pair is never overwritten.
const schemaContraIndicators = `
CREATE TABLE IF NOT EXISTS idp_fraud_event_contraindicators (
    idp_fraud_events_id BIGINT NOT NULL REFERENCES idp_fraud_events(id),
    contraindicator_code TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (idp_fraud_events_id, contraindicator_code)
);
`

// fraud_events is owned by the audit-trail event recorder; the import path
// only reads it for correlation.
const schemaFraudEvents = `
CREATE TABLE IF NOT EXISTS fraud_events (
    id %s,
    event_id TEXT NOT NULL,
    time_stamp TIMESTAMP NOT NULL,
    session_id TEXT,
    hashed_persistent_id TEXT,
    request_id TEXT,
    entity_id TEXT NOT NULL,
    fraud_event_id TEXT NOT NULL,
    fraud_indicator TEXT,
    transaction_entity_id TEXT,
    UNIQUE (entity_id, fraud_event_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_events_key ON fraud_events(entity_id, fraud_event_id);
`

// AllSchemas returns all schema statements in order for the given driver.
func AllSchemas(driver string) []string {
	id := "INTEGER PRIMARY KEY"
	if driver == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return []string{
		fmt.Sprintf(schemaUploadSessions, id),
		fmt.Sprintf(schemaValidationFailures, id),
		fmt.Sprintf(schemaIDPFraudEvents, id),
		schemaContraIndicators,
		fmt.Sprintf(schemaFraudEvents, id),
	}
}
