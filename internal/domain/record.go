// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"time"
)

// FraudSignal is one logical fraud indication submitted by an IDP.
// Rows sharing the same (IDPEntityID, IDPEventID) within an upload are
// merged into a single FraudSignal before persistence.
type FraudSignal struct {
	// ID is the generated row id, assigned on first persistence.
	ID int64 `json:"id"`

	// Natural key
	IDPEntityID string `json:"idpEntityId"`
	IDPEventID  string `json:"idpEventId"`

	// OccurredAt is when the fraud indicator was raised at the IDP.
	OccurredAt time.Time `json:"occurredAt"`

	// FIDCode is the fraud-indicator-definition code, fixed per event.
	FIDCode string `json:"fidCode"`

	// ContraIndicators maps qualifier code to occurrence count.
	// Never nil; constructed per instance.
	ContraIndicators map[string]int `json:"contraIndicators"`

	// ContraScore is a signed severity adjustment, summed across merged rows.
	ContraScore int `json:"contraScore"`

	// Context fields carried through verbatim from the source row.
	RequestID       string `json:"requestId"`
	ClientIPAddress string `json:"clientIpAddress"`
	PID             string `json:"pid"`

	// UploadSessionID links the signal to the upload that produced it.
	UploadSessionID int64 `json:"uploadSessionId"`

	// FraudEventID is the advisory back-reference to a matched fraud event
	// in the audit trail. Nil when unmatched.
	FraudEventID *int64 `json:"fraudEventId,omitempty"`
}

// NewFraudSignal constructs a signal with an empty, per-instance indicator set.
func NewFraudSignal(idpEntityID, idpEventID string) *FraudSignal {
	return &FraudSignal{
		IDPEntityID:      idpEntityID,
		IDPEventID:       idpEventID,
		ContraIndicators: make(map[string]int),
	}
}

// UploadSession represents one file-upload attempt and its outcome.
type UploadSession struct {
	ID               int64     `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	SourceFileName   string    `json:"sourceFileName"`
	IDPEntityID      string    `json:"idpEntityId"`
	UploadedBy       string    `json:"uploadedBy"`
	PassedValidation bool      `json:"passedValidation"`
}

// RowFailure is one append-only row-level failure record for a session.
type RowFailure struct {
	UploadSessionID int64  `json:"uploadSessionId"`
	Row             int    `json:"row"`
	Field           string `json:"field"`
	Message         string `json:"message"`
}

// FieldRowException is the sentinel field label used when a failure is not
// attributable to a single field.
const FieldRowException = "**Row Exception**"

// FraudEvent is a previously recorded fraud event in the audit trail,
// owned by the event-recording collaborator. The import path only ever
// reads it, keyed by (EntityID, FraudEventID).
type FraudEvent struct {
	ID            int64     `json:"id"`
	EventID       string    `json:"eventId"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"sessionId"`
	EntityID      string    `json:"entityId"`
	FraudEventID  string    `json:"fraudEventId"`
	HashedPID     string    `json:"hashedPid"`
	RequestID     string    `json:"requestId"`
	GPG45Status   string    `json:"gpg45Status"`
	TransactionID string    `json:"transactionId"`
}

// Per-upload processing defaults, overridable via object tags.
const (
	DefaultTimezone  = "Europe/London"
	DefaultDialect   = "excel"
	DefaultHasHeader = true
)

// Object tag keys attached to uploaded files.
const (
	TagIDPEntityID = "idp"
	TagUsername    = "username"
	TagTimezone    = "timezone"
	TagDialect     = "dialect"
	TagHasHeader   = "has_header"
)

// ImportOptions is the explicit per-upload configuration passed into the
// orchestrator. The source of these values (object tag lookup) is a
// collaborator concern.
type ImportOptions struct {
	IDPEntityID string
	UploadedBy  string
	Timezone    string
	Dialect     string
	HasHeader   bool
}

// OptionsFromTags builds ImportOptions from object tags, applying defaults
// for absent optional tags.
func OptionsFromTags(tags map[string]string) ImportOptions {
	opts := ImportOptions{
		IDPEntityID: tags[TagIDPEntityID],
		UploadedBy:  tags[TagUsername],
		Timezone:    DefaultTimezone,
		Dialect:     DefaultDialect,
		HasHeader:   DefaultHasHeader,
	}
	if tz, ok := tags[TagTimezone]; ok && tz != "" {
		opts.Timezone = tz
	}
	if d, ok := tags[TagDialect]; ok && d != "" {
		opts.Dialect = d
	}
	if h, ok := tags[TagHasHeader]; ok {
		opts.HasHeader = parseBoolTag(h)
	}
	return opts
}

func parseBoolTag(v string) bool {
	switch v {
	case "true", "TRUE", "True", "1", "y", "Y", "yes", "YES", "Yes":
		return true
	default:
		return false
	}
}
